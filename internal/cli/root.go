package cli

import (
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roach88/rulecql/internal/compiler"
	"github.com/roach88/rulecql/internal/config"
	"github.com/roach88/rulecql/internal/modelinfo"
	"github.com/roach88/rulecql/internal/terminology"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the rulecql CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rulecql",
		Short: "rulecql - rule graph to ELM compiler",
		Long:  "Compiles clinical rule predicate graphs into ELM logic libraries against FHIR R4.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (YAML)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewConceptsCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// newFormatter returns the formatter every command writes through.
// Verbose logs go to stderr to avoid corrupting JSON.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// environment is the configuration shared by commands that compile.
type environment struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// loadEnvironment reads configuration and builds the logger. Logs go to
// the command's error stream.
func loadEnvironment(opts *RootOptions, cmd *cobra.Command) (*environment, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, CodedExitError(ExitCommandError, ErrCodeConfig, "load configuration", err)
	}
	return &environment{
		cfg:    cfg,
		logger: cfg.Logger(cmd.ErrOrStderr(), opts.Verbose),
	}, nil
}

// newCompiler builds a compiler from configuration.
func (e *environment) newCompiler() (*compiler.Compiler, error) {
	model, err := modelinfo.LoadFHIR()
	if err != nil {
		return nil, CodedExitError(ExitCommandError, ErrCodeGeneric, "load model info", err)
	}

	var valueSets map[string]string
	if e.cfg.ValueSetMap != "" {
		valueSets, err = terminology.LoadValueSetMap(e.cfg.ValueSetMap)
		if err != nil {
			return nil, CodedExitError(ExitCommandError, ErrCodeConfig, "load value-set map", err)
		}
	}

	assembler := compiler.NewAssembler(
		compiler.WithLibraryVersion(e.cfg.LibraryVersion),
		compiler.WithModelVersion(e.cfg.ModelVersion),
	)
	return compiler.New(model,
		compiler.WithLogger(e.logger),
		compiler.WithAssembler(assembler),
		compiler.WithValueSetURLTemplate(e.cfg.ValueSetURLTemplate),
		compiler.WithValueSetMap(valueSets),
	), nil
}
