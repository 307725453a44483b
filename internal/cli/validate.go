package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rulecql/internal/compiler"
	"github.com/roach88/rulecql/internal/elm"
)

// ErrCodeInvalidLibrary marks a library with structural warnings.
const ErrCodeInvalidLibrary = "E010"

// ValidationResult holds the validation result of one rule file.
type ValidationResult struct {
	File        string                `json:"file"`
	Valid       bool                  `json:"valid"`
	Warnings    []string              `json:"warnings,omitempty"`
	Diagnostics []compiler.Diagnostic `json:"diagnostics,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <rules...>",
		Short: "Compile rules and check the libraries without recording them",
		Long: `Compile rule files and run structural checks on the resulting libraries:
nil operands, dangling references and duplicate definition names.

Nothing is written to the compilation store. Soft diagnostics are reported
but do not make a rule invalid.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	env, err := loadEnvironment(opts, cmd)
	if err != nil {
		return loadFailure(formatter, err)
	}
	files, err := ResolveRuleFiles(args)
	if err != nil {
		return loadFailure(formatter, err)
	}
	c, err := env.newCompiler()
	if err != nil {
		return loadFailure(formatter, err)
	}
	outcomes, err := compileFiles(cmd.Context(), c, files, env.cfg.Concurrency)
	if err != nil {
		return loadFailure(formatter, err)
	}

	var results []ValidationResult
	var failures []CLIError
	for _, o := range outcomes {
		formatter.VerboseLog("Validating %s", o.file)
		if o.err != nil {
			failures = append(failures, compileErrorOf(o.file, o.err))
			continue
		}
		v := elm.Validate(o.result.Library)
		results = append(results, ValidationResult{
			File:        o.file,
			Valid:       v.Valid,
			Warnings:    v.Warnings,
			Diagnostics: o.result.Diagnostics,
		})
		for _, w := range v.Warnings {
			failures = append(failures, CLIError{Code: ErrCodeInvalidLibrary, Message: w, File: o.file})
		}
	}

	if len(failures) > 0 {
		_ = formatter.Errors(failures)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(failures)))
	}
	return outputValidateSuccess(formatter, results)
}

func outputValidateSuccess(formatter *OutputFormatter, results []ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(results)
	}

	fmt.Fprintf(formatter.Writer, "✓ %d rule(s) valid\n", len(results))
	for _, r := range results {
		for _, d := range r.Diagnostics {
			fmt.Fprintf(formatter.Writer, "  %s: warning %s: %s\n", r.File, d.Code, d.Message)
		}
	}
	return nil
}
