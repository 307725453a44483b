package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/rulecql/internal/compiler"
	"github.com/roach88/rulecql/internal/rulegraph"
	"github.com/roach88/rulecql/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output  string // directory for ELM JSON files
	Store   string // store path, overrides configuration
	NoStore bool
}

// CompiledRule summarizes one successful compilation.
type CompiledRule struct {
	File        string                `json:"file"`
	RunID       string                `json:"run_id"`
	Rule        string                `json:"rule"`
	Library     string                `json:"library"`
	Version     string                `json:"version"`
	Hash        string                `json:"hash"`
	Seq         int64                 `json:"seq,omitempty"`
	Diagnostics []compiler.Diagnostic `json:"diagnostics"`
	Output      string                `json:"output,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <rules...>",
		Short: "Compile rule files to ELM libraries",
		Long: `Compile rule predicate graphs (YAML files or directories of them) to ELM
libraries against FHIR R4.

Rules compile concurrently. Each successful compilation is recorded in the
compilation store with its canonical ELM JSON and content hash.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "directory to write ELM JSON files to")
	cmd.Flags().StringVar(&opts.Store, "store", "", "compilation store path (default from config)")
	cmd.Flags().BoolVar(&opts.NoStore, "no-store", false, "do not record compilations")

	return cmd
}

// ruleOutcome is the compilation of one file: a result or a compile error.
type ruleOutcome struct {
	file   string
	result *compiler.Result
	err    error
}

// compileFiles compiles files concurrently, at most limit at a time, and
// returns outcomes in input order. Compile errors are kept per file; a file
// that cannot be loaded aborts the run. Library names are taken in input
// order between loading and compiling, so fallback names do not depend on
// scheduling.
func compileFiles(ctx context.Context, c *compiler.Compiler, files []string, limit int) ([]ruleOutcome, error) {
	rules := make([]*rulegraph.Rule, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rule, err := rulegraph.LoadRule(file)
			if err != nil {
				return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error(), Path: file}
			}
			rules[i] = rule
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	names := make([]string, len(rules))
	for i, rule := range rules {
		names[i] = c.LibraryName(rule.Label)
	}

	outcomes := make([]ruleOutcome, len(files))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := c.CompileNamed(rules[i], names[i])
			outcomes[i] = ruleOutcome{file: file, result: res, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// checkOutputNames fails when two compiled libraries would be written to
// the same file.
func checkOutputNames(outcomes []ruleOutcome) error {
	seen := make(map[string]string)
	for _, o := range outcomes {
		if o.err != nil {
			continue
		}
		id := o.result.Library.Identifier.ID
		if prev, ok := seen[id]; ok {
			return &LoadError{
				Code:    ErrCodeWriteFailed,
				Message: fmt.Sprintf("library %s from %s and %s would be written to the same file", id, prev, o.file),
				Path:    o.file,
			}
		}
		seen[id] = o.file
	}
	return nil
}

// compileErrorOf converts a compile failure to a CLI error.
func compileErrorOf(file string, err error) CLIError {
	code := compiler.CodeOf(err)
	if code == "" {
		code = ErrCodeGeneric
	}
	return CLIError{Code: code, Message: err.Error(), File: file}
}

// loadFailure reports a LoadError (or any other command error) and returns
// the matching exit error.
func loadFailure(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		_ = formatter.Errors([]CLIError{{Code: loadErr.Code, Message: loadErr.Message, File: loadErr.Path}})
		return WrapExitError(ExitCommandError, loadErr.Code, err)
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ErrCode
		if code == "" {
			code = ErrCodeGeneric
		}
		_ = formatter.Error(code, exitErr.Error(), nil)
		return exitErr
	}
	_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, ErrCodeGeneric, err)
}

func runCompile(opts *CompileOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	env, err := loadEnvironment(opts.RootOptions, cmd)
	if err != nil {
		return loadFailure(formatter, err)
	}
	files, err := ResolveRuleFiles(args)
	if err != nil {
		return loadFailure(formatter, err)
	}
	formatter.VerboseLog("Found %d rule file(s)", len(files))

	c, err := env.newCompiler()
	if err != nil {
		return loadFailure(formatter, err)
	}
	outcomes, err := compileFiles(cmd.Context(), c, files, env.cfg.Concurrency)
	if err != nil {
		return loadFailure(formatter, err)
	}
	if opts.Output != "" {
		if err := checkOutputNames(outcomes); err != nil {
			return loadFailure(formatter, err)
		}
	}

	var st *store.Store
	if !opts.NoStore {
		path := opts.Store
		if path == "" {
			path = env.cfg.StorePath
		}
		st, err = store.Open(path)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeStore, err)
		}
		defer st.Close()
	}

	var compiled []CompiledRule
	var failures []CLIError
	for _, o := range outcomes {
		if o.err != nil {
			failures = append(failures, compileErrorOf(o.file, o.err))
			continue
		}
		entry, err := finishRule(cmd.Context(), st, opts.Output, o)
		if err != nil {
			return loadFailure(formatter, err)
		}
		formatter.VerboseLog("Compiled %s -> %s", o.file, entry.Library)
		compiled = append(compiled, entry)
	}

	if len(failures) > 0 {
		_ = formatter.Errors(failures)
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d rule(s) failed to compile", len(failures), len(outcomes)))
	}
	return outputCompileSuccess(formatter, compiled)
}

// finishRule records a compilation and writes its ELM file.
func finishRule(ctx context.Context, st *store.Store, outputDir string, o ruleOutcome) (CompiledRule, error) {
	res := o.result
	entry := CompiledRule{
		File:        o.file,
		RunID:       res.RunID,
		Rule:        res.Rule,
		Library:     res.Library.Identifier.ID,
		Version:     res.Library.Identifier.Version,
		Hash:        res.Hash,
		Diagnostics: res.Diagnostics,
	}
	if entry.Diagnostics == nil {
		entry.Diagnostics = []compiler.Diagnostic{}
	}

	if st != nil {
		seq, err := st.Record(ctx, res, o.file)
		if err != nil {
			return CompiledRule{}, WrapExitError(ExitCommandError, ErrCodeStore, err)
		}
		entry.Seq = seq
	}

	if outputDir != "" {
		path, err := writeLibrary(outputDir, res)
		if err != nil {
			return CompiledRule{}, WrapExitError(ExitCommandError, ErrCodeWriteFailed, err)
		}
		entry.Output = path
	}
	return entry, nil
}

// writeLibrary writes the library as indented ELM JSON to dir/<name>.json.
// Canonical JSON without indentation is used only for hashing and storage.
func writeLibrary(dir string, res *compiler.Result) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	data, err := json.MarshalIndent(res.Library, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal library: %w", err)
	}
	path := filepath.Join(dir, res.Library.Identifier.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func outputCompileSuccess(formatter *OutputFormatter, compiled []CompiledRule) error {
	if formatter.Format == "json" {
		return formatter.Success(compiled)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d rule(s)\n\n", len(compiled))
	for _, c := range compiled {
		fmt.Fprintf(formatter.Writer, "  %s: %s %s (%s)\n", c.File, c.Library, c.Version, shortHash(c.Hash))
		for _, d := range c.Diagnostics {
			fmt.Fprintf(formatter.Writer, "    warning %s: %s\n", d.Code, d.Message)
		}
		if c.Output != "" {
			fmt.Fprintf(formatter.Writer, "    wrote %s\n", c.Output)
		}
	}
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
