package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rulecql/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Store   string
	Limit   int
	Library string
	Hash    string
}

// HistoryEntry is one recorded compilation as shown by the history command.
type HistoryEntry struct {
	Seq         int64  `json:"seq"`
	RunID       string `json:"run_id"`
	Rule        string `json:"rule"`
	File        string `json:"file,omitempty"`
	Library     string `json:"library"`
	Version     string `json:"version"`
	Hash        string `json:"hash"`
	Diagnostics int    `json:"diagnostics"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded compilations, newest first",
		Long: `List compilations recorded in the store, newest first.

With --library, show only the latest compilation of that library.
With --hash, show every compilation that produced that library hash,
oldest first.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Store, "store", "", "compilation store path (default from config)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of entries (0 for all)")
	cmd.Flags().StringVar(&opts.Library, "library", "", "show the latest compilation of this library")
	cmd.Flags().StringVar(&opts.Hash, "hash", "", "show the compilations that produced this library hash")
	cmd.MarkFlagsMutuallyExclusive("library", "hash")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	path := opts.Store
	if path == "" {
		env, err := loadEnvironment(opts.RootOptions, cmd)
		if err != nil {
			return loadFailure(formatter, err)
		}
		path = env.cfg.StorePath
	}

	st, err := store.Open(path)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeStore, err)
	}
	defer st.Close()

	var rows []store.Compilation
	switch {
	case opts.Hash != "":
		rows, err = st.FindByHash(cmd.Context(), opts.Hash)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeStore, err)
		}
		if len(rows) == 0 {
			_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("no compilations with hash %s", opts.Hash), nil)
			return NewExitError(ExitFailure, fmt.Sprintf("hash %s not found", opts.Hash))
		}
	case opts.Library != "":
		c, ok, err := st.Latest(cmd.Context(), opts.Library)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeStore, err)
		}
		if !ok {
			_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("no compilations of library %q", opts.Library), nil)
			return NewExitError(ExitFailure, fmt.Sprintf("library %q not found", opts.Library))
		}
		rows = []store.Compilation{c}
	default:
		rows, err = st.List(cmd.Context(), opts.Limit)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeStore, err)
		}
	}

	entries := make([]HistoryEntry, len(rows))
	for i, r := range rows {
		entries[i] = HistoryEntry{
			Seq:         r.Seq,
			RunID:       r.RunID,
			Rule:        r.Rule,
			File:        r.SourcePath,
			Library:     r.LibraryName,
			Version:     r.LibraryVersion,
			Hash:        r.Hash,
			Diagnostics: len(r.Diagnostics),
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(formatter.Writer, "No compilations recorded")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(formatter.Writer, "%4d  %s  %s %s  %s  %q\n",
			e.Seq, e.RunID, e.Library, e.Version, shortHash(e.Hash), e.Rule)
	}
	return nil
}
