package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rulecql/internal/modeling"
)

// NewConceptsCommand creates the concepts command, which lists the concept
// keys rules may reference.
func NewConceptsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "concepts",
		Short:         "List supported concept keys",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			keys := modeling.Keys()
			names := make([]string, len(keys))
			for i, k := range keys {
				names[i] = k.String()
			}

			if formatter.Format == "json" {
				return formatter.Success(names)
			}
			for _, n := range names {
				fmt.Fprintln(formatter.Writer, n)
			}
			return nil
		},
	}
}
