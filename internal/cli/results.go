package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewResultsCommand creates the results command.
func NewResultsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "results <email>",
		Short: "Show the latest results of a user's subscribed queries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, rootOpts.Config, rootOpts.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.mgr.RegisteredResults(ctx, args[0])
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Success(results, func(w io.Writer) {
				if len(results) == 0 {
					fmt.Fprintf(w, "No results for %s.\n", args[0])
					return
				}
				writeResults(w, results)
			})
		},
	}
}
