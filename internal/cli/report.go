package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/vigil/internal/delta"
	"github.com/roach88/vigil/internal/query"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	selectionFlags
	Email  string
	Render string
}

type reportOutput struct {
	Model  string `json:"model,omitempty"`
	Email  string `json:"email,omitempty"`
	Found  bool   `json:"found"`
	Report string `json:"report"`
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report [model]",
		Short: "Render what changed between a query's last two results",
		Long: `Render the delta report of one query on one model, or with --email of
every query the user is subscribed to.

Examples:
  vigil report rasmodel --subject BRAF --object MAPK1
  vigil report --email a@example.org --render html`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts, args)
		},
	}

	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.Email, "email", "", "report every query this user is subscribed to")
	cmd.Flags().StringVar(&opts.Render, "render", "text", "report rendering (text|html)")
	return cmd
}

func runReport(cmd *cobra.Command, opts *ReportOptions, args []string) error {
	f, err := delta.ParseFormat(opts.Render)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --render", err)
	}
	if (len(args) == 1) == (opts.Email != "") {
		return NewExitError(ExitCommandError, "give either a model or --email")
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, opts.Config, opts.Logger)
	if err != nil {
		return err
	}
	defer a.Close()

	out := reportOutput{Email: opts.Email}
	if opts.Email != "" {
		results, err := a.mgr.RegisteredResults(ctx, opts.Email)
		if err != nil {
			return err
		}
		out.Found = len(results) > 0
		if out.Found {
			out.Report, err = a.mgr.UserReport(ctx, opts.Email, f)
			if err != nil {
				return err
			}
		}
	} else {
		out.Model = args[0]
		q, err := a.mgr.BuildQuery(ctx, opts.selection())
		if err != nil {
			if query.IsInvalidInput(err) {
				return WrapExitError(ExitCommandError, "invalid query", err)
			}
			return err
		}
		out.Report, out.Found, err = a.mgr.QueryReport(ctx, out.Model, q, f)
		if err != nil {
			return err
		}
	}

	if err := opts.formatter(cmd).Success(out, func(w io.Writer) {
		if !out.Found {
			fmt.Fprintln(w, "No results stored for this query.")
			return
		}
		fmt.Fprintln(w, out.Report)
	}); err != nil {
		return err
	}
	if !out.Found {
		return NewExitError(ExitFailure, "no results")
	}
	return nil
}
