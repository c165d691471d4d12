package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/vigil/internal/query"
)

// sweepOutput is the JSON form of one model's sweep.
type sweepOutput struct {
	RunID     string        `json:"run_id"`
	Model     string        `json:"model"`
	Queries   int           `json:"queries"`
	Evaluated int           `json:"evaluated"`
	Failed    int           `json:"failed"`
	Appended  int           `json:"appended"`
	Reports   []sweepReport `json:"reports,omitempty"`
}

type sweepReport struct {
	Query       string `json:"query"`
	CheckerType string `json:"checker_type"`
	Kind        string `json:"kind"`
	Text        string `json:"text"`
}

func newSweepOutput(sum query.SweepSummary) sweepOutput {
	out := sweepOutput{
		RunID:     sum.RunID,
		Model:     sum.ModelID,
		Queries:   sum.Queries,
		Evaluated: sum.Evaluated,
		Failed:    sum.Failed,
		Appended:  sum.Appended,
	}
	for _, r := range sum.Reports {
		out.Reports = append(out.Reports, sweepReport{
			Query:       r.Query.String(),
			CheckerType: r.CheckerType,
			Kind:        r.Kind.String(),
			Text:        strings.TrimSpace(r.Text()),
		})
	}
	return out
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep <model>...",
		Short: "Re-answer every registered query of the given models",
		Long: `Re-answer every query registered against each model and append the
results to the ledger. Run after publishing a new model version.

Exit codes:
  0 - All models swept
  1 - A model could not be loaded
  2 - Command error

Examples:
  vigil sweep rasmodel
  vigil sweep m1 m2 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, rootOpts.Config, rootOpts.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			var outputs []sweepOutput
			var failed []string
			for _, modelID := range args {
				sum, err := a.mgr.Sweep(ctx, modelID)
				if err != nil {
					rootOpts.Logger.Error("sweep failed", "model", modelID, "error", err)
					failed = append(failed, modelID)
					continue
				}
				outputs = append(outputs, newSweepOutput(sum))
			}

			err = rootOpts.formatter(cmd).Success(outputs, func(w io.Writer) {
				for _, o := range outputs {
					fmt.Fprintf(w, "%s: %d queries, %d evaluated, %d failed, %d results appended (run %s)\n",
						o.Model, o.Queries, o.Evaluated, o.Failed, o.Appended, o.RunID)
					for _, r := range o.Reports {
						fmt.Fprintf(w, "  [%s] %s\n", r.Kind, r.Text)
					}
				}
			})
			if err != nil {
				return err
			}
			if len(failed) > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("sweep failed for %v", failed))
			}
			return nil
		},
	}
}
