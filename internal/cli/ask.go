package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/vigil/internal/ir"
	"github.com/roach88/vigil/internal/query"
	"github.com/roach88/vigil/internal/store"
)

// selectionFlags are the query flags shared by ask and report.
type selectionFlags struct {
	Type    string
	Subject string
	Object  string
}

func (s *selectionFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.Type, "type", "Activation", "statement type")
	cmd.Flags().StringVar(&s.Subject, "subject", "", "subject entity name")
	cmd.Flags().StringVar(&s.Object, "object", "", "object entity name")
}

func (s *selectionFlags) selection() ir.Selection {
	return ir.Selection{Type: s.Type, Subject: s.Subject, Object: s.Object}
}

// AskOptions holds flags for the ask command.
type AskOptions struct {
	*RootOptions
	selectionFlags
	Models   []string
	Register bool
	Email    string
	UserID   int64
}

// NewAskCommand creates the ask command.
func NewAskCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AskOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Answer a query against one or more models",
		Long: `Answer a path query now. Saved answers are reused; models without a
saved answer are evaluated. With --register the query is subscribed for
the given user and new answers are stored.

Examples:
  vigil ask --type Activation --subject BRAF --object MAPK1 --model rasmodel
  vigil ask --subject KRAS --object MAPK1 --model m1 --model m2 --register --email a@example.org --user-id 12`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, opts)
		},
	}

	opts.bind(cmd)
	cmd.Flags().StringSliceVarP(&opts.Models, "model", "m", nil, "model id (repeatable; default: configured models)")
	cmd.Flags().BoolVar(&opts.Register, "register", false, "subscribe the user to this query")
	cmd.Flags().StringVar(&opts.Email, "email", "", "user email")
	cmd.Flags().Int64Var(&opts.UserID, "user-id", 0, "user id")
	return cmd
}

func runAsk(cmd *cobra.Command, opts *AskOptions) error {
	ctx := cmd.Context()
	user := store.User{ID: opts.UserID, Email: opts.Email}
	if opts.Register && (user.ID <= 0 || user.Email == "") {
		return NewExitError(ExitCommandError, "--register requires --email and --user-id")
	}
	models := opts.Models
	if len(models) == 0 {
		models = opts.Config.Models
	}
	if len(models) == 0 {
		return NewExitError(ExitCommandError, "no models given: use --model or set models in the config")
	}

	a, err := openApp(ctx, opts.Config, opts.Logger)
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := a.mgr.BuildQuery(ctx, opts.selection())
	if err != nil {
		if query.IsInvalidInput(err) {
			return WrapExitError(ExitCommandError, "invalid query", err)
		}
		return err
	}
	answer, err := a.mgr.AnswerImmediate(ctx, user, q, models, opts.Register)
	if err != nil {
		if store.IsInvalidInput(err) {
			return WrapExitError(ExitCommandError, "invalid request", err)
		}
		return err
	}

	out := opts.formatter(cmd)
	if err := out.Success(answer, func(w io.Writer) { writeAnswer(w, answer) }); err != nil {
		return err
	}
	if len(answer.Results) == 0 && len(answer.Unavailable) > 0 {
		return NewExitError(ExitFailure, "no model could answer")
	}
	return nil
}

func writeAnswer(w io.Writer, answer query.Answer) {
	writeResults(w, answer.Results)
	for _, u := range answer.Unavailable {
		retry := ""
		if u.Transient {
			retry = " (retry later)"
		}
		fmt.Fprintf(w, "%s: unavailable: %s%s\n", u.Model, u.Reason, retry)
	}
}

func writeResults(w io.Writer, results []query.FormattedResult) {
	for _, r := range results {
		state := "saved"
		if r.Delta != 0 {
			state = r.Delta.String()
		}
		fmt.Fprintf(w, "%s %s %s [%s] %s\n", r.Model, r.CheckerType, r.Timestamp, state, selectionText(r.Query))
		fmt.Fprintf(w, "  %s\n", r.RenderedAnswer)
	}
}

func selectionText(s ir.Selection) string {
	return fmt.Sprintf("%s(%s, %s)", s.Type, s.Subject, s.Object)
}
