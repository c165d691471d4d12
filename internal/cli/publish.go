package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/vigil/internal/artifact"
	"github.com/roach88/vigil/internal/model"
)

// PublishOptions holds flags for the publish command.
type PublishOptions struct {
	*RootOptions
	Version string
	Sweep   bool
}

type publishOutput struct {
	Model      string       `json:"model"`
	Version    string       `json:"version,omitempty"`
	Key        string       `json:"key"`
	Statements int          `json:"statements"`
	Bytes      int          `json:"bytes"`
	Sweep      *sweepOutput `json:"sweep,omitempty"`
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish <model> <statements.yaml>",
		Short: "Encode a model's statements and upload the artifact",
		Long: `Encode a YAML list of model statements as a model artifact and store
it under the model's well-known key.

The file holds an optional version and a statements list:

  version: "2024-06-01"
  statements:
    - type: Activation
      subj: {name: BRAF, db_refs: {HGNC: "1097"}}
      obj: {name: MAP2K1, db_refs: {HGNC: "6840"}}
      sentence: BRAF activates MAP2K1.

Examples:
  vigil publish rasmodel ./rasmodel.yaml
  vigil publish rasmodel ./rasmodel.yaml --sweep`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.Version, "version", "", "model version (overrides the file)")
	cmd.Flags().BoolVar(&opts.Sweep, "sweep", false, "sweep the model's registered queries after publishing")
	return cmd
}

// loadHandle reads a statements file for modelID.
func loadHandle(modelID, path string) (*model.Handle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var h model.Handle
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&h); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if h.ModelID != "" && h.ModelID != modelID {
		return nil, fmt.Errorf("%s is for model %q, not %q", path, h.ModelID, modelID)
	}
	h.ModelID = modelID
	for i, a := range h.Statements {
		if a.Type == "" || a.Subject.Name == "" || a.Object.Name == "" {
			return nil, fmt.Errorf("%s: statements[%d]: type, subj and obj are required", path, i)
		}
	}
	return &h, nil
}

func runPublish(cmd *cobra.Command, opts *PublishOptions, modelID, path string) error {
	h, err := loadHandle(modelID, path)
	if err != nil {
		return WrapExitError(ExitCommandError, "load statements", err)
	}
	if opts.Version != "" {
		h.Version = opts.Version
	}
	data, err := model.Encode(h)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, opts.Config, opts.Logger)
	if err != nil {
		return err
	}
	defer a.Close()

	key := artifact.ModelKey(modelID)
	if err := a.artifacts.Put(ctx, key, data); err != nil {
		return fmt.Errorf("publish %s: %w", modelID, err)
	}
	opts.Logger.Info("model published", "model", modelID, "version", h.Version, "key", key,
		"statements", len(h.Statements), "bytes", len(data))

	out := publishOutput{
		Model:      modelID,
		Version:    h.Version,
		Key:        key,
		Statements: len(h.Statements),
		Bytes:      len(data),
	}
	if opts.Sweep {
		sum, err := a.mgr.Sweep(ctx, modelID)
		if err != nil {
			return err
		}
		so := newSweepOutput(sum)
		out.Sweep = &so
	}

	return opts.formatter(cmd).Success(out, func(w io.Writer) {
		fmt.Fprintf(w, "Published %s (%d statements) to %s\n", out.Model, out.Statements, out.Key)
		if s := out.Sweep; s != nil {
			fmt.Fprintf(w, "Swept %d queries, %d results appended\n", s.Queries, s.Appended)
			for _, r := range s.Reports {
				fmt.Fprintf(w, "  [%s] %s\n", r.Kind, r.Text)
			}
		}
	})
}
