package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/vigil/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario files against an in-memory stack",
		Long: `Run scenario files against an in-memory ledger and artifact store,
checking step expectations, final assertions and, when a golden file
exists at <dir>/golden/<name>.golden, the recorded trace.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  vigil test ./scenarios
  vigil test ./scenarios --filter "sweep-*"
  vigil test ./scenarios --update`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	files, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "find scenarios", err)
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	w := cmd.OutOrStdout()
	for _, file := range files {
		sr := runScenario(file, opts.Update)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		status := "ok"
		if result.Failed > 0 {
			status = "error"
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(CLIResponse{Status: status, Data: result}); err != nil {
			return err
		}
	} else {
		writeTestText(w, result, opts.Update)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total))
	}
	return nil
}

func writeTestText(w io.Writer, result TestResult, updated bool) {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	for _, s := range result.Scenarios {
		if s.Pass {
			suffix := ""
			if updated {
				suffix = " (golden updated)"
			}
			fmt.Fprintf(w, "✓ %s%s\n", s.Name, suffix)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", s.Name)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}

// findScenarioFiles finds all YAML scenario files under dir, skipping
// golden directories.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "golden" && path != dir {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// runScenario loads, runs and checks one scenario file.
func runScenario(file string, update bool) ScenarioResult {
	name := filepath.Base(file)
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf("load: %v", err)}}
	}
	name = scenario.Name

	result, err := harness.Run(scenario)
	if err != nil {
		return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf("run: %v", err)}}
	}
	errs := append([]string(nil), result.Errors...)

	trace, err := harness.MarshalTrace(scenario, result)
	if err != nil {
		return ScenarioResult{Name: name, Errors: append(errs, fmt.Sprintf("marshal trace: %v", err))}
	}

	goldenPath := goldenFilePath(file)
	switch {
	case update:
		if err := writeGolden(goldenPath, trace); err != nil {
			errs = append(errs, err.Error())
		}
	default:
		golden, err := os.ReadFile(goldenPath)
		switch {
		case os.IsNotExist(err):
			// Assertions only.
		case err != nil:
			errs = append(errs, fmt.Sprintf("read golden file: %v", err))
		case !bytes.Equal(golden, trace):
			errs = append(errs, "trace does not match golden file (run with --update to regenerate)")
		}
	}

	return ScenarioResult{Name: name, Pass: len(errs) == 0, Errors: errs}
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write golden file: %w", err)
	}
	return nil
}
