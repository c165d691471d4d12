package harness

// Step names used in the trace.
const (
	StepSubmit  = "submit"
	StepPublish = "publish"
	StepSweep   = "sweep"
	StepReport  = "report"
)

// TraceEvent records one executed flow step.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Step string `json:"step"`
	// Data holds step outputs. Values are limited to strings, bools, ints,
	// []string, []any and map[string]any so the event has a canonical form.
	Data map[string]any `json:"data,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors is empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event with the next sequence number.
func (r *Result) AddTrace(step string, data map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:  int64(len(r.Trace) + 1),
		Step: step,
		Data: data,
	})
}
