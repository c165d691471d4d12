package query

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/vigil/internal/ir"
)

// StatementTypes lists the statement types a selection may ask about.
var StatementTypes = []string{
	"Activation", "Inhibition", "IncreaseAmount", "DecreaseAmount",
	// modifications
	"Acetylation", "Farnesylation", "Geranylgeranylation", "Glycosylation",
	"Hydroxylation", "Methylation", "Myristoylation", "Palmitoylation",
	"Phosphorylation", "Ribosylation", "Sumoylation", "Ubiquitination",
	// modification removals
	"Deacetylation", "Defarnesylation", "Degeranylgeranylation", "Deglycosylation",
	"Dehydroxylation", "Demethylation", "Demyristoylation", "Depalmitoylation",
	"Dephosphorylation", "Deribosylation", "Desumoylation", "Deubiquitination",
}

func selectionSchema() string {
	quoted := make([]string, len(StatementTypes))
	for i, t := range StatementTypes {
		quoted[i] = fmt.Sprintf("%q", t)
	}
	return `
#StatementType: ` + strings.Join(quoted, " | ") + `

#Name: string & =~"\\S"

#Selection: close({
	typeSelection:    #StatementType
	subjectSelection: #Name
	objectSelection:  #Name
})
`
}

// ErrInvalidInput marks errors caused by a malformed request.
var ErrInvalidInput = errors.New("invalid input")

// ValidationError describes one rejected field of a selection.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Message)
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// IsInvalidInput reports whether err was caused by a malformed request.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// Validator checks raw selections against the CUE schema.
// A cue.Context is not safe for concurrent use, so calls are serialized.
type Validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

// NewValidator compiles the selection schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(selectionSchema(), cue.Filename("selection.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile selection schema: %w", err)
	}
	return &Validator{
		ctx:    ctx,
		schema: root.LookupPath(cue.ParsePath("#Selection")),
	}, nil
}

// Parse validates a JSON selection and decodes it. Unknown keys, missing
// keys, unknown statement types and blank names are rejected.
func (v *Validator) Parse(data []byte) (ir.Selection, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	val := v.ctx.CompileBytes(data, cue.Filename("selection.json"))
	if err := val.Err(); err != nil {
		return ir.Selection{}, &ValidationError{Message: "selection is not valid JSON"}
	}

	unified := v.schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return ir.Selection{}, firstValidationError(err)
	}

	var sel ir.Selection
	if err := unified.Decode(&sel); err != nil {
		return ir.Selection{}, &ValidationError{Message: err.Error()}
	}
	return sel, nil
}

func firstValidationError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	ve := &ValidationError{Message: fmt.Sprintf(format, args...)}
	if path := first.Path(); len(path) > 0 {
		ve.Field = path[len(path)-1]
	}
	return ve
}
