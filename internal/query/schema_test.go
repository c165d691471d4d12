package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vigil/internal/ir"
)

func TestValidatorParse(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	sel, err := v.Parse([]byte(`{"typeSelection":"Phosphorylation","subjectSelection":"MAP2K1","objectSelection":"MAPK1"}`))
	require.NoError(t, err)
	assert.Equal(t, ir.Selection{Type: "Phosphorylation", Subject: "MAP2K1", Object: "MAPK1"}, sel)
}

func TestValidatorRejects(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	cases := map[string]string{
		"not json":       `{`,
		"not an object":  `["Activation"]`,
		"missing object": `{"typeSelection":"Activation","subjectSelection":"A"}`,
		"extra key":      `{"typeSelection":"Activation","subjectSelection":"A","objectSelection":"B","register":true}`,
		"unknown type":   `{"typeSelection":"Complex","subjectSelection":"A","objectSelection":"B"}`,
		"blank subject":  `{"typeSelection":"Activation","subjectSelection":"  ","objectSelection":"B"}`,
		"numeric object": `{"typeSelection":"Activation","subjectSelection":"A","objectSelection":7}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Parse([]byte(input))
			require.Error(t, err)
			assert.True(t, IsInvalidInput(err), "want invalid input, got %v", err)
		})
	}
}

func TestStatementTypesAreQueryable(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	assert.Len(t, StatementTypes, 28)
	for _, st := range StatementTypes {
		_, err := v.Parse([]byte(`{"typeSelection":"` + st + `","subjectSelection":"A","objectSelection":"B"}`))
		assert.NoError(t, err, st)
	}
}

func TestValidationErrorNamesField(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	_, err = v.Parse([]byte(`{"typeSelection":"Binding","subjectSelection":"A","objectSelection":"B"}`))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "typeSelection", ve.Field)
}
