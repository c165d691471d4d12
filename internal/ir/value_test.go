package ir

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQuery() Query {
	q := NewPathQuery("Phosphorylation",
		grounded("EGFR", "HGNC", "3236"),
		grounded("ERK", "FPLX", "ERK"))
	q.Entities.Exclude = []Entity{grounded("PI3K", "FPLX", "PI3K")}
	q.Relations.Exclude = []string{"IncreaseAmount", "DecreaseAmount"}
	return q
}

func TestQuery_String(t *testing.T) {
	assert.Equal(t,
		"PathPropertyQuery(stmt=Phosphorylation(EGFR(), ERK())). Exclude entities: PI3K(). Exclude relations: IncreaseAmount, DecreaseAmount.",
		testQuery().String())
}

func TestQuery_JSONRoundTripKeepsHash(t *testing.T) {
	q := testQuery()

	data, err := json.Marshal(q)
	require.NoError(t, err)

	parsed, err := ParseQuery(data)
	require.NoError(t, err)

	h1, err := q.HashWithModel("aml")
	require.NoError(t, err)
	h2, err := parsed.HashWithModel("aml")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, q.String(), parsed.String())
}

func TestQuery_MarshalJSONIsCanonical(t *testing.T) {
	q := NewPathQuery("Activation", grounded("A", "HGNC", "1"), grounded("B", "HGNC", "2"))

	data, err := json.Marshal(q)
	require.NoError(t, err)
	assert.Equal(t,
		`{"entity_constraints":{},"path":{"obj":{"db_refs":{"HGNC":"2"},"name":"B"},"subj":{"db_refs":{"HGNC":"1"},"name":"A"},"type":"Activation"},"relationship_constraints":{},"type":"path_property"}`,
		string(data))
}

func TestParseQuery_Invalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `{`},
		{"unknown type", `{"type":"structural_property","path":{"type":"Activation"}}`},
		{"missing path", `{"type":"path_property"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuery([]byte(tt.json))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidQuery), "got %v", err)
		})
	}
}

func TestQuery_Selection(t *testing.T) {
	sel := testQuery().Selection()
	assert.Equal(t, Selection{Type: "Phosphorylation", Subject: "EGFR", Object: "ERK"}, sel)

	data, err := json.Marshal(sel)
	require.NoError(t, err)
	assert.JSONEq(t, `{"typeSelection":"Phosphorylation","subjectSelection":"EGFR","objectSelection":"ERK"}`, string(data))
}

func TestEntity_Key(t *testing.T) {
	assert.Equal(t, "HGNC:6871", Entity{Name: "MAPK1", DBRefs: map[string]string{"HGNC": "6871", "TEXT": "mapk1"}}.Key())
	assert.Equal(t, "CHEBI:1", Entity{Name: "x", DBRefs: map[string]string{"HGNC": "2", "CHEBI": "1"}}.Key())
	assert.Equal(t, "TEXT:MAPK1", Entity{Name: "mapk1", DBRefs: map[string]string{"TEXT": "mapk1"}}.Key())
	assert.Equal(t, "TEXT:FOO", Entity{Name: "foo"}.Key())
}
