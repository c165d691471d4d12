package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vigil/internal/ir"
)

func ent(name string) ir.Entity {
	return ir.Entity{Name: name, DBRefs: map[string]string{"HGNC": name}}
}

func assertion(stmtType, subj, obj string) Assertion {
	return Assertion{Statement: ir.Statement{Type: stmtType, Subject: ent(subj), Object: ent(obj)}}
}

func TestEncodeDecode(t *testing.T) {
	h := &Handle{
		ModelID: "m1",
		Version: "2024-01-01",
		Statements: []Assertion{
			{Statement: assertion("Activation", "A", "B").Statement, Sentence: "A activates B.", Link: "https://example.org/1"},
		},
	}

	data, err := Encode(h)
	require.NoError(t, err)

	got, err := Decode("m1", data)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDecode_Corrupt(t *testing.T) {
	_, err := Decode("m1", []byte("definitely not zstd"))
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
}

func TestDecode_WrongModel(t *testing.T) {
	data, err := Encode(&Handle{ModelID: "m2"})
	require.NoError(t, err)

	_, err = Decode("m1", data)
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
	assert.Contains(t, err.Error(), `"m2"`)
}

func TestDecode_NotJSON(t *testing.T) {
	_, err := Decode("m1", encoder.EncodeAll([]byte("{"), nil))
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
}

func TestEncode_RequiresModelID(t *testing.T) {
	_, err := Encode(&Handle{})
	assert.Error(t, err)
	_, err = Encode(nil)
	assert.Error(t, err)
}

func TestAssertion_Evidence(t *testing.T) {
	a := assertion("Activation", "A", "B")
	assert.Equal(t, ir.Evidence{Sentence: "Activation(A(), B())."}, a.Evidence())

	a.Sentence, a.Link = "A activates B.", "https://example.org"
	assert.Equal(t, ir.Evidence{Sentence: "A activates B.", Link: "https://example.org"}, a.Evidence())
}
