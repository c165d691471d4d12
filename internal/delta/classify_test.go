package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/vigil/internal/ir"
)

func TestClassify(t *testing.T) {
	h1 := ir.Payload{"h1": {{Sentence: "A activates B."}}}
	h1Edited := ir.Payload{"h1": {{Sentence: "A strongly activates B.", Link: "https://example.org/1"}}}
	h1h2 := ir.Payload{"h1": nil, "h2": nil}
	h2 := ir.Payload{"h2": nil}

	tests := []struct {
		name        string
		current     ir.Payload
		previous    ir.Payload
		hasPrevious bool
		want        Kind
	}{
		{"empty vs none", ir.Payload{}, nil, false, First},
		{"nonempty vs none", h1, nil, false, First},
		{"same keys different evidence", h1Edited, h1, true, Unchanged},
		{"key added", h1, h1h2, true, Changed},
		{"key removed", h1h2, h1, true, Changed},
		{"same size different keys", h2, h1, true, Changed},
		{"both empty", ir.Payload{}, ir.Payload{}, true, Unchanged},
		// A stored empty result is a prior answer, not an absent one: CHANGED, never FIRST.
		{"empty previous", h1, ir.Payload{}, true, Changed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.current, tt.previous, tt.hasPrevious))
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "FIRST", First.String())
	assert.Equal(t, "CHANGED", Changed.String())
	assert.Equal(t, "UNCHANGED", Unchanged.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}

func TestKind_TextRoundTrip(t *testing.T) {
	for _, k := range []Kind{First, Changed, Unchanged} {
		text, err := k.MarshalText()
		assert.NoError(t, err)
		var got Kind
		assert.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, k, got)
	}

	var k Kind
	assert.Error(t, k.UnmarshalText([]byte("MAYBE")))
}
