package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedRunIDGenerator_ReturnsSameID(t *testing.T) {
	gen := NewFixedRunIDGenerator("run-123")

	assert.Equal(t, "run-123", gen.NewRunID())
	assert.Equal(t, "run-123", gen.NewRunID())
}

func TestFixedRunIDGenerator_EmptyDefault(t *testing.T) {
	assert.Equal(t, "test-run-default", NewFixedRunIDGenerator("").NewRunID())
}
