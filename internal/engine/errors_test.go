package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeError_Error(t *testing.T) {
	err := NewInvalidInputError("c1", errors.New("empty target id"))
	assert.Equal(t, "INVALID_INPUT: empty target id (cycle=c1)", err.Error())

	err = NewInvalidInputError("", errors.New("empty target id"))
	assert.Equal(t, "INVALID_INPUT: empty target id", err.Error())
}

func TestRuntimeError_Helpers(t *testing.T) {
	cause := errors.New("too many passes")
	internal := fmt.Errorf("cycle: %w", NewNonTerminatingError("c1", cause))

	assert.True(t, IsInternal(internal))
	assert.False(t, IsInvalidInput(internal))
	assert.ErrorIs(t, internal, cause)

	invalid := NewInvalidInputError("c1", cause)
	assert.True(t, IsInvalidInput(invalid))
	assert.False(t, IsInternal(invalid))

	assert.False(t, IsInvalidInput(cause))
	assert.False(t, IsInternal(nil))
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Equal(t, byte('7'), a[14], "version nibble")
}
