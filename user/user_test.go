package user

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FreshIdentity(t *testing.T) {
	gen := NewHandleGenerator()

	a := New(gen)
	b := New(gen)

	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEmpty(t, a.Handle)
}

func TestHandleGenerator_Shape(t *testing.T) {
	gen := NewHandleGeneratorSeeded(1, 2)

	for range 50 {
		handle := gen.Generate()
		parts := strings.Split(handle, "-")
		require.Len(t, parts, 3, "handle %q", handle)
		assert.Contains(t, adjectives, parts[0])
		assert.Contains(t, colors, parts[1])
		assert.Contains(t, animals, parts[2])
	}
}

func TestHandleGenerator_SeededIsDeterministic(t *testing.T) {
	a := NewHandleGeneratorSeeded(7, 13)
	b := NewHandleGeneratorSeeded(7, 13)

	for range 10 {
		assert.Equal(t, a.Generate(), b.Generate())
	}
}
