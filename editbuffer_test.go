package cclower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditBufferAppliesDescendingOffsets(t *testing.T) {
	src := []byte("abcdef")
	eb := NewEditBuffer(src)
	require.NoError(t, eb.Add(Edit{Start: 1, End: 2, Replacement: "X"}))
	require.NoError(t, eb.Add(Edit{Start: 4, End: 5, Replacement: "Y"}))

	out := eb.Apply()
	assert.Equal(t, "aXcdYf", string(out))
}

func TestEditBufferRejectsOverlap(t *testing.T) {
	src := []byte("abcdef")
	eb := NewEditBuffer(src)
	require.NoError(t, eb.Add(Edit{Start: 1, End: 3, Replacement: "X"}))
	err := eb.Add(Edit{Start: 2, End: 4, Replacement: "Y"})
	assert.Error(t, err)
}

func TestEditBufferOverlaps(t *testing.T) {
	src := []byte("abcdef")
	eb := NewEditBuffer(src)
	require.NoError(t, eb.Add(Edit{Start: 2, End: 4, Replacement: "Z"}))
	assert.True(t, eb.Overlaps(3, 5))
	assert.False(t, eb.Overlaps(4, 6))
}
