package cclower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferLineColRoundTrip(t *testing.T) {
	src := "line one\nline two\nline three\n"
	buf := NewBuffer([]byte(src))

	require.Equal(t, 3, buf.Newlines())

	line, col := buf.LineCol(0)
	assert.Equal(t, 1, line)
	assert.Equal(t, 1, col)

	offsetOfLineTwoStart := len("line one\n")
	line, col = buf.LineCol(offsetOfLineTwoStart)
	assert.Equal(t, 2, line)
	assert.Equal(t, 1, col)

	assert.Equal(t, offsetOfLineTwoStart, buf.Offset(2, 1))
}

func TestBufferLineRangeAndSlice(t *testing.T) {
	src := "abc\ndef\n"
	buf := NewBuffer([]byte(src))

	start, end := buf.LineRange(1)
	assert.Equal(t, "abc", buf.Slice(start, end))

	start, end = buf.LineRange(2)
	assert.Equal(t, "def", buf.Slice(start, end))
}

func TestBufferPos(t *testing.T) {
	assert.Equal(t, "foo.cc:3:5", Pos("foo.cc", 3, 5))
}
