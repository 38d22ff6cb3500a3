package cclower

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Buffer is the Source Buffer of MODULE A: an owning byte string plus
// line/column offset utilities. It is rebuilt after every pass that
// produces a new buffer (pos 3, Data Model, §3) since the lowering
// pipeline never mutates a buffer in place.
//
// Lifetime mirrors the teacher's LineIndex (pos.go): constructed once
// per buffer and cheap to rebuild (O(n) over the input), since each
// pass in the pipeline hands its successor a brand new owned []byte.
type Buffer struct {
	data      []byte
	lineStart []int
}

// NewBuffer wraps src and indexes its line starts.
func NewBuffer(src []byte) *Buffer {
	lineStart := make([]int, 1, 64)
	lineStart[0] = 0
	for i, b := range src {
		if b == '\n' {
			lineStart = append(lineStart, i+1)
		}
	}
	return &Buffer{data: src, lineStart: lineStart}
}

// Bytes returns the underlying byte slice. Callers must not mutate it.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the logical byte length of the buffer.
func (b *Buffer) Len() int { return len(b.data) }

// Newlines returns the number of '\n' bytes, used by the §8 invariant
// that line-preserving passes keep this value constant.
func (b *Buffer) Newlines() int { return len(b.lineStart) - 1 }

// LineCol converts a 0-based byte offset into a 1-based (line, column)
// pair. Column is rune-based, matching the Stub-AST's col_start/col_end
// convention (§3).
func (b *Buffer) LineCol(offset int) (line, col int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(b.data) {
		offset = len(b.data)
	}
	lineIdx := sort.Search(len(b.lineStart), func(i int) bool {
		return b.lineStart[i] > offset
	}) - 1
	if lineIdx < 0 {
		lineIdx = 0
	}
	start := b.lineStart[lineIdx]
	col = utf8.RuneCount(b.data[start:offset]) + 1
	return lineIdx + 1, col
}

// Offset converts a 1-based (line, column) pair back into a 0-based
// byte offset. Invariant (§3): line 1 begins at offset 0.
func (b *Buffer) Offset(line, col int) int {
	if line < 1 {
		line = 1
	}
	if line > len(b.lineStart) {
		return len(b.data)
	}
	start := b.lineStart[line-1]
	end := len(b.data)
	if line < len(b.lineStart) {
		end = b.lineStart[line] - 1
	}
	offset := start
	remaining := col - 1
	for offset < end && remaining > 0 {
		_, sz := utf8.DecodeRune(b.data[offset:])
		offset += sz
		remaining--
	}
	return offset
}

// LineRange returns the [start,end) byte offsets of a 1-based line
// number, end exclusive of the terminating newline.
func (b *Buffer) LineRange(line int) (start, end int) {
	if line < 1 {
		line = 1
	}
	if line > len(b.lineStart) {
		return len(b.data), len(b.data)
	}
	start = b.lineStart[line-1]
	end = len(b.data)
	if line < len(b.lineStart) {
		end = b.lineStart[line] - 1
	}
	return start, end
}

// Slice returns the text between two 0-based byte offsets.
func (b *Buffer) Slice(start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(b.data) {
		end = len(b.data)
	}
	if start >= end {
		return ""
	}
	return string(b.data[start:end])
}

// Pos stringifies a (line, col) pair the way diagnostics want it:
// "file:line:col".
func Pos(file string, line, col int) string {
	return fmt.Sprintf("%s:%d:%d", file, line, col)
}
