package cclower

import (
	"sort"

	"github.com/pkg/errors"
)

// Edit is the non-first-class-but-behaviorally-present unit every pass
// yields (§3, Data Model: "Edit"). start/end are 0-based byte offsets
// into the buffer the edit was computed against.
type Edit struct {
	Start       int
	End         int
	Replacement string
	Priority    int
	Tag         string
}

// EditBuffer accumulates non-overlapping edits against one source
// buffer and applies them in a single descending-offset sweep. This is
// the §9 design note's preferred alternative to chaining passes through
// ad-hoc shadow buffers: every pass still returns a new owned []byte
// (§5: buffers are owned exclusively by the pipeline), but computes it
// by recording edits here rather than splicing strings by hand.
type EditBuffer struct {
	src   []byte
	edits []Edit
}

// NewEditBuffer starts a fresh edit set over src. src is not copied;
// it must not be mutated while the EditBuffer is in use.
func NewEditBuffer(src []byte) *EditBuffer {
	return &EditBuffer{src: src}
}

// Add records e. It returns an error if e overlaps a previously added
// edit — callers that want "first edit wins, skip fully-contained
// later hits" (the UFCS Pass's idempotence rule, §4.1) should check
// Overlaps first and silently skip instead of calling Add.
func (eb *EditBuffer) Add(e Edit) error {
	if eb.Overlaps(e.Start, e.End) {
		return errors.Errorf("edit buffer: overlapping edit [%d,%d) tag=%s", e.Start, e.End, e.Tag)
	}
	eb.edits = append(eb.edits, e)
	return nil
}

// Overlaps reports whether [start,end) intersects any edit already
// recorded. Passes use this to implement "already-rewritten spans are
// recorded and fully-contained later hits are skipped" (§4.1).
func (eb *EditBuffer) Overlaps(start, end int) bool {
	for _, e := range eb.edits {
		if start < e.End && e.Start < end {
			return true
		}
	}
	return false
}

// Len returns the number of recorded edits.
func (eb *EditBuffer) Len() int { return len(eb.edits) }

// Apply produces the rewritten buffer. Edits are sorted by descending
// start offset and spliced in one sweep, so earlier edits never
// invalidate the byte offsets of edits still to be applied — this is
// the "one descending-offset sweep" construction the §9 design note
// recommends in place of re-deriving offsets after every single edit.
func (eb *EditBuffer) Apply() []byte {
	ordered := make([]Edit, len(eb.edits))
	copy(ordered, eb.edits)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Start != ordered[j].Start {
			return ordered[i].Start > ordered[j].Start
		}
		return ordered[i].Priority > ordered[j].Priority
	})

	out := append([]byte(nil), eb.src...)
	for _, e := range ordered {
		start, end := e.Start, e.End
		if start < 0 {
			start = 0
		}
		if end > len(out) {
			end = len(out)
		}
		if start > end {
			continue
		}
		tail := append([]byte(nil), out[end:]...)
		out = append(out[:start:start], []byte(e.Replacement)...)
		out = append(out, tail...)
	}
	return out
}
