package cclower

import "regexp"

// markerRe matches one of the three attribute markers, with its
// trailing space, only when followed by a word boundary (§4.8) —
// never mid-identifier, e.g. inside `@asyncish`.
var markerRe = regexp.MustCompile(`@(?:async|noblock|latency_sensitive)\s+`)

// RunMarkerStripPass is Component L (§4.8), the final byte-level pass:
// strip residual `@async`/`@noblock`/`@latency_sensitive` markers so
// the emitted text is valid C. Idempotent: once stripped, a second run
// finds nothing left to remove.
func RunMarkerStripPass(ctx *PassCtx, src []byte) ([]byte, error) {
	return markerRe.ReplaceAll(src, nil), nil
}
