package cclower

// Diagnostics collects the non-fatal Diagnostic values a pass emits
// (span-resolution failures, skipped rewrites, §7) without aborting
// the pipeline. This is the §4.10 supplement: spec.md's error taxonomy
// already implies the fatal/skip split; Diagnostics gives it a home in
// PassCtx instead of silently dropping skip-class diagnostics on the
// floor, which is what a bare `error` return would force.
type Diagnostics struct {
	items []Diagnostic
}

// Add appends a non-fatal diagnostic. Fatal diagnostics must never be
// added here — they are returned as an error instead (see errors.go).
func (d *Diagnostics) Add(diag Diagnostic) {
	d.items = append(d.items, diag)
}

// All returns every diagnostic recorded so far, in emission order.
func (d *Diagnostics) All() []Diagnostic {
	return d.items
}

// Empty reports whether no diagnostics have been recorded.
func (d *Diagnostics) Empty() bool { return len(d.items) == 0 }
