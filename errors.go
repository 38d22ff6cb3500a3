package cclower

import (
	"fmt"

	"github.com/pkg/errors"
)

// DiagnosticKind enumerates the error taxonomy of §7. Kinds before
// SpanResolutionFailure are fatal: the pass aborts, the pipeline
// aborts, no output is written. SpanResolutionFailure and later kinds
// are recoverable: the one rewrite is skipped and the pass continues.
type DiagnosticKind int

const (
	SyntaxUnsupported DiagnosticKind = iota
	UseAfterMove
	CopyOfMoveOnly
	CaptureTypeUnknown
	SpanResolutionFailure
	InternalAllocationFailure
)

// Fatal reports whether a diagnostic of this kind must abort the
// pipeline, per the table in §7.
func (k DiagnosticKind) Fatal() bool {
	return k < SpanResolutionFailure
}

func (k DiagnosticKind) String() string {
	switch k {
	case SyntaxUnsupported:
		return "syntax unsupported"
	case UseAfterMove:
		return "use after move"
	case CopyOfMoveOnly:
		return "copy of move-only value"
	case CaptureTypeUnknown:
		return "capture type unknown"
	case SpanResolutionFailure:
		return "span resolution failure"
	case InternalAllocationFailure:
		return "internal allocation failure"
	default:
		return "unknown"
	}
}

// Diagnostic is the Go shape of a single pipeline error or warning
// (§7). File/Line/Col locate it in the original CC source; Production
// names the construct being lowered (e.g. a closure id or slice name)
// when the message alone wouldn't.
type Diagnostic struct {
	Kind       DiagnosticKind
	File       string
	Line, Col  int
	Message    string
	Production string
}

// Error implements the error interface so a Diagnostic can be returned
// directly from a pass, matching the teacher's ParsingError (errors.go)
// being a value that satisfies `error`.
func (d Diagnostic) Error() string {
	prefix := "error"
	if !d.Kind.Fatal() {
		prefix = "warning"
	}
	loc := Pos(d.File, d.Line, d.Col)
	if d.Production != "" {
		return fmt.Sprintf("%s: CC: %s (%s) @ %s", prefix, d.Message, d.Production, loc)
	}
	return fmt.Sprintf("%s: CC: %s @ %s", prefix, d.Message, loc)
}

// WrapFatal wraps a fatal diagnostic with a stack trace, the way
// ghjramos-aistore wraps internal errors crossing a package boundary
// with github.com/pkg/errors, so a `%+v` on a pipeline failure prints
// the originating pass's call stack instead of just the message.
func WrapFatal(d Diagnostic) error {
	return errors.WithStack(d)
}

// useAfterMoveDiagnostic builds the exact message shape scenario 6 of
// §8 requires: "error: CC: use after move of slice 'name'".
func useAfterMoveDiagnostic(file string, line, col int, name string) Diagnostic {
	return Diagnostic{
		Kind:    UseAfterMove,
		File:    file,
		Line:    line,
		Col:     col,
		Message: fmt.Sprintf("use after move of slice '%s'", name),
	}
}

func copyOfMoveOnlyDiagnostic(file string, line, col int, name string) Diagnostic {
	return Diagnostic{
		Kind:    CopyOfMoveOnly,
		File:    file,
		Line:    line,
		Col:     col,
		Message: fmt.Sprintf("copy of move-only slice '%s'", name),
	}
}

func captureTypeUnknownDiagnostic(file string, line, col int, closureID int, capture string) Diagnostic {
	return Diagnostic{
		Kind:       CaptureTypeUnknown,
		File:       file,
		Line:       line,
		Col:        col,
		Message:    fmt.Sprintf("cannot infer type of capture '%s'", capture),
		Production: fmt.Sprintf("closure #%d", closureID),
	}
}
