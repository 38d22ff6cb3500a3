package cclower

import (
	"fmt"
	"regexp"
	"strings"
)

var trivialReturnRe = regexp.MustCompile(`(?s)^\s*\{\s*return\s+(.*?);\s*\}\s*$`)
var trivialAwaitReturnRe = regexp.MustCompile(`^await\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(\s*\)\s*$`)

// RunAsyncLoweringPass is Component J (§4.6): rewrite any @async
// function whose body is exactly `{ return expr; }` or
// `{ return await callee(); }` into a poll-based state machine: three
// states for the await form, two for the plain-expression form.
// Line-preserving: if the dense replacement needs more source lines
// than the original occupied, the rewrite is skipped and the function
// is left untouched (§4.6).
func RunAsyncLoweringPass(ctx *PassCtx, src []byte) ([]byte, error) {
	buf := NewBuffer(src)
	eb := NewEditBuffer(src)

	for _, decl := range ctx.AST.NodesOfKind(KindDeclItem) {
		if !decl.IsAsync() {
			continue
		}
		bodyStart, bodyEnd, ok := declBodySpan(buf, decl)
		if !ok {
			continue
		}
		bodyText := buf.Slice(bodyStart, bodyEnd)

		var inner string
		isAwaitForm := false
		if m := trivialReturnRe.FindStringSubmatch(bodyText); m != nil {
			expr := strings.TrimSpace(m[1])
			if am := trivialAwaitReturnRe.FindStringSubmatch(expr); am != nil {
				inner = am[1]
				isAwaitForm = true
			} else {
				inner = expr
			}
		} else {
			continue
		}

		id := ctx.IDs.Next()
		name := decl.DeclaredName()
		original := buf.Slice(declLineSpanStart(buf, decl), bodyEnd)
		originalLines := strings.Count(original, "\n") + 1

		replacement := renderStateMachine(name, id, inner, isAwaitForm)
		replLines := strings.Count(replacement, "\n") + 1
		if replLines > originalLines {
			continue // §4.6: skip rather than grow the line count
		}
		for replLines < originalLines {
			replacement += "\n"
			replLines++
		}

		if eb.Overlaps(declLineSpanStart(buf, decl), bodyEnd) {
			continue
		}
		_ = eb.Add(Edit{Start: declLineSpanStart(buf, decl), End: bodyEnd, Replacement: replacement, Tag: "async-lower"})
	}

	return eb.Apply(), nil
}

// declLineSpanStart returns the byte offset of the start of decl's
// declaration line (used as the replacement span's left edge).
func declLineSpanStart(buf *Buffer, decl *Node) int {
	start, _ := buf.LineRange(decl.LineStart)
	return start
}

// declBodySpan finds the `{ ... }` body following a DECL_ITEM's
// signature, by brace-matching from the first `{` at or after the
// node's start.
func declBodySpan(buf *Buffer, decl *Node) (int, int, bool) {
	searchStart := buf.Offset(decl.LineStart, decl.ColStart)
	text := buf.Bytes()
	i := searchStart
	for i < len(text) && text[i] != '{' {
		if text[i] == ';' {
			return 0, 0, false // prototype, no body
		}
		i++
	}
	if i >= len(text) {
		return 0, 0, false
	}
	depth := 0
	start := i
	for i < len(text) {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return start, i + 1, true
			}
		}
		i++
	}
	return 0, 0, false
}

// renderStateMachine builds the dense replacement for one trivial
// @async function (§4.6).
func renderStateMachine(name string, id int, inner string, isAwaitForm bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "typedef struct { int state; CCTaskIntptr inner; intptr_t result; } __cc_async_frame_%d;\n", id)
	fmt.Fprintf(&b, "static int __cc_async_poll_%d(void* framep, intptr_t* out) {\n", id)
	fmt.Fprintf(&b, "  __cc_async_frame_%d* f = (__cc_async_frame_%d*)framep;\n", id, id)
	if isAwaitForm {
		fmt.Fprintf(&b, "  if (f->state == 0) { f->inner = %s(); f->state = 1; return CC_TASK_PENDING; }\n", inner)
		fmt.Fprintf(&b, "  if (f->state == 1) { intptr_t r; int s = cc_task_intptr_poll(f->inner, &r); if (s != CC_TASK_READY) return s; f->result = r; f->state = 2; return CC_TASK_PENDING; }\n")
		fmt.Fprintf(&b, "  *out = f->result; return CC_TASK_READY;\n")
	} else {
		fmt.Fprintf(&b, "  if (f->state == 0) { f->result = (intptr_t)(%s); f->state = 1; return CC_TASK_PENDING; }\n", inner)
		fmt.Fprintf(&b, "  *out = f->result; return CC_TASK_READY;\n")
	}
	b.WriteString("}\n")
	fmt.Fprintf(&b, "static void __cc_async_drop_%d(void* framep) {\n", id)
	if isAwaitForm {
		fmt.Fprintf(&b, "  __cc_async_frame_%d* f = (__cc_async_frame_%d*)framep; cc_task_intptr_free(f->inner); free(f);\n", id, id)
	} else {
		b.WriteString("  free(framep);\n")
	}
	b.WriteString("}\n")
	fmt.Fprintf(&b, "CCTaskIntptr %s(void) {\n", name)
	fmt.Fprintf(&b, "  __cc_async_frame_%d* f = (__cc_async_frame_%d*)malloc(sizeof(__cc_async_frame_%d));\n", id, id, id)
	b.WriteString("  f->state = 0;\n")
	fmt.Fprintf(&b, "  return cc_task_intptr_make_poll(__cc_async_poll_%d, f, __cc_async_drop_%d);\n", id, id)
	b.WriteString("}\n")
	return b.String()
}
