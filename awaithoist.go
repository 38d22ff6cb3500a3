package cclower

import (
	"fmt"
	"strings"
)

// hoistCandidate is one non-root `await` expression found inside an
// @async function's body.
type hoistCandidate struct {
	node       *Node
	start, end int // byte span of `await <expr>` in the current buffer
	insertAt   int // byte offset of the start of the enclosing statement's line
	line       int
}

// RunAwaitHoistPass is Component I (§4.5): lift every non-statement-
// root `await` into a preceding `intptr_t __cc_aw_l<line>_<k> = ...;`
// temporary, replacing the original span with the temporary's name.
func RunAwaitHoistPass(ctx *PassCtx, src []byte) ([]byte, error) {
	buf := NewBuffer(src)

	var candidates []hoistCandidate
	for _, n := range ctx.AST.NodesOfKind(KindAwait) {
		decl := ctx.AST.EnclosingDeclItem(n)
		if decl == nil || !decl.IsAsync() {
			continue
		}
		if isAwaitStatementRoot(buf, n) {
			continue
		}
		start, end, ok := awaitSpan(buf, n)
		if !ok {
			continue
		}
		lineStart, _ := buf.LineRange(n.LineStart)
		candidates = append(candidates, hoistCandidate{
			node: n, start: start, end: end, insertAt: lineStart, line: n.LineStart,
		})
	}
	if len(candidates) == 0 {
		return src, nil
	}

	// §4.5: "nested ones are emitted first (smallest insertion offset,
	// then descending start)" so an outer await's hoisted assignment
	// can reference an already-declared inner temporary.
	sortHoistCandidates(candidates)

	eb := NewEditBuffer(src)
	counters := map[int]int{}
	for _, c := range candidates {
		k := counters[c.line]
		counters[c.line] = k + 1
		tmp := fmt.Sprintf("__cc_aw_l%d_%d", c.line, k)
		exprText := buf.Slice(c.start, c.end)

		decl := fmt.Sprintf("intptr_t %s = 0;\n%s = %s;\n", tmp, tmp, exprText)
		if err := eb.Add(Edit{Start: c.insertAt, End: c.insertAt, Replacement: decl, Priority: 1, Tag: "await-hoist-decl"}); err != nil {
			continue
		}
		if err := eb.Add(Edit{Start: c.start, End: c.end, Replacement: tmp, Tag: "await-hoist-use"}); err != nil {
			continue
		}
	}

	return eb.Apply(), nil
}

func sortHoistCandidates(c []hoistCandidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && less(c[j], c[j-1]); j-- {
			c[j-1], c[j] = c[j], c[j-1]
		}
	}
}

func less(a, b hoistCandidate) bool {
	if a.insertAt != b.insertAt {
		return a.insertAt < b.insertAt
	}
	return a.start > b.start
}

// isAwaitStatementRoot reports whether an AWAIT node is already at
// statement root, `x = await …`, or `return await …` (§4.5) — the
// three positions the pass leaves alone.
func isAwaitStatementRoot(buf *Buffer, n *Node) bool {
	lineStart, _ := buf.LineRange(n.LineStart)
	before := strings.TrimSpace(buf.Slice(lineStart, buf.Offset(n.LineStart, n.ColStart)))
	if before == "" {
		return true
	}
	if strings.HasSuffix(before, "=") && !strings.HasSuffix(before, "==") {
		return true
	}
	if before == "return" {
		return true
	}
	return false
}

// awaitSpan recovers the byte span of `await <expr>`, scanning forward
// from the node's column anchor to the end of the expression (up to
// the statement-terminating `;`, `)`, or `,` at depth 0).
func awaitSpan(buf *Buffer, n *Node) (int, int, bool) {
	if n.ColStart <= 0 {
		return 0, 0, false
	}
	start := buf.Offset(n.LineStart, n.ColStart)
	_, end := buf.LineRange(n.LineEnd)

	text := buf.Slice(start, end)
	depth := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(', '[':
			depth++
		case ')', ']':
			if depth == 0 {
				return start, start + i, true
			}
			depth--
		case ',', ';':
			if depth == 0 {
				return start, start + i, true
			}
		}
	}
	return start, end, true
}
