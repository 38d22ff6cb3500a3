package cclower

import (
	"regexp"
	"strings"
)

// Slice flag bits (§3, Slice Value): low 3 bits of the 64-bit id.
const (
	SliceUnique      = 1 << 0
	SliceTransferable = 1 << 1
	SliceSubslice    = 1 << 2
)

// movedSet tracks moved slice names keyed by the scope depth their
// declaration lives at (§4.3 algorithm), so popping a scope clears
// every moved mark declared within it along with the declarations
// themselves (§9: "ownership of scope stacks").
type movedSet struct {
	byDepth map[int]map[string]bool
}

func newMovedSet() *movedSet {
	return &movedSet{byDepth: map[int]map[string]bool{}}
}

func (m *movedSet) mark(name string, depth int) {
	if m.byDepth[depth] == nil {
		m.byDepth[depth] = map[string]bool{}
	}
	m.byDepth[depth][name] = true
}

func (m *movedSet) clear(name string, depth int) {
	if s := m.byDepth[depth]; s != nil {
		delete(s, name)
	}
}

func (m *movedSet) isMoved(name string, depth int) bool {
	s := m.byDepth[depth]
	return s != nil && s[name]
}

func (m *movedSet) dropDepth(depth int) {
	delete(m.byDepth, depth)
}

var ccMoveCallRe = regexp.MustCompile(`\bcc_move\(\s*([A-Za-z_][A-Za-z0-9_]*)\s*\)`)
var assignRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=\s*([^=].*?);?\s*$`)
var stringOrCharLitRe = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'`)

// RunSliceCheckPass is Component G (§4.3): walk the source line by
// line over a scope-stack of declarations, marking move-only slices
// moved by `cc_move(x)` or by capture into a closure literal, and
// reporting any subsequent read of a moved name as a use-after-move,
// or any bare copy of a move-only rvalue as a copy-of-move-only error.
//
// This pass never rewrites source; it only validates it, so it returns
// its input unchanged on success and a fatal Diagnostic error otherwise
// (§7: "pipeline aborts" on ownership errors).
func RunSliceCheckPass(ctx *PassCtx, src []byte) ([]byte, error) {
	buf := NewBuffer(src)
	scopes := newScopeStack()
	moved := newMovedSet()

	text := string(src)
	lineCount := buf.Newlines() + 1
	for lineNo := 1; lineNo <= lineCount; lineNo++ {
		start, end := buf.LineRange(lineNo)
		line := text[start:end]
		masked := maskLiterals(line)

		// closure end-of-body move application: any closure whose
		// EndLine is the previous line implicitly moves its move-only
		// slice captures from this line on, at the capture's own
		// declaration depth.
		for _, cd := range ctx.Closures {
			if cd.EndLine != lineNo-1 {
				continue
			}
			for i, c := range cd.Captures {
				if cd.CaptureFlags[i]&CaptureMoveOnly != 0 {
					if _, d, ok := scopes.lookup(c); ok {
						moved.mark(c, d)
					}
				}
			}
		}

		for _, ch := range masked {
			switch ch {
			case '{':
				scopes.push()
			case '}':
				moved.dropDepth(scopes.depth())
				scopes.pop()
			}
		}

		if decl, _, ok := matchDeclaration(masked, 0, len(masked)); ok && decl.name != "" {
			scopes.declare(decl.name, decl.typeName, decl.flags)
		}

		if mv := ccMoveCallRe.FindStringSubmatch(masked); mv != nil {
			name := mv[1]
			if info, d, ok := scopes.lookup(name); ok && isSliceFlagged(info) {
				moved.mark(name, d)
			}
			continue
		}

		if as := assignRe.FindStringSubmatch(masked); as != nil {
			lhs, rhs := as[1], strings.TrimSpace(as[2])
			if info, d, ok := scopes.lookup(lhs); ok {
				if moved.isMoved(lhs, d) {
					moved.clear(lhs, d)
				}
				if isSliceFlagged(info) && rhsIsMoveOnlyCopy(scopes, rhs) {
					_, col := buf.LineCol(start)
					return nil, WrapFatal(copyOfMoveOnlyDiagnostic(ctx.File, lineNo, col, lhs))
				}
			}
			if diag, isErr := checkReads(ctx, scopes, moved, masked, lineNo, buf, start); isErr {
				return nil, WrapFatal(diag)
			}
			continue
		}

		if diag, isErr := checkReads(ctx, scopes, moved, masked, lineNo, buf, start); isErr {
			return nil, WrapFatal(diag)
		}
	}

	return src, nil
}

func isSliceFlagged(info declInfo) bool {
	return info.typeName == "CCSlice" && info.flags&CaptureMoveOnly != 0
}

// rhsIsMoveOnlyCopy reports whether rhs reads a move-only slice name
// directly (not wrapped in cc_move(...)), which the pass treats as a
// copy-of-move-only error (§4.3).
func rhsIsMoveOnlyCopy(scopes *scopeStack, rhs string) bool {
	if !isPlainIdentifier(rhs) {
		return false
	}
	info, _, ok := scopes.lookup(strings.TrimSpace(rhs))
	return ok && isSliceFlagged(info)
}

// checkReads scans every identifier reference on the line (excluding
// one already consumed as an assignment target or cc_move argument)
// and flags a read of a currently-moved name.
func checkReads(ctx *PassCtx, scopes *scopeStack, moved *movedSet, masked string, lineNo int, buf *Buffer, lineStart int) (Diagnostic, bool) {
	for _, loc := range identTokRe.FindAllStringIndex(masked, -1) {
		name := masked[loc[0]:loc[1]]
		if keywordToks[name] {
			continue
		}
		if _, d, ok := scopes.lookup(name); ok {
			if moved.isMoved(name, d) {
				_, col := buf.LineCol(lineStart + loc[0])
				return useAfterMoveDiagnostic(ctx.File, lineNo, col, name), true
			}
		}
	}
	return Diagnostic{}, false
}

// maskLiterals blanks out string/char literal contents (preserving
// length and quote delimiters) so later regex scans never treat
// literal text as identifiers (§4.3: "strings and character literals
// are skipped").
func maskLiterals(line string) string {
	return stringOrCharLitRe.ReplaceAllStringFunc(line, func(m string) string {
		if len(m) <= 2 {
			return m
		}
		return m[:1] + strings.Repeat("_", len(m)-2) + m[len(m)-1:]
	})
}
