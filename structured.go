package cclower

import (
	"fmt"
	"regexp"
	"strings"
)

// DeferItem is MODULE K's per-scope bookkeeping record (§3): a
// registered `@defer` statement, active until `cancel name;` clears it
// or its scope closes and it fires.
type DeferItem struct {
	ScopeDepth   int
	Active       bool
	Line         int
	OptionalName string
	StmtText     string
}

var arenaOpenRe = regexp.MustCompile(`^\s*@arena\s+([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.+?)\s*\{\s*$`)
var nurseryOpenRe = regexp.MustCompile(`^\s*@nursery\s*\{\s*$`)
var deferRe = regexp.MustCompile(`^\s*@defer\s+(?:([A-Za-z_][A-Za-z0-9_]*)\s*:\s*)?(.+?;)\s*$`)
var cancelRe = regexp.MustCompile(`^\s*cancel\s+([A-Za-z_][A-Za-z0-9_]*)\s*;\s*$`)
var spawnRe = regexp.MustCompile(`^(\s*)spawn\(\s*(.*?)\s*\)\s*;\s*$`)

type openScope struct {
	kind       int // scopeArena or scopeNursery
	braceDepth int
	varName    string // arena pointer name, or nursery var name
	id         int
}

const (
	scopeArena = iota
	scopeNursery
)

// RunStructuredLoweringPass is Component K (§4.7): the line-driven
// arena/nursery/defer/spawn transforms, tracked against brace depth so
// each construct's epilogue lands on its own matching close brace.
func RunStructuredLoweringPass(ctx *PassCtx, src []byte) ([]byte, error) {
	buf := NewBuffer(src)
	lineCount := buf.Newlines() + 1

	var out strings.Builder
	var openScopes []openScope
	var defers []DeferItem
	braceDepth := 0

	for lineNo := 1; lineNo <= lineCount; lineNo++ {
		start, end := buf.LineRange(lineNo)
		line := string(src[start:end])
		trimmed := strings.TrimSpace(line)

		if m := arenaOpenRe.FindStringSubmatch(trimmed); m != nil {
			id := ctx.IDs.Next()
			name, sizeExpr := m[1], m[2]
			fmt.Fprintf(&out, "{ CCArena __cc_arena%d = cc_heap_arena(%s); CCArena* %s = &__cc_arena%d;\n", id, sizeExpr, name, id)
			braceDepth++
			openScopes = append(openScopes, openScope{kind: scopeArena, braceDepth: braceDepth, varName: fmt.Sprintf("__cc_arena%d", id), id: id})
			continue
		}

		if nurseryOpenRe.MatchString(trimmed) {
			id := ctx.IDs.Next()
			fmt.Fprintf(&out, "CCNursery* __cc_nursery%d = cc_nursery_create(); assert(__cc_nursery%d); {\n", id, id)
			braceDepth++
			openScopes = append(openScopes, openScope{kind: scopeNursery, braceDepth: braceDepth, varName: fmt.Sprintf("__cc_nursery%d", id), id: id})
			ctx.NurseryDepth[id] = braceDepth
			continue
		}

		if m := deferRe.FindStringSubmatch(trimmed); m != nil {
			defers = append(defers, DeferItem{
				ScopeDepth: braceDepth, Active: true, Line: lineNo,
				OptionalName: m[1], StmtText: m[2],
			})
			continue // the statement itself fires later, at scope close, in LIFO order
		}

		if m := cancelRe.FindStringSubmatch(trimmed); m != nil {
			name := m[1]
			for i := range defers {
				if defers[i].OptionalName == name && defers[i].Active {
					defers[i].Active = false
				}
			}
			continue
		}

		if m := spawnRe.FindStringSubmatch(line); m != nil {
			indent, expr := m[1], m[2]
			nurseryVar := ""
			for i := len(openScopes) - 1; i >= 0; i-- {
				if openScopes[i].kind == scopeNursery {
					nurseryVar = openScopes[i].varName
					break
				}
			}
			if nurseryVar == "" {
				// §4.7 / §9 open question 1: the intended semantics of a
				// spawn outside any nursery scope (implicit root nursery?
				// reject?) is undocumented; emit the TODO marker rather
				// than guess.
				fmt.Fprintf(&out, "%s/* TODO: spawn outside nursery */ spawn(%s);\n", indent, expr)
				continue
			}
			rendered, handled := renderSpawn(ctx, buf, lineNo, indent, expr, nurseryVar)
			if handled {
				out.WriteString(rendered)
				continue
			}
		}

		// track brace depth through the rest of the line and fire
		// defers/epilogues at matching close braces
		i := 0
		for i < len(line) {
			c := line[i]
			if c == '{' {
				braceDepth++
			} else if c == '}' {
				epilogue := closeScopeEpilogue(&openScopes, &defers, braceDepth)
				braceDepth--
				if epilogue != "" {
					out.WriteString(epilogue)
				}
			}
			i++
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}

	// every source line, including the empty one after a trailing
	// newline, was written followed by '\n'; drop the one extra
	return []byte(strings.TrimSuffix(out.String(), "\n")), nil
}

// closeScopeEpilogue returns the epilogue text to emit immediately
// before the closing brace at the current depth: first any active
// defers registered at this depth (LIFO), then the arena/nursery
// epilogue if this depth opened one (§4.7).
func closeScopeEpilogue(openScopes *[]openScope, defers *[]DeferItem, depth int) string {
	var b strings.Builder
	for i := len(*defers) - 1; i >= 0; i-- {
		d := (*defers)[i]
		if d.ScopeDepth == depth && d.Active {
			b.WriteString(d.StmtText)
			b.WriteByte('\n')
			(*defers)[i].Active = false
		}
	}
	if n := len(*openScopes); n > 0 && (*openScopes)[n-1].braceDepth == depth {
		sc := (*openScopes)[n-1]
		*openScopes = (*openScopes)[:n-1]
		switch sc.kind {
		case scopeArena:
			fmt.Fprintf(&b, "cc_heap_arena_free(&%s);\n", sc.varName)
		case scopeNursery:
			fmt.Fprintf(&b, "cc_nursery_wait(%s); cc_nursery_free(%s);\n", sc.varName, sc.varName)
		}
	}
	return b.String()
}

// renderSpawn implements §4.7's spawn(...) shape dispatch.
func renderSpawn(ctx *PassCtx, buf *Buffer, lineNo int, indent, expr, nurseryVar string) (string, bool) {
	// spawn(() => { ... }) — a pre-scanned closure literal on this line
	for _, cd := range ctx.Closures {
		if cd.StartLine == lineNo {
			args := make([]string, 0, len(cd.Captures))
			for i, c := range cd.Captures {
				if cd.CaptureFlags[i]&CaptureMoveOnly != 0 {
					args = append(args, fmt.Sprintf("cc_move(%s)", c))
				} else {
					args = append(args, c)
				}
			}
			return fmt.Sprintf("%s{ CCClosure0 __c = __cc_closure_make_%d(%s); cc_nursery_spawn_closure0(%s, __c); }\n",
				indent, cd.Id, strings.Join(args, ", "), nurseryVar), true
		}
	}

	args := splitArgs(expr)
	if len(args) == 0 {
		return "", false
	}
	switch len(args) {
	case 1:
		// spawn(c) / spawn(cc_closure0_make(...)) / spawn(fn())
		if call := strings.TrimSpace(args[0]); looksLikeBareCall(call) && !strings.HasPrefix(call, "cc_closure") {
			m := bareCallRe.FindStringSubmatch(call)
			arg := strings.TrimSpace(m[2])
			if arg == "" {
				arg = "0"
			}
			return fmt.Sprintf("%s{ __cc_spawn_thunk* __t = (__cc_spawn_thunk*)malloc(sizeof(__cc_spawn_thunk)); __t->fn = (void*)%s; __t->arg = (intptr_t)(%s); cc_nursery_spawn(%s, __cc_spawn_thunk_run, __t); }\n",
				indent, m[1], arg, nurseryVar), true
		}
		return fmt.Sprintf("%s{ CCClosure0 __c = %s; cc_nursery_spawn_closure0(%s, __c); }\n", indent, args[0], nurseryVar), true
	case 2:
		return fmt.Sprintf("%s{ CCClosure1 __c = %s; cc_nursery_spawn_closure1(%s, __c, (intptr_t)(%s)); }\n",
			indent, args[0], nurseryVar, args[1]), true
	case 3:
		return fmt.Sprintf("%s{ CCClosure2 __c = %s; cc_nursery_spawn_closure2(%s, __c, (intptr_t)(%s), (intptr_t)(%s)); }\n",
			indent, args[0], nurseryVar, args[1], args[2]), true
	}
	return "", false
}

var bareCallRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*\(([^)]*)\)$`)

func looksLikeBareCall(expr string) bool {
	return bareCallRe.MatchString(strings.TrimSpace(expr))
}
