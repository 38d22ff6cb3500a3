package cclower

import (
	"fmt"
	"regexp"
	"strings"
)

var stmtCallRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*\(([^;]*)\)\s*;\s*$`)
var returnCallRe = regexp.MustCompile(`^\s*return\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(([^;]*)\)\s*;\s*$`)
var assignCallRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_.\[\]]*)\s*=\s*([A-Za-z_][A-Za-z0-9_]*)\s*\(([^;]*)\)\s*;\s*$`)
var returnExprCallRe = regexp.MustCompile(`^(\s*return\s+.*?)\b([A-Za-z_][A-Za-z0-9_]*)\s*\(([^;]*)\)(.*;)\s*$`)
var assignExprCallRe = regexp.MustCompile(`^(\s*[A-Za-z_][A-Za-z0-9_.\[\]]*\s*=\s*.*?)\b([A-Za-z_][A-Za-z0-9_]*)\s*\(([^;]*)\)(.*;)\s*$`)

// paramSig is one parameter of a DECL_ITEM's recovered signature
// (§4.4: "parsed from DECL_ITEM.aux_s2").
type paramSig struct {
	typeName string
}

var sigParamRe = regexp.MustCompile(`\(([^)]*)\)`)

// parseSignaturePrefix recovers the parameter type list from a
// DECL_ITEM's aux_s2 (its declared "signature prefix including
// parameter list"). Returns nil, false if aux_s2 is absent or has no
// parenthesized parameter list.
func parseSignaturePrefix(sig string) ([]paramSig, bool) {
	if sig == "" {
		return nil, false
	}
	m := sigParamRe.FindStringSubmatch(sig)
	if m == nil {
		return nil, false
	}
	inner := strings.TrimSpace(m[1])
	if inner == "" || inner == "void" {
		return []paramSig{}, true
	}
	var out []paramSig
	for _, p := range splitArgs(inner) {
		fields := strings.Fields(strings.TrimSpace(p))
		if len(fields) == 0 {
			continue
		}
		out = append(out, paramSig{typeName: strings.Join(fields[:len(fields)-1], " ")})
	}
	return out, true
}

func returnTypeFromSig(sig string) string {
	idx := strings.Index(sig, "(")
	if idx < 0 {
		return strings.TrimSpace(sig)
	}
	return strings.TrimSpace(sig[:idx])
}

func isStructOrVoidReturn(t string) bool {
	t = strings.TrimSpace(t)
	return t == "" || t == "void" || strings.HasPrefix(t, "struct ") || strings.HasPrefix(t, "CC") && strings.HasSuffix(t, "Value")
}

// RunAutoBlockingPass is Component H (§4.4). Only active inside
// functions carrying @async; wraps each call to a synchronous,
// non-@noblock callee in `await cc_run_blocking_task_intptr(closure)`.
func RunAutoBlockingPass(ctx *PassCtx, src []byte) ([]byte, error) {
	buf := NewBuffer(src)
	eb := NewEditBuffer(src)

	for _, decl := range ctx.AST.NodesOfKind(KindDeclItem) {
		if !decl.IsAsync() {
			continue
		}
		lineCount := buf.Newlines() + 1
		lo, hi := decl.LineStart, decl.LineEnd
		if hi == 0 || hi > lineCount {
			hi = lineCount
		}

		pendingStart := -1
		var pendingStmts []string
		flush := func(uptoLine int) {
			if pendingStart < 0 {
				return
			}
			emitBatch(eb, buf, pendingStart, uptoLine, pendingStmts)
			pendingStart = -1
			pendingStmts = nil
		}

		for line := lo; line <= hi; line++ {
			start, end := buf.LineRange(line)
			text := string(src[start:end])
			trimmed := strings.TrimSpace(text)
			if trimmed == "" || strings.HasPrefix(trimmed, "//") {
				flush(line)
				continue
			}

			callee, args, kind, lhs, ok := classifyAutoBlockStmt(trimmed)
			if !ok || !shouldAutoBlock(ctx, callee) {
				flush(line)
				continue
			}

			stmt := buildAutoBlockStmt(ctx, callee, args, kind, lhs)
			if stmt == "" {
				flush(line)
				continue
			}
			if pendingStart < 0 {
				pendingStart = line
			}
			pendingStmts = append(pendingStmts, stmt)
		}
		flush(hi + 1)
	}

	return eb.Apply(), nil
}

const (
	kindStmt = iota
	kindReturn
	kindAssign
	kindReturnExpr
	kindAssignExpr
)

func classifyAutoBlockStmt(trimmed string) (callee, args string, kind int, lhs string, ok bool) {
	if m := stmtCallRe.FindStringSubmatch(trimmed); m != nil {
		return m[1], m[2], kindStmt, "", true
	}
	if m := returnCallRe.FindStringSubmatch(trimmed); m != nil {
		return m[1], m[2], kindReturn, "", true
	}
	if m := assignCallRe.FindStringSubmatch(trimmed); m != nil {
		return m[2], m[3], kindAssign, m[1], true
	}
	// return_expr_call / assign_expr_call (§4.4): the call is embedded
	// in a larger return/assignment expression, not the statement root.
	if m := returnExprCallRe.FindStringSubmatch(trimmed); m != nil {
		return m[2], m[3], kindReturnExpr, m[1] + "\x00" + m[4], true
	}
	if m := assignExprCallRe.FindStringSubmatch(trimmed); m != nil {
		return m[2], m[3], kindAssignExpr, m[1] + "\x00" + m[4], true
	}
	return "", "", 0, "", false
}

func shouldAutoBlock(ctx *PassCtx, callee string) bool {
	if callee == "" {
		return false
	}
	return !ctx.Symbols.IsAsync(callee) && !ctx.Symbols.IsNoBlock(callee)
}

// buildAutoBlockStmt implements the §4.4 lowering schema for the
// stmt/return/assign forms, binding arguments into CCAbIntptr locals
// and producing a single `await cc_run_blocking_task_intptr(...)` call.
func buildAutoBlockStmt(ctx *PassCtx, callee, argsText string, kind int, lhs string) string {
	args := splitArgs(argsText)
	sigNode := findDeclByName(ctx, callee)
	var sig []paramSig
	var hasSig bool
	if sigNode != nil {
		sig, hasSig = parseSignaturePrefix(sigNode.SignaturePrefix())
	}
	if !hasSig && len(args) > 0 {
		return "" // §4.4 restriction: no signature, don't rewrite
	}

	id := ctx.IDs.Next()
	var b strings.Builder
	argNames := make([]string, len(args))
	capturedNames := make([]string, len(args))
	captureTypes := make([]string, len(args))
	for i, a := range args {
		name := fmt.Sprintf("__cc_ab_arg%d_%d", i, id)
		typeName := "intptr_t"
		if i < len(sig) {
			typeName = sig[i].typeName
		}
		fmt.Fprintf(&b, "CCAbIntptr %s = (CCAbIntptr)(intptr_t)(%s); ", name, a)
		argNames[i] = fmt.Sprintf("(%s)%s", typeName, name)
		capturedNames[i] = name
		captureTypes[i] = "CCAbIntptr"
	}

	call := fmt.Sprintf("%s(%s)", callee, strings.Join(argNames, ", "))
	retType := "void"
	if sigNode != nil {
		if rt := returnTypeFromSig(sigNode.SignaturePrefix()); rt != "" {
			retType = rt
		}
	}

	// The closure entry is a file-scope function emitted by the Emitter,
	// long after this @async function's frame is gone, so the bound
	// __cc_ab_arg* locals must travel through the env like any other
	// capture rather than being referenced across scopes.
	ctx.Closures = append(ctx.Closures, &ClosureDescriptor{
		Id:           id,
		ParamCount:   0,
		Captures:     capturedNames,
		CaptureTypes: captureTypes,
		CaptureFlags: make([]int, len(args)),
		Body:         autoBlockClosureBody(call, kind, retType),
	})

	factoryArgs := strings.Join(capturedNames, ", ")
	switch kind {
	case kindStmt:
		fmt.Fprintf(&b, "await cc_run_blocking_task_intptr(__cc_closure_make_%d(%s));", id, factoryArgs)
	case kindReturn:
		fmt.Fprintf(&b, "return (void*)(intptr_t)await cc_run_blocking_task_intptr(__cc_closure_make_%d(%s));", id, factoryArgs)
	case kindAssign:
		fmt.Fprintf(&b, "%s = (void*)(intptr_t)await cc_run_blocking_task_intptr(__cc_closure_make_%d(%s));", lhs, id, factoryArgs)
	case kindReturnExpr, kindAssignExpr:
		parts := strings.SplitN(lhs, "\x00", 2)
		prefix, suffix := parts[0], parts[1]
		fmt.Fprintf(&b, "%s(void*)(intptr_t)await cc_run_blocking_task_intptr(__cc_closure_make_%d(%s))%s", prefix, id, factoryArgs, suffix)
	}
	return b.String()
}

// autoBlockClosureBody renders the body run on the blocking executor:
// the original call, with its result cast back to intptr_t for the
// return/assign forms (§4.4).
func autoBlockClosureBody(call string, kind int, retType string) string {
	switch kind {
	case kindStmt:
		return fmt.Sprintf("{ %s; }", call)
	default:
		if isStructOrVoidReturn(retType) {
			return fmt.Sprintf("{ %s; }", call)
		}
		return fmt.Sprintf("{ return (void*)(intptr_t)(%s); }", call)
	}
}

func findDeclByName(ctx *PassCtx, name string) *Node {
	for _, n := range ctx.AST.NodesOfKind(KindDeclItem) {
		if n.DeclaredName() == name {
			return n
		}
	}
	return nil
}

func emitBatch(eb *EditBuffer, buf *Buffer, fromLine, toLine int, stmts []string) {
	if len(stmts) == 0 {
		return
	}
	start, _ := buf.LineRange(fromLine)
	_, end := buf.LineRange(toLine - 1)
	repl := strings.Join(stmts, " ")
	if eb.Overlaps(start, end) {
		return
	}
	_ = eb.Add(Edit{Start: start, End: end, Replacement: repl, Tag: "auto-block"})
}
