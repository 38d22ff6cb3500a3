package cclower

import (
	"fmt"
	"regexp"
	"strings"
)

// UfcsOptions carries the context a UFCS rewrite needs to pick between
// a call-returning and a task-returning channel operation (§4.1, rule
// 1). Per §5 and the §9 design note, this used to live in thread-local
// storage in the source implementation; here it is always an explicit
// parameter, never ambient state.
type UfcsOptions struct {
	// InAwait is true when the enclosing expression is an `await`,
	// selecting the task-returning channel variants.
	InAwait bool
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func isPlainIdentifier(s string) bool {
	return identifierRe.MatchString(strings.TrimSpace(s))
}

var channelOps = map[string]bool{
	"send": true, "recv": true, "send_take": true,
	"try_send": true, "try_recv": true, "close": true,
}

var stringOps = map[string]string{
	"as_slice":    "as_slice",
	"append":      "push",
	"push":        "push",
	"push_char":   "push_char",
	"push_int":    "push_int",
	"push_uint":   "push_uint",
	"push_float":  "push_float",
	"clear":       "clear",
}

var sliceOps = map[string]bool{
	"len": true, "trim": true, "trim_left": true, "trim_right": true,
	"is_empty": true, "at": true, "sub": true,
	"starts_with": true, "ends_with": true, "eq": true,
}

var sliceOpRequiredDefault = map[string]string{
	"at":          "0",
	"sub":         "0",
	"starts_with": "(CCSlice){0}",
	"ends_with":   "(CCSlice){0}",
	"eq":          "(CCSlice){0}",
}

// RunUFCSPass is Component E (§4.1). It rewrites every `<recv>.<method>(args)`
// / `<recv>-><method>(args)` span marked as a UFCS call in the stub AST
// into a free-function call, resolving chains into a statement-expression
// with one temporary per intermediate stage.
func RunUFCSPass(ctx *PassCtx, src []byte) ([]byte, error) {
	buf := NewBuffer(src)
	eb := NewEditBuffer(src)

	byLine := map[int][]*Node{}
	for _, n := range ctx.AST.NodesOfKind(KindCall) {
		if !n.IsUFCSCall() {
			continue
		}
		byLine[n.LineStart] = append(byLine[n.LineStart], n)
	}

	// Lines are visited in ascending order. Every span lies on a single
	// line (locateUFCSCall only resolves within the start line), so there
	// are no multi-line spans to order. Within a line each chain becomes
	// one edit, and EditBuffer.Apply splices the edits right-to-left.
	lines := make([]int, 0, len(byLine))
	for l := range byLine {
		lines = append(lines, l)
	}
	sortInts(lines)

	for _, line := range lines {
		nodes := byLine[line]
		chains := groupUFCSChains(buf, nodes)
		for _, chain := range chains {
			if err := rewriteUFCSChain(ctx, buf, eb, chain); err != nil {
				ctx.Diagnostics.Add(Diagnostic{
					Kind:    SpanResolutionFailure,
					File:    ctx.File,
					Line:    chain[0].node.LineStart,
					Message: err.Error(),
				})
			}
		}
	}

	return eb.Apply(), nil
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// ufcsCallSpan is one resolved `.method(args)` segment of a chain.
type ufcsCallSpan struct {
	node                  *Node
	recvStart, dotStart   int // [recvStart,dotStart) is the receiver text
	argStart, argEnd      int // (args) contents, exclusive of parens
	callEnd               int // one past the closing ')'
	isArrow               bool
}

// groupUFCSChains resolves every UFCS call on a line to its span, then
// groups adjacent calls into chains: call[k] chains onto call[k-1] when
// call[k]'s receiver span is exactly call[k-1]'s full call span (§4.1
// "Chain semantics").
func groupUFCSChains(buf *Buffer, nodes []*Node) [][]ufcsCallSpan {
	spans := make([]ufcsCallSpan, 0, len(nodes))
	for _, n := range nodes {
		sp, ok := locateUFCSCall(buf, n)
		if !ok {
			continue // span-resolution failure: silent skip (§7)
		}
		spans = append(spans, sp)
	}
	// order by call start ascending so chain grouping sees receivers
	// before their dependents
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j-1].recvStart > spans[j].recvStart; j-- {
			spans[j-1], spans[j] = spans[j], spans[j-1]
		}
	}

	var chains [][]ufcsCallSpan
	used := make([]bool, len(spans))
	for i := range spans {
		if used[i] {
			continue
		}
		chain := []ufcsCallSpan{spans[i]}
		used[i] = true
		cur := spans[i]
		progressed := true
		for progressed {
			progressed = false
			for j := range spans {
				if used[j] {
					continue
				}
				if spans[j].recvStart == cur.recvStart && spans[j].dotStart == cur.callEnd {
					chain = append(chain, spans[j])
					used[j] = true
					cur = spans[j]
					progressed = true
					break
				}
			}
		}
		chains = append(chains, chain)
	}
	return chains
}

// locateUFCSCall implements §4.1's "Span discovery": prefer the stub
// AST's column anchors when present, else perform the bounded scan
// (nth occurrence of the method token on the start line, balanced
// bracket walk for the receiver, balanced paren walk for the args).
func locateUFCSCall(buf *Buffer, n *Node) (ufcsCallSpan, bool) {
	lineStart, lineEnd := buf.LineRange(n.LineStart)
	lineText := buf.Slice(lineStart, lineEnd)

	// a chain that continues on the next line is left as written
	next := strings.TrimSpace(buf.Slice(buf.LineRange(n.LineStart + 1)))
	if strings.HasPrefix(next, ".") || strings.HasPrefix(next, "->") {
		return ufcsCallSpan{}, false
	}

	searchFrom, searchTo := 0, len(lineText)
	if n.ColStart > 0 && n.ColEnd > 0 {
		s := buf.Offset(n.LineStart, n.ColStart) - lineStart
		e := buf.Offset(n.LineEnd, n.ColEnd) - lineStart
		if s >= 0 && e <= len(lineText) && s < e {
			searchFrom, searchTo = s, e
		}
	}

	method := n.CalleeName()
	occurrence := n.Occurrence()
	if occurrence < 1 {
		occurrence = 1
	}

	dotIdx, isArrow, ok := findNthMethodDot(lineText, searchFrom, searchTo, method, occurrence)
	if !ok {
		return ufcsCallSpan{}, false
	}

	sepLen := 1
	if isArrow {
		sepLen = 2
	}
	methodStart := dotIdx + sepLen
	parenIdx := methodStart + len(method)
	if parenIdx >= len(lineText) || lineText[parenIdx] != '(' {
		return ufcsCallSpan{}, false
	}

	recvStart, ok := walkReceiverLeft(lineText, dotIdx)
	if !ok || recvStart == dotIdx {
		// no receiver on this line: the chain began on an earlier line
		return ufcsCallSpan{}, false
	}

	argStart := parenIdx + 1
	argEnd, ok := matchParen(lineText, parenIdx)
	if !ok {
		return ufcsCallSpan{}, false
	}

	return ufcsCallSpan{
		node:      n,
		recvStart: lineStart + recvStart,
		dotStart:  lineStart + dotIdx,
		argStart:  lineStart + argStart,
		argEnd:    lineStart + argEnd,
		callEnd:   lineStart + argEnd + 1,
		isArrow:   isArrow,
	}, true
}

// findNthMethodDot finds the nth occurrence (1-based) of `.method` or
// `->method` within lineText[from:to].
func findNthMethodDot(lineText string, from, to int, method string, occurrence int) (dotIdx int, isArrow bool, ok bool) {
	count := 0
	i := from
	for i < to {
		if lineText[i] == '.' && matchesAt(lineText, i+1, method) {
			count++
			if count == occurrence {
				return i, false, true
			}
			i++
			continue
		}
		if i+1 < to && lineText[i] == '-' && lineText[i+1] == '>' && matchesAt(lineText, i+2, method) {
			count++
			if count == occurrence {
				return i, true, true
			}
			i += 2
			continue
		}
		i++
	}
	return 0, false, false
}

func matchesAt(s string, pos int, tok string) bool {
	if pos+len(tok) > len(s) {
		return false
	}
	return s[pos:pos+len(tok)] == tok
}

// walkReceiverLeft walks left from dotIdx with balanced brackets,
// stopping at a top-level delimiter or newline (§4.1).
func walkReceiverLeft(lineText string, dotIdx int) (int, bool) {
	depth := 0
	i := dotIdx - 1
	const delims = ",;=+-*/%&|^!~<>?:"
	for i >= 0 {
		c := lineText[i]
		switch c {
		case ')', ']':
			depth++
		case '(', '[':
			if depth == 0 {
				return i + 1, true
			}
			depth--
		default:
			if depth == 0 && strings.IndexByte(delims, c) >= 0 {
				return i + 1, true
			}
			if depth == 0 && c == ' ' {
				return i + 1, true
			}
		}
		i--
	}
	return 0, true
}

// matchParen returns the index of the ')' matching the '(' at
// openIdx, skipping over string and char literals.
func matchParen(s string, openIdx int) (int, bool) {
	depth := 0
	i := openIdx
	for i < len(s) {
		c := s[i]
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, true
			}
		case '"', '\'':
			end := skipLiteral(s, i)
			if end < 0 {
				return 0, false
			}
			i = end
			continue
		}
		i++
	}
	return 0, false
}

func skipLiteral(s string, start int) int {
	quote := s[start]
	i := start + 1
	for i < len(s) {
		if s[i] == '\\' {
			i += 2
			continue
		}
		if s[i] == quote {
			return i
		}
		i++
	}
	return -1
}

// splitArgs splits a comma-separated argument list at top level (not
// inside nested parens/brackets/strings).
func splitArgs(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var args []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '"', '\'':
			if end := skipLiteral(s, i); end >= 0 {
				i = end
			}
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(s[last:i]))
				last = i + 1
			}
		}
	}
	args = append(args, strings.TrimSpace(s[last:]))
	return args
}

// addrExpr implements §4.1's address-of decision.
func addrExpr(recvText string, receiverIsPointer bool) string {
	recvText = strings.TrimSpace(recvText)
	if receiverIsPointer || !isPlainIdentifier(recvText) {
		return recvText
	}
	return "&" + recvText
}

// rewriteUFCSChain emits the replacement for one chain (one or more
// segments) as a single EditBuffer edit spanning the whole chain.
func rewriteUFCSChain(ctx *PassCtx, buf *Buffer, eb *EditBuffer, chain []ufcsCallSpan) error {
	if eb.Overlaps(chain[0].recvStart, chain[len(chain)-1].callEnd) {
		return nil // idempotence: already-rewritten span, skip (§4.1)
	}

	recvText := buf.Slice(chain[0].recvStart, chain[0].dotStart)

	if len(chain) == 1 {
		opts := UfcsOptions{InAwait: ctx.AST.IsInsideAwait(chain[0].node)}
		repl := dispatchUFCS(ctx, recvText, chain[0].node.ReceiverIsPointer(), chain[0].node.CalleeName(), chain[0].node.ReceiverType(), buf.Slice(chain[0].argStart, chain[0].argEnd), opts)
		return eb.Add(Edit{Start: chain[0].recvStart, End: chain[0].callEnd, Replacement: repl, Tag: "ufcs"})
	}

	var b strings.Builder
	b.WriteString("({ ")
	receiverIsPointer := chain[0].node.ReceiverIsPointer()
	nontrivial := !isPlainIdentifier(recvText) && !receiverIsPointer
	cur := recvText
	if nontrivial {
		fmt.Fprintf(&b, "__cc_ufcs_recv = %s; ", recvText)
		cur = "__cc_ufcs_recv"
	}
	for i := 0; i < len(chain)-1; i++ {
		seg := chain[i]
		argsText := buf.Slice(seg.argStart, seg.argEnd)
		recvType := ""
		if i == 0 {
			recvType = seg.node.ReceiverType()
		}
		segOpts := UfcsOptions{InAwait: ctx.AST.IsInsideAwait(seg.node)}
		call := dispatchUFCS(ctx, cur, i == 0 && receiverIsPointer, seg.node.CalleeName(), recvType, argsText, segOpts)
		fmt.Fprintf(&b, "__cc_ufcs_tmp%d = %s; ", i+1, call)
		cur = fmt.Sprintf("__cc_ufcs_tmp%d", i+1)
	}
	last := chain[len(chain)-1]
	argsText := buf.Slice(last.argStart, last.argEnd)
	lastOpts := UfcsOptions{InAwait: ctx.AST.IsInsideAwait(last.node)}
	finalCall := dispatchUFCS(ctx, cur, false, last.node.CalleeName(), "", argsText, lastOpts)
	b.WriteString(finalCall)
	b.WriteString("; })")

	return eb.Add(Edit{Start: chain[0].recvStart, End: last.callEnd, Replacement: b.String(), Tag: "ufcs-chain"})
}

// dispatchUFCS implements the §4.1 dispatch table, in precedence order.
// receiverType is the stub AST's optional receiver-type hint (dispatch
// table 6); it is empty unless the front end supplied one.
func dispatchUFCS(ctx *PassCtx, recvText string, receiverIsPointer bool, method, receiverType, argsText string, opts UfcsOptions) string {
	args := splitArgs(argsText)

	// Special case: .free() on a pointer receiver.
	if method == "free" && receiverIsPointer {
		return fmt.Sprintf("cc_chan_free(%s)", recvText)
	}

	// 1. Channel ergonomic methods.
	if channelOps[method] {
		if opts.InAwait && (method == "send" || method == "recv") {
			val := "NULL"
			if len(args) > 0 {
				val = args[0]
			}
			return fmt.Sprintf("cc_chan_%s_task((%s).raw, &%s, sizeof(%s))", method, recvText, val, val)
		}
		return fmt.Sprintf("chan_%s(%s)", method, joinRecvArgs(recvText, args))
	}

	// 2. Stdlib string methods. A string-literal argument is passed as
	// a CCSlice, not a bare char*, so it goes through cc_slice_from_buffer.
	if op, ok := stringOps[method]; ok {
		return fmt.Sprintf("cc_string_%s(%s)", op, joinRecvArgs(addrExpr(recvText, receiverIsPointer), convertStringLiteralArgs(args)))
	}

	// 3. Slice methods.
	if sliceOps[method] {
		if def, needed := sliceOpRequiredDefault[method]; needed && len(args) == 0 {
			args = []string{def}
		}
		return fmt.Sprintf("CCSlice_%s(%s)", method, joinRecvArgs(addrExpr(recvText, receiverIsPointer), args))
	}

	// 4. Writer sinks.
	if (recvText == "std_out" || recvText == "std_err") && method == "write" {
		sink := "std_out"
		if recvText == "std_err" {
			sink = "std_err"
		}
		return writerSinkCall(sink, args)
	}

	// 5. Container methods (Vec_/Map_).
	if t, ok := ctx.Types.TypeOf(recvText); ok {
		if IsContainerPrefix(t, ContainerVec) || IsContainerPrefix(t, ContainerMap) {
			return fmt.Sprintf("%s_%s(%s)", t, method, joinRecvArgs(addrExpr(recvText, receiverIsPointer), args))
		}
	}

	// 6. Free-form dispatch via stub-supplied receiver type.
	if receiverType != "" {
		return fmt.Sprintf("%s_%s(%s)", receiverType, method, joinRecvArgs(addrExpr(recvText, receiverIsPointer), args))
	}

	// 7. Fallback.
	return fmt.Sprintf("%s(%s)", method, joinRecvArgs(addrExpr(recvText, receiverIsPointer), args))
}

// convertStringLiteralArgs wraps any bare string-literal argument in
// cc_slice_from_buffer so it matches the CCSlice parameter the stdlib
// string functions expect; every other argument passes through as-is.
func convertStringLiteralArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		trimmed := strings.TrimSpace(a)
		if strings.HasPrefix(trimmed, `"`) {
			out[i] = fmt.Sprintf("cc_slice_from_buffer(%s, sizeof(%s) - 1)", trimmed, trimmed)
		} else {
			out[i] = a
		}
	}
	return out
}

func joinRecvArgs(recv string, args []string) string {
	all := append([]string{recv}, args...)
	return strings.Join(all, ", ")
}

func writerSinkCall(sink string, args []string) string {
	if len(args) != 1 {
		return fmt.Sprintf("cc_%s_write(%s)", sink, strings.Join(args, ", "))
	}
	arg := strings.TrimSpace(args[0])
	switch {
	case strings.HasPrefix(arg, `"`):
		return fmt.Sprintf(`cc_%s_write(cc_slice_from_buffer(%s, sizeof(%s)-1))`, sink, arg, arg)
	case strings.HasPrefix(arg, "&"):
		return fmt.Sprintf("cc_%s_write(%s)", sink, arg)
	case isPlainIdentifier(arg):
		return fmt.Sprintf("cc_%s_write_string(&%s)", sink, arg)
	default:
		return fmt.Sprintf("cc_%s_write(%s)", sink, arg)
	}
}
