package cclower

import (
	"fmt"
	"regexp"
	"strings"
)

// Capture flag bits (§3, Closure Descriptor).
const (
	CaptureIsSlice  = 1 << 0
	CaptureMoveOnly = 1 << 1
)

// ClosureDescriptor is MODULE F's scan record (§3): one closure literal
// found anywhere in the translation unit, globally identified by Id.
type ClosureDescriptor struct {
	StartLine, EndLine int
	StartCol, EndCol   int
	Id                 int
	ParamCount         int
	ParamNames         [2]string
	ParamTypes         [2]string
	Captures           []string
	CaptureTypes       []string
	CaptureFlags       []int
	Body               string
	EnclosingNurseryID int
}

// declFrame is one scope's worth of tracked declarations, used by both
// the Closure Pass's capture analysis and the Slice Check Pass (§9:
// "ownership of scope stacks... a vector of frames").
type declFrame struct {
	decls map[string]declInfo
}

type declInfo struct {
	typeName string
	flags    int
}

type scopeStack struct {
	frames []declFrame
}

func newScopeStack() *scopeStack {
	return &scopeStack{frames: []declFrame{{decls: map[string]declInfo{}}}}
}

func (s *scopeStack) push() {
	s.frames = append(s.frames, declFrame{decls: map[string]declInfo{}})
}

func (s *scopeStack) pop() {
	if len(s.frames) > 1 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

func (s *scopeStack) depth() int { return len(s.frames) - 1 }

func (s *scopeStack) declare(name, typeName string, flags int) {
	s.frames[len(s.frames)-1].decls[name] = declInfo{typeName: typeName, flags: flags}
}

// lookup returns the declaration for name and the scope depth it was
// declared at, searching from innermost to outermost.
func (s *scopeStack) lookup(name string) (declInfo, int, bool) {
	for d := len(s.frames) - 1; d >= 0; d-- {
		if info, ok := s.frames[d].decls[name]; ok {
			return info, d, true
		}
	}
	return declInfo{}, 0, false
}

var closureLitRe = regexp.MustCompile(`(\(([^()]*)\)|([A-Za-z_][A-Za-z0-9_]*))\s*=>\s*`)

var identTokRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

var keywordToks = map[string]bool{
	"if": true, "else": true, "for": true, "while": true, "return": true,
	"int": true, "void": true, "char": true, "float": true, "double": true,
	"struct": true, "const": true, "static": true, "await": true, "spawn": true,
	"sizeof": true, "switch": true, "case": true, "break": true, "continue": true,
	"true": true, "false": true, "NULL": true, "cc_move": true,
}

// RunClosurePass is Component F (§4.2): find every closure literal,
// analyze its captures against the scope stack built from declarations
// seen so far, and rewrite the literal into a factory call. Descriptors
// are recorded on ctx.Closures so the Emitter can append their
// definitions (§4.9).
func RunClosurePass(ctx *PassCtx, src []byte) ([]byte, error) {
	buf := NewBuffer(src)
	eb := NewEditBuffer(src)
	scopes := newScopeStack()

	text := string(src)
	var walk func(from, to int, nurseryID int) error
	walk = func(from, to int, nurseryID int) error {
		i := from
		nextLit, nextEnd := -1, -1 // absolute span of the next closure-literal head at or after i
		for i < to {
			switch text[i] {
			case '{':
				scopes.push()
				i++
				continue
			case '}':
				scopes.pop()
				i++
				continue
			}
			if decl, declEnd, ok := matchDeclaration(text, i, to); ok {
				scopes.declare(decl.name, decl.typeName, decl.flags)
				i = declEnd
				continue
			}
			if nextLit < i {
				nextLit, nextEnd = to, to
				if loc := closureLitRe.FindStringIndex(text[i:to]); loc != nil {
					nextLit, nextEnd = i+loc[0], i+loc[1]
				}
			}
			if nextLit != i {
				i++
				continue
			}
			matchStart := i
			headEnd := nextEnd
			bodyStart, bodyEnd, isBlock := findClosureBody(text, headEnd)
			if bodyEnd < 0 {
				i = headEnd
				continue
			}

			id := ctx.IDs.Next()
			params := parseClosureParams(text[matchStart:headEnd])
			scopes.push()
			for pi, p := range params {
				if p.name != "" {
					scopes.declare(p.name, p.typeName, 0)
				}
				_ = pi
			}

			bodyText := text[bodyStart:bodyEnd]
			captures, captureTypes, flags, err := analyzeCaptures(ctx, id, bodyText, scopes)
			if err != nil {
				scopes.pop()
				return err
			}

			startLine, startCol := buf.LineCol(matchStart)
			endLine, endCol := buf.LineCol(bodyEnd)

			desc := &ClosureDescriptor{
				StartLine: startLine, EndLine: endLine,
				StartCol: startCol, EndCol: endCol,
				Id:                 id,
				ParamCount:         len(params),
				Captures:           captures,
				CaptureTypes:       captureTypes,
				CaptureFlags:       flags,
				Body:               bodyText,
				EnclosingNurseryID: nurseryID,
			}
			for pi, p := range params {
				if pi < 2 {
					desc.ParamNames[pi] = p.name
					desc.ParamTypes[pi] = p.typeName
				}
			}
			ctx.Closures = append(ctx.Closures, desc)

			if isBlock {
				// recursively lower nested closures/nurseries/spawn inside
				// the body before the whole literal is replaced
				if err := walk(bodyStart, bodyEnd, nurseryID); err != nil {
					scopes.pop()
					return err
				}
			}
			scopes.pop()

			factoryArgs := make([]string, 0, len(captures))
			for ci, c := range captures {
				if flags[ci]&CaptureMoveOnly != 0 {
					factoryArgs = append(factoryArgs, fmt.Sprintf("cc_move(%s)", c))
				} else {
					factoryArgs = append(factoryArgs, c)
				}
			}
			replacement := fmt.Sprintf("__cc_closure_make_%d(%s)", id, strings.Join(factoryArgs, ", "))
			if !eb.Overlaps(matchStart, bodyEnd) {
				if err := eb.Add(Edit{Start: matchStart, End: bodyEnd, Replacement: replacement, Tag: "closure"}); err != nil {
					return err
				}
			}
			i = bodyEnd
		}
		return nil
	}

	if err := walk(0, len(text), 0); err != nil {
		if d, ok := err.(Diagnostic); ok {
			return nil, WrapFatal(d)
		}
		return nil, err
	}

	return eb.Apply(), nil
}

type closureParam struct {
	name, typeName string
}

// parseClosureParams handles `(T name, name2)`, `(name)`, or bare
// `ident` closure heads (§4.2: "up to two parameters are supported").
func parseClosureParams(head string) []closureParam {
	head = strings.TrimSpace(head)
	head = strings.TrimSuffix(head, "=>")
	head = strings.TrimSpace(head)
	if !strings.HasPrefix(head, "(") {
		return []closureParam{{name: head}}
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(head, "("), ")")
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return nil
	}
	var out []closureParam
	for _, part := range splitArgs(inner) {
		part = strings.TrimSpace(part)
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		if len(fields) == 1 {
			out = append(out, closureParam{name: fields[0]})
		} else {
			out = append(out, closureParam{typeName: strings.Join(fields[:len(fields)-1], " "), name: fields[len(fields)-1]})
		}
	}
	if len(out) > 2 {
		out = out[:2]
	}
	return out
}

// findClosureBody locates the body following `=>`: either a brace
// block `{ ... }` or an expression up to the next top-level `;` or
// `,`/`)` that closes an enclosing call.
func findClosureBody(text string, from int) (start, end int, isBlock bool) {
	i := from
	for i < len(text) && (text[i] == ' ' || text[i] == '\t') {
		i++
	}
	if i >= len(text) {
		return from, -1, false
	}
	if text[i] == '{' {
		depth := 0
		j := i
		for j < len(text) {
			switch text[j] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return i, j + 1, true
				}
			}
			j++
		}
		return i, -1, true
	}
	depth := 0
	j := i
	for j < len(text) {
		c := text[j]
		switch c {
		case '(', '[':
			depth++
		case ')', ']':
			if depth == 0 {
				return i, j, false
			}
			depth--
		case ',', ';':
			if depth == 0 {
				return i, j, false
			}
		case '\n':
			if depth == 0 {
				return i, j, false
			}
		}
		j++
	}
	return i, len(text), false
}

// declMatch is one declaration recognized by matchDeclaration; its
// consumed extent is returned alongside it.
type declMatch struct {
	name, typeName string
	flags          int
}

var declRe = regexp.MustCompile(`^\s*(?:const\s+)?([A-Za-z_][A-Za-z0-9_]*(?:\s*\[\s*:\s*!?\s*\])?)\s+([A-Za-z_][A-Za-z0-9_]*)\s*=`)

// matchDeclaration recognizes a simple `T name =` declaration starting
// at i, used by the scope-stack builder shared with the Slice Check
// Pass's algorithm (§4.3). Slice sugar `T[:]`/`T[:!]` maps to CCSlice,
// the latter flagged move-only.
func matchDeclaration(text string, i, to int) (declMatch, int, bool) {
	loc := declRe.FindStringSubmatchIndex(text[i:to])
	if loc == nil || loc[0] != 0 {
		return declMatch{}, i, false
	}
	typeName := text[i+loc[2] : i+loc[3]]
	name := text[i+loc[4] : i+loc[5]]
	flags := 0
	mapped := typeName
	if strings.Contains(typeName, "[:") {
		mapped = "CCSlice"
		flags |= CaptureIsSlice
		if strings.Contains(typeName, ":!") {
			flags |= CaptureMoveOnly
		}
	}
	return declMatch{name: name, typeName: mapped, flags: flags}, i + loc[1], true
}

// analyzeCaptures gathers every identifier referenced in body that
// resolves to a scope-stack declaration at depth >= 1 (§4.2).
func analyzeCaptures(ctx *PassCtx, closureID int, body string, scopes *scopeStack) ([]string, []string, []int, error) {
	seen := map[string]bool{}
	var names, types []string
	var flags []int
	for _, m := range identTokRe.FindAllString(body, -1) {
		if keywordToks[m] || seen[m] {
			continue
		}
		seen[m] = true
		info, depth, ok := scopes.lookup(m)
		if !ok || depth == 0 {
			continue
		}
		if info.typeName == "" {
			return nil, nil, nil, captureTypeUnknownDiagnostic(ctx.File, 0, 0, closureID, m)
		}
		names = append(names, m)
		types = append(types, info.typeName)
		flags = append(flags, info.flags)
	}
	return names, types, flags, nil
}

// EmitClosureForwardDecl returns the forward prototype for closure d
// (§4.2 Emission, used by the Emitter).
func EmitClosureForwardDecl(d *ClosureDescriptor) string {
	params := ""
	for i := 0; i < d.ParamCount && i < 2; i++ {
		params += fmt.Sprintf(", intptr_t arg%d", i)
	}
	return fmt.Sprintf("static void* __cc_closure_entry_%d(void*%s);", d.Id, params)
}

// EmitClosureDefinition renders the env struct (if any captures),
// drop function, entry function, and factory for closure d (§4.2).
func EmitClosureDefinition(d *ClosureDescriptor) string {
	var b strings.Builder
	hasCaptures := len(d.Captures) > 0

	if hasCaptures {
		fmt.Fprintf(&b, "typedef struct __cc_closure_env_%d {\n", d.Id)
		for i, c := range d.Captures {
			fmt.Fprintf(&b, "    %s %s;\n", d.CaptureTypes[i], c)
		}
		fmt.Fprintf(&b, "} __cc_closure_env_%d;\n\n", d.Id)
		fmt.Fprintf(&b, "static void __cc_closure_drop_%d(void* envp) {\n    free(envp);\n}\n\n", d.Id)
	}

	params := ""
	for i := 0; i < d.ParamCount && i < 2; i++ {
		params += fmt.Sprintf(", intptr_t arg%d", i)
	}
	fmt.Fprintf(&b, "static void* __cc_closure_entry_%d(void* envp%s) {\n", d.Id, params)
	if hasCaptures {
		fmt.Fprintf(&b, "    __cc_closure_env_%d* env = (__cc_closure_env_%d*)envp;\n", d.Id, d.Id)
		for i, c := range d.Captures {
			if d.CaptureFlags[i]&CaptureMoveOnly != 0 {
				fmt.Fprintf(&b, "    %s %s = cc_move(env->%s);\n", d.CaptureTypes[i], c, c)
			} else {
				fmt.Fprintf(&b, "    %s %s = env->%s;\n", d.CaptureTypes[i], c, c)
			}
		}
	}
	for i := 0; i < d.ParamCount && i < 2; i++ {
		name := d.ParamNames[i]
		if name == "" {
			name = fmt.Sprintf("__p%d", i)
		}
		typeName := d.ParamTypes[i]
		if typeName == "" {
			typeName = "intptr_t"
		}
		fmt.Fprintf(&b, "    %s %s = (%s)arg%d;\n", typeName, name, typeName, i)
	}
	body := strings.TrimSpace(d.Body)
	if strings.HasPrefix(body, "{") {
		fmt.Fprintf(&b, "    %s\n    return NULL;\n", body)
	} else {
		fmt.Fprintf(&b, "    (void)(%s);\n    return NULL;\n", body)
	}
	b.WriteString("}\n\n")

	factoryParams := make([]string, 0, len(d.Captures))
	for i, c := range d.Captures {
		factoryParams = append(factoryParams, fmt.Sprintf("%s %s", d.CaptureTypes[i], c))
	}
	closureType := fmt.Sprintf("CCClosure%d", d.ParamCount)
	fmt.Fprintf(&b, "static %s __cc_closure_make_%d(%s) {\n", closureType, d.Id, strings.Join(factoryParams, ", "))
	if !hasCaptures {
		fmt.Fprintf(&b, "    return (%s){ __cc_closure_entry_%d, NULL, NULL };\n}\n\n", closureType, d.Id)
		return b.String()
	}
	fmt.Fprintf(&b, "    __cc_closure_env_%d* env = (__cc_closure_env_%d*)malloc(sizeof(__cc_closure_env_%d));\n", d.Id, d.Id, d.Id)
	for i, c := range d.Captures {
		if d.CaptureFlags[i]&CaptureMoveOnly != 0 {
			fmt.Fprintf(&b, "    env->%s = cc_move(%s);\n", c, c)
		} else {
			fmt.Fprintf(&b, "    env->%s = %s;\n", c, c)
		}
	}
	fmt.Fprintf(&b, "    return (%s){ __cc_closure_entry_%d, env, __cc_closure_drop_%d };\n}\n\n", closureType, d.Id, d.Id)
	return b.String()
}
