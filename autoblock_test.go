package cclower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoBlockWrapsSyncStatementCall(t *testing.T) {
	src := []byte("void f(void) {\n" +
		"    log_line();\n" +
		"}\n")
	nodes := []RawNode{
		{Kind: int(KindDeclItem), Aux2: DeclAsync, LineStart: 1, LineEnd: 3, AuxS1: "f"},
	}
	ctx := newTestCtx("f.cc", src, nodes)

	out, err := RunAutoBlockingPass(ctx, src)
	require.NoError(t, err)

	assert.Contains(t, string(out), "await cc_run_blocking_task_intptr(__cc_closure_make_1());")
	require.Len(t, ctx.Closures, 1)
	assert.Equal(t, "{ log_line(); }", ctx.Closures[0].Body)
}

func TestAutoBlockSkipsNoBlockCallee(t *testing.T) {
	src := []byte("void f(void) {\n" +
		"    log_line();\n" +
		"}\n")
	nodes := []RawNode{
		{Kind: int(KindDeclItem), Aux2: DeclAsync, LineStart: 1, LineEnd: 3, AuxS1: "f"},
		{Kind: int(KindDeclItem), Aux2: DeclNoBlock, LineStart: 10, LineEnd: 12, AuxS1: "log_line"},
	}
	ctx := newTestCtx("f.cc", src, nodes)

	out, err := RunAutoBlockingPass(ctx, src)
	require.NoError(t, err)

	assert.Equal(t, string(src), string(out))
	assert.Empty(t, ctx.Closures)
}

func TestAutoBlockSkipsNonAsyncFunctions(t *testing.T) {
	src := []byte("void g(void) {\n" +
		"    log_line();\n" +
		"}\n")
	nodes := []RawNode{
		{Kind: int(KindDeclItem), LineStart: 1, LineEnd: 3, AuxS1: "g"},
	}
	ctx := newTestCtx("f.cc", src, nodes)

	out, err := RunAutoBlockingPass(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, string(src), string(out))
}

func TestAutoBlockAssignFormCastsResult(t *testing.T) {
	src := []byte("void f(void) {\n" +
		"    int x;\n" +
		"    x = compute();\n" +
		"}\n")
	nodes := []RawNode{
		{Kind: int(KindDeclItem), Aux2: DeclAsync, LineStart: 1, LineEnd: 4, AuxS1: "f"},
		{Kind: int(KindDeclItem), LineStart: 10, LineEnd: 10, AuxS1: "compute", AuxS2: "int(void)"},
	}
	ctx := newTestCtx("f.cc", src, nodes)

	out, err := RunAutoBlockingPass(ctx, src)
	require.NoError(t, err)

	assert.Contains(t, string(out), "x = (void*)(intptr_t)await cc_run_blocking_task_intptr(__cc_closure_make_1());")
	require.Len(t, ctx.Closures, 1)
	assert.Equal(t, "{ return (void*)(intptr_t)(compute()); }", ctx.Closures[0].Body)
}

func TestAutoBlockCapturesBoundArgumentsThroughEnv(t *testing.T) {
	src := []byte("void f(void) {\n" +
		"    puts(\"hi\");\n" +
		"}\n")
	nodes := []RawNode{
		{Kind: int(KindDeclItem), Aux2: DeclAsync, LineStart: 1, LineEnd: 3, AuxS1: "f"},
		{Kind: int(KindDeclItem), LineStart: 10, LineEnd: 10, AuxS1: "puts", AuxS2: "int(char* s)"},
	}
	ctx := newTestCtx("f.cc", src, nodes)

	out, err := RunAutoBlockingPass(ctx, src)
	require.NoError(t, err)
	result := string(out)

	require.Len(t, ctx.Closures, 1)
	d := ctx.Closures[0]
	require.Len(t, d.Captures, 1)
	argName := d.Captures[0]
	assert.Equal(t, "CCAbIntptr", d.CaptureTypes[0])
	assert.Contains(t, result, "CCAbIntptr "+argName+" = (CCAbIntptr)(intptr_t)(\"hi\"); ")
	assert.Contains(t, result, "__cc_closure_make_1("+argName+")")
	assert.Contains(t, d.Body, "(char*)"+argName)

	def := EmitClosureDefinition(d)
	assert.Contains(t, def, "__cc_closure_env_1* env = (__cc_closure_env_1*)envp;")
	assert.Contains(t, def, "CCAbIntptr "+argName+" = env->"+argName+";")
}

func TestParseSignaturePrefixRecoversParamTypes(t *testing.T) {
	sig, ok := parseSignaturePrefix("int(int x, float y)")
	require.True(t, ok)
	require.Len(t, sig, 2)
	assert.Equal(t, "int", sig[0].typeName)
	assert.Equal(t, "float", sig[1].typeName)
}

func TestParseSignaturePrefixVoidParams(t *testing.T) {
	sig, ok := parseSignaturePrefix("void(void)")
	require.True(t, ok)
	assert.Empty(t, sig)
}
