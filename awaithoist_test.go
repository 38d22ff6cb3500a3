package cclower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitHoistLiftsNonRootAwait(t *testing.T) {
	src := []byte("void f(void) {\n" +
		"    int y = foo(await bar(), 2);\n" +
		"}\n")
	nodes := []RawNode{
		{Kind: int(KindDeclItem), Aux2: DeclAsync, LineStart: 1, LineEnd: 3, AuxS1: "f"},
		{Kind: int(KindAwait), ParentIndex: 0, LineStart: 2, LineEnd: 2, ColStart: 17, ColEnd: 22},
	}
	ctx := newTestCtx("f.cc", src, nodes)

	out, err := RunAwaitHoistPass(ctx, src)
	require.NoError(t, err)

	assert.Contains(t, string(out), "intptr_t __cc_aw_l2_0 = 0;")
	assert.Contains(t, string(out), "__cc_aw_l2_0 = await bar();")
	assert.Contains(t, string(out), "foo(__cc_aw_l2_0, 2)")
}

func TestAwaitHoistLeavesStatementRootAwaitAlone(t *testing.T) {
	src := []byte("void f(void) {\n" +
		"    await bar();\n" +
		"}\n")
	nodes := []RawNode{
		{Kind: int(KindDeclItem), Aux2: DeclAsync, LineStart: 1, LineEnd: 3, AuxS1: "f"},
		{Kind: int(KindAwait), ParentIndex: 0, LineStart: 2, LineEnd: 2, ColStart: 5, ColEnd: 10},
	}
	ctx := newTestCtx("f.cc", src, nodes)

	out, err := RunAwaitHoistPass(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, string(src), string(out))
}

func TestAwaitHoistLeavesAssignFormAlone(t *testing.T) {
	src := []byte("void f(void) {\n" +
		"    int y = await bar();\n" +
		"}\n")
	nodes := []RawNode{
		{Kind: int(KindDeclItem), Aux2: DeclAsync, LineStart: 1, LineEnd: 3, AuxS1: "f"},
		{Kind: int(KindAwait), ParentIndex: 0, LineStart: 2, LineEnd: 2, ColStart: 13, ColEnd: 18},
	}
	ctx := newTestCtx("f.cc", src, nodes)

	out, err := RunAwaitHoistPass(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, string(src), string(out))
}

func TestAwaitHoistIgnoresNonAsyncEnclosingFunction(t *testing.T) {
	src := []byte("void f(void) {\n" +
		"    int y = foo(await bar(), 2);\n" +
		"}\n")
	nodes := []RawNode{
		{Kind: int(KindDeclItem), LineStart: 1, LineEnd: 3, AuxS1: "f"},
		{Kind: int(KindAwait), ParentIndex: 0, LineStart: 2, LineEnd: 2, ColStart: 17, ColEnd: 22},
	}
	ctx := newTestCtx("f.cc", src, nodes)

	out, err := RunAwaitHoistPass(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, string(src), string(out))
}
