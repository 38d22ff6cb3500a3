package cclower

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredLoweringNurserySpawnAndWait(t *testing.T) {
	src := []byte("void f(void) {\n" +
		"    @nursery {\n" +
		"        spawn(c);\n" +
		"    }\n" +
		"}\n")
	ctx := newTestCtx("f.cc", src, nil)

	out, err := RunStructuredLoweringPass(ctx, src)
	require.NoError(t, err)
	result := string(out)

	assert.Contains(t, result, "CCNursery* __cc_nursery1 = cc_nursery_create();")
	assert.Contains(t, result, "cc_nursery_spawn_closure0(__cc_nursery1, __c);")
	assert.Contains(t, result, "cc_nursery_wait(__cc_nursery1); cc_nursery_free(__cc_nursery1);")
}

func TestStructuredLoweringArenaOpenAndFree(t *testing.T) {
	src := []byte("void f(void) {\n" +
		"    @arena a = 1024 {\n" +
		"        use(a);\n" +
		"    }\n" +
		"}\n")
	ctx := newTestCtx("f.cc", src, nil)

	out, err := RunStructuredLoweringPass(ctx, src)
	require.NoError(t, err)
	result := string(out)

	assert.Contains(t, result, "cc_heap_arena(1024)")
	assert.Contains(t, result, "CCArena* a = &__cc_arena1")
	assert.Contains(t, result, "cc_heap_arena_free(&__cc_arena1);")
}

func TestStructuredLoweringDefersFireLIFO(t *testing.T) {
	src := []byte("void f(void) {\n" +
		"    @defer cleanup_a();\n" +
		"    @defer cleanup_b();\n" +
		"}\n")
	ctx := newTestCtx("f.cc", src, nil)

	out, err := RunStructuredLoweringPass(ctx, src)
	require.NoError(t, err)
	result := string(out)

	ia := strings.Index(result, "cleanup_a();")
	ib := strings.Index(result, "cleanup_b();")
	require.True(t, ia >= 0 && ib >= 0)
	assert.Less(t, ib, ia, "cleanup_b registered last must fire first")
}

func TestStructuredLoweringCancelSuppressesDefer(t *testing.T) {
	src := []byte("void f(void) {\n" +
		"    @defer x: cleanup();\n" +
		"    cancel x;\n" +
		"}\n")
	ctx := newTestCtx("f.cc", src, nil)

	out, err := RunStructuredLoweringPass(ctx, src)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "cleanup();")
}

func TestStructuredLoweringSpawnOutsideNurseryEmitsTODO(t *testing.T) {
	src := []byte("void f(void) {\n" +
		"    spawn(task());\n" +
		"}\n")
	ctx := newTestCtx("f.cc", src, nil)

	out, err := RunStructuredLoweringPass(ctx, src)
	require.NoError(t, err)
	result := string(out)

	assert.Contains(t, result, "/* TODO: spawn outside nursery */")
	assert.Contains(t, result, "spawn(task());")
}
