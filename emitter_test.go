package cclower

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitIncludesRuntimeHeaders(t *testing.T) {
	ctx := newTestCtx("f.cc", []byte("int main(void) { return 0; }\n"), nil)
	out := string(Emit(ctx, "f.cc", []byte("int main(void) { return 0; }\n")))

	for _, inc := range fixedIncludes {
		assert.Contains(t, out, `#include "`+inc+`"`)
	}
	assert.Contains(t, out, "__cc_spawn_thunk_run")
	assert.Contains(t, out, `#line 1 "f.cc"`)
	assert.Contains(t, out, "int main(void) { return 0; }")
}

func TestEmitAppendsClosureForwardDeclsAndDefinitions(t *testing.T) {
	ctx := newTestCtx("f.cc", []byte("x;\n"), nil)
	ctx.Closures = append(ctx.Closures, &ClosureDescriptor{
		Id:           7,
		Captures:     []string{"x"},
		CaptureTypes: []string{"int"},
		CaptureFlags: []int{0},
		Body:         "{ use(x); }",
	})

	out := string(Emit(ctx, "f.cc", []byte("x;\n")))

	assert.Contains(t, out, "static void* __cc_closure_entry_7(void*")
	assert.Contains(t, out, "__cc_closure_env_7")
	assert.Contains(t, out, "__cc_closure_make_7")

	forwardIdx := indexOf(out, "__cc_closure_entry_7(void*);")
	lineIdx := indexOf(out, `#line 1 "f.cc"`)
	assert.GreaterOrEqual(t, forwardIdx, 0)
	assert.Less(t, forwardIdx, lineIdx)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
