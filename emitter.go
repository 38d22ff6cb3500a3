package cclower

import (
	"fmt"
	"strings"
)

// fixedIncludes are the runtime headers every emitted translation unit
// depends on (§6: "Outputs produced... Runtime includes").
var fixedIncludes = []string{
	"cc_nursery.h",
	"cc_closure.h",
	"cc_slice.h",
	"cc_runtime.h",
	"std/task_intptr.h",
}

// spawnThunkHelpers is the fixed block of typedefs/functions the
// Emitter prepends so `spawn(fn())`/`spawn(fn(int-literal))` call
// shapes have a thunk-argument struct and `cc_nursery_spawn` adapter
// available without each spawn site re-declaring it (§4.7).
const spawnThunkHelpers = `
typedef struct { void* fn; intptr_t arg; } __cc_spawn_thunk;

static void* __cc_spawn_thunk_run(void* envp) {
    __cc_spawn_thunk* t = (__cc_spawn_thunk*)envp;
    typedef void* (*__cc_thunk_fn)(intptr_t);
    return ((__cc_thunk_fn)t->fn)(t->arg);
}
`

// Emit implements Component M (§4.9): prepend fixed includes and the
// spawn thunk helpers, emit closure forward declarations, stream the
// lowered body under a `#line 1` directive, then append closure
// definitions so globals closures reference are already in scope.
func Emit(ctx *PassCtx, sourcePath string, lowered []byte) []byte {
	var b strings.Builder

	for _, inc := range fixedIncludes {
		fmt.Fprintf(&b, "#include \"%s\"\n", inc)
	}
	b.WriteString(spawnThunkHelpers)
	b.WriteString("\n")

	for _, cd := range ctx.Closures {
		b.WriteString(EmitClosureForwardDecl(cd))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "#line 1 \"%s\"\n", sourcePath)
	b.Write(lowered)
	if len(lowered) > 0 && lowered[len(lowered)-1] != '\n' {
		b.WriteString("\n")
	}

	b.WriteString("\n")
	for _, cd := range ctx.Closures {
		b.WriteString(EmitClosureDefinition(cd))
	}

	return []byte(b.String())
}
