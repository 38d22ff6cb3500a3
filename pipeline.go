package cclower

import "github.com/pkg/errors"

// PassCtx is the §9 design note's answer to "cyclic include of
// pipeline state": one struct owning everything a pass might need to
// read or write, instead of each pass threading source/ast/symbols/
// registry/diagnostics through bespoke parameter lists.
type PassCtx struct {
	File         string
	Buffer       *Buffer
	AST          *AST
	Symbols      *SymbolTable
	Types        *TypeRegistry
	Config       *PipelineConfig
	Diagnostics  *Diagnostics
	IDs          *IdGen
	Closures     []*ClosureDescriptor // populated by the Closure Pass's extraction scan
	NurseryDepth map[int]int          // nursery id -> brace depth it opened at (Arena/Defer/Nursery/Spawn lowering)
}

// NewPassCtx builds a PassCtx for one translation unit. Its lifetime
// is bound to a single file: create before preprocessing, discard
// after emission (§5).
func NewPassCtx(file string, src []byte, ast *AST, symbols *SymbolTable, types *TypeRegistry, cfg *PipelineConfig) *PassCtx {
	return &PassCtx{
		File:         file,
		Buffer:       NewBuffer(src),
		AST:          ast,
		Symbols:      symbols,
		Types:        types,
		Config:       cfg,
		Diagnostics:  &Diagnostics{},
		IDs:          NewIdGen(),
		NurseryDepth: make(map[int]int),
	}
}

// Pass is the shape every lowering stage implements (§2): consume the
// buffer plus the stub AST and symbol/type state in ctx, produce a new
// buffer. A fatal error aborts the pipeline with no output (§7); ctx's
// Diagnostics collects non-fatal skips along the way.
type Pass func(ctx *PassCtx, src []byte) ([]byte, error)

// namedPass pairs a Pass with the config key that gates it and the
// name used in diagnostics / -dump-stage.
type namedPass struct {
	name       string
	configKey  string
	run        Pass
}

// Pipeline runs Component E through L in the order fixed by §2's data
// flow: UFCS -> Closure -> Slice Check -> Auto-Blocking -> Await-Hoist
// -> Async Lowering -> Arena/Defer/Nursery/Spawn -> Marker Strip. The
// Emitter (M) is invoked separately by the caller once the pipeline
// has produced its final buffer, since it needs the whole lowered body
// as one unit to prepend/append around (§4.9).
func Pipeline() []namedPass {
	return []namedPass{
		{"ufcs", "pipeline.ufcs", RunUFCSPass},
		{"closures", "pipeline.closures", RunClosurePass},
		{"slice_check", "pipeline.slice_check", RunSliceCheckPass},
		{"auto_blocking", "pipeline.auto_blocking", RunAutoBlockingPass},
		{"await_hoist", "pipeline.await_hoist", RunAwaitHoistPass},
		{"async_lowering", "pipeline.async_lowering", RunAsyncLoweringPass},
		{"arena_defer", "pipeline.arena_defer", RunStructuredLoweringPass},
		{"marker_strip", "pipeline.marker_strip", RunMarkerStripPass},
	}
}

// Run executes every enabled pass in order over src, returning the
// final lowered buffer. If onStage is non-nil it is called after every
// pass with that pass's name and output, supporting the §4.11
// `-dump-stage` CLI introspection without the pipeline itself knowing
// about the CLI.
func Run(ctx *PassCtx, src []byte, onStage func(stage string, out []byte)) ([]byte, error) {
	cur := src
	for _, p := range Pipeline() {
		if !ctx.Config.GetBool(p.configKey) {
			continue
		}
		out, err := p.run(ctx, cur)
		if err != nil {
			return nil, errors.Wrapf(err, "pass %q", p.name)
		}
		cur = out
		if onStage != nil {
			onStage(p.name, cur)
		}
	}
	return cur, nil
}
