// Command cclower lowers CC source into plain C. It is the opaque
// driver §6 treats as an external collaborator: parse (stub AST in,
// produced by the front end) -> pipeline -> emit.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	cclower "github.com/sreekotay/cc-lower"
	"github.com/sreekotay/cc-lower/ascii"
)

type args struct {
	inputPath  *string
	outputPath *string
	stubPath   *string

	dumpAST   *bool
	dumpStage *string

	disableUFCS         *bool
	disableClosures     *bool
	disableSliceCheck   *bool
	disableAutoBlocking *bool
	disableAwaitHoist   *bool
	disableAsyncLower   *bool
	disableArenaDefer   *bool
	disableMarkerStrip  *bool
}

func readArgs() *args {
	defaultOutput := "/dev/stdout"
	if v := os.Getenv("CC_OUTPUT_PATH"); v != "" {
		defaultOutput = v
	}
	a := &args{
		inputPath:  flag.String("input", "", "Path to the CC source file"),
		outputPath: flag.String("output", defaultOutput, "Path to the lowered C output file"),
		stubPath:   flag.String("stub-ast", "", "Path to the stub-AST JSON produced by the front end"),

		dumpAST:   flag.Bool("dump-ast", false, "Print the parsed stub AST instead of lowering"),
		dumpStage: flag.String("dump-stage", "", "Print the buffer after the named pass instead of emitting"),

		disableUFCS:         flag.Bool("disable-ufcs", false, "Disable the UFCS pass"),
		disableClosures:     flag.Bool("disable-closures", false, "Disable the closure pass"),
		disableSliceCheck:   flag.Bool("disable-slice-check", false, "Disable the slice move-checker"),
		disableAutoBlocking: flag.Bool("disable-auto-blocking", false, "Disable the auto-blocking pass"),
		disableAwaitHoist:   flag.Bool("disable-await-hoist", false, "Disable the await-hoist pass"),
		disableAsyncLower:   flag.Bool("disable-async-lowering", false, "Disable async state-machine lowering"),
		disableArenaDefer:   flag.Bool("disable-arena-defer", false, "Disable arena/defer/nursery/spawn lowering"),
		disableMarkerStrip:  flag.Bool("disable-marker-strip", false, "Disable the final marker strip"),
	}
	flag.Parse()
	return a
}

// loadStubAST reads the front end's stub-AST JSON (an array of
// RawNode records, §3) from path. An empty path yields an empty AST,
// useful for -dump-stage smoke runs against inputs with no CC
// constructs at all.
func loadStubAST(path string) ([]cclower.RawNode, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading stub AST")
	}
	var raw []cclower.RawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decoding stub AST")
	}
	return raw, nil
}

func main() {
	// a .cclower.env in the working directory can set CC_OUTPUT_PATH,
	// the default for -output, so it need not be retyped; no other flag
	// reads the environment. A missing file is ignored.
	_ = godotenv.Load(".cclower.env")

	a := readArgs()
	if *a.inputPath == "" {
		log.Fatal("input path not informed")
	}

	src, err := os.ReadFile(*a.inputPath)
	if err != nil {
		log.Fatal(err)
	}

	raw, err := loadStubAST(*a.stubPath)
	if err != nil {
		log.Fatal(err)
	}
	ast := cclower.ParseRawNodes(raw)
	symbols := cclower.BuildSymbolTable(ast)
	types := cclower.NewTypeRegistry()
	cfg := cclower.NewPipelineConfig()

	applyDisableFlags(cfg, a)

	if *a.dumpAST {
		for i := range ast.Nodes {
			dumpNode(&ast.Nodes[i])
		}
		return
	}

	ctx := cclower.NewPassCtx(*a.inputPath, src, ast, symbols, types, cfg)

	var dumped []byte
	lowered, err := cclower.Run(ctx, src, func(stage string, out []byte) {
		if *a.dumpStage == stage {
			dumped = out
		}
	})
	if err != nil {
		reportFatal(ctx, err)
	}

	if *a.dumpStage != "" {
		os.Stdout.Write(dumped)
		return
	}

	for _, d := range ctx.Diagnostics.All() {
		fmt.Fprintln(os.Stderr, ascii.Color(ascii.DefaultTheme.Warning, "%s", d.Error()))
	}

	out := cclower.Emit(ctx, *a.inputPath, lowered)
	if err := os.WriteFile(*a.outputPath, out, 0644); err != nil {
		log.Fatal(err)
	}
}

// dumpNode prints one stub-AST node the way the teacher's own
// HighlightPrettyString colorizes a node dump: kind as a label, the
// source span, and whichever aux payload the node kind carries.
func dumpNode(n *cclower.Node) {
	t := ascii.DefaultTheme
	fmt.Print(ascii.Color(t.Label, "%-9s", n.Kind.String()))
	fmt.Print(" ")
	fmt.Print(ascii.Color(t.Span, "%d:%d-%d:%d", n.LineStart, n.ColStart, n.LineEnd, n.ColEnd))

	switch n.Kind {
	case cclower.KindCall:
		fmt.Print(" ", ascii.Color(t.Operand, "%s", n.CalleeName()))
		if n.IsUFCSCall() {
			fmt.Print(" ", ascii.Color(t.Operator, "ufcs"))
		}
		if n.ReceiverType() != "" {
			fmt.Print(" ", ascii.Color(t.Comment, "recv=%s", n.ReceiverType()))
		}
	case cclower.KindDeclItem:
		fmt.Print(" ", ascii.Color(t.Operand, "%s", n.DeclaredName()))
		if n.SignaturePrefix() != "" {
			fmt.Print(" ", ascii.Color(t.Literal, "%s", n.SignaturePrefix()))
		}
		var flags []string
		if n.IsAsync() {
			flags = append(flags, "async")
		}
		if n.IsNoBlock() {
			flags = append(flags, "noblock")
		}
		if n.IsLatencySensitive() {
			flags = append(flags, "latency_sensitive")
		}
		if len(flags) > 0 {
			fmt.Print(" ", ascii.Color(t.Operator, "%s", strings.Join(flags, ",")))
		}
	case cclower.KindArena:
		fmt.Print(" ", ascii.Color(t.Operand, "%s", n.ArenaName()))
		if n.ArenaSizeExpr() != "" {
			fmt.Print(" ", ascii.Color(t.Literal, "%s", n.ArenaSizeExpr()))
		}
	default:
		if n.AuxS1 == "" && n.AuxS2 == "" {
			fmt.Print(" ", ascii.Color(t.Comment, "(no payload)"))
		}
	}
	fmt.Println()
}

func applyDisableFlags(cfg *cclower.PipelineConfig, a *args) {
	type pair struct {
		key      string
		disabled *bool
	}
	for _, p := range []pair{
		{"pipeline.ufcs", a.disableUFCS},
		{"pipeline.closures", a.disableClosures},
		{"pipeline.slice_check", a.disableSliceCheck},
		{"pipeline.auto_blocking", a.disableAutoBlocking},
		{"pipeline.await_hoist", a.disableAwaitHoist},
		{"pipeline.async_lowering", a.disableAsyncLower},
		{"pipeline.arena_defer", a.disableArenaDefer},
		{"pipeline.marker_strip", a.disableMarkerStrip},
	} {
		if *p.disabled {
			cfg.SetBool(p.key, false)
		}
	}
}

// reportFatal prints a fatal diagnostic to stderr the way the teacher's
// cmd/langlang prints a failed grammar import, then exits non-zero.
// §7: "no partial output is written on a fatal error".
func reportFatal(ctx *cclower.PassCtx, err error) {
	fmt.Fprintln(os.Stderr, ascii.Color(ascii.DefaultTheme.Error, "%+v", errors.Cause(err)))
	os.Exit(1)
}
