package cclower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ufcsCallNode(line int, method string) RawNode {
	return RawNode{
		Kind:      int(KindCall),
		LineStart: line,
		LineEnd:   line,
		Aux2:      callBitUFCS | (1 << callOccurrenceShift),
		AuxS1:     method,
	}
}

func TestUFCSSingleSegmentStringAppend(t *testing.T) {
	src := []byte(`s.append("x");` + "\n")
	ctx := newTestCtx("f.cc", src, []RawNode{ufcsCallNode(1, "append")})

	out, err := RunUFCSPass(ctx, src)
	require.NoError(t, err)

	assert.Contains(t, string(out), `cc_string_push(&s, cc_slice_from_buffer("x", sizeof("x") - 1));`)
	assert.NotContains(t, string(out), ".append")
}

func TestUFCSChainProducesStatementExpression(t *testing.T) {
	src := []byte(`a.b(1).c(2);` + "\n")
	nodes := []RawNode{ufcsCallNode(1, "b"), ufcsCallNode(1, "c")}
	ctx := newTestCtx("f.cc", src, nodes)

	out, err := RunUFCSPass(ctx, src)
	require.NoError(t, err)

	assert.Contains(t, string(out), `({ __cc_ufcs_tmp1 = b(&a, 1); c(&__cc_ufcs_tmp1, 2); })`)
}

func TestUFCSSingleSegmentDoesNotIntroduceTemps(t *testing.T) {
	src := []byte(`a.b(1);` + "\n")
	ctx := newTestCtx("f.cc", src, []RawNode{ufcsCallNode(1, "b")})

	out, err := RunUFCSPass(ctx, src)
	require.NoError(t, err)

	assert.NotContains(t, string(out), "__cc_ufcs_tmp")
	assert.Contains(t, string(out), "b(&a, 1)")
}

func TestUFCSIdempotentOnAlreadyRewrittenSpan(t *testing.T) {
	src := []byte(`chan_send(&a, 1);` + "\n")
	ctx := newTestCtx("f.cc", src, nil)

	out, err := RunUFCSPass(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, string(src), string(out))
}

func TestUFCSSliceOpDefaultArgument(t *testing.T) {
	src := []byte(`s.at();` + "\n")
	ctx := newTestCtx("f.cc", src, []RawNode{ufcsCallNode(1, "at")})

	out, err := RunUFCSPass(ctx, src)
	require.NoError(t, err)
	assert.Contains(t, string(out), "CCSlice_at(&s, 0)")
}

func TestUFCSChannelSendInsideAwaitUsesTaskVariant(t *testing.T) {
	src := []byte(`await ch.send(1);` + "\n")
	nodes := []RawNode{
		{Kind: int(KindAwait), LineStart: 1, LineEnd: 1, ParentIndex: -1},
		{Kind: int(KindCall), LineStart: 1, LineEnd: 1, Aux2: callBitUFCS | (1 << callOccurrenceShift), AuxS1: "send", ParentIndex: 0},
	}
	ctx := newTestCtx("f.cc", src, nodes)

	out, err := RunUFCSPass(ctx, src)
	require.NoError(t, err)
	assert.Contains(t, string(out), "cc_chan_send_task((ch).raw, &1, sizeof(1))")
}

func TestUFCSChannelSendOutsideAwaitUsesPlainVariant(t *testing.T) {
	src := []byte(`ch.send(1);` + "\n")
	nodes := []RawNode{ufcsCallNode(1, "send")}
	ctx := newTestCtx("f.cc", src, nodes)

	out, err := RunUFCSPass(ctx, src)
	require.NoError(t, err)
	result := string(out)
	assert.Contains(t, result, "chan_send(ch, 1)")
	assert.NotContains(t, result, "cc_chan_send_task")
}

func TestUFCSWriterSinkStringLiteral(t *testing.T) {
	src := []byte(`std_out.write("hi");` + "\n")
	ctx := newTestCtx("f.cc", src, []RawNode{ufcsCallNode(1, "write")})

	out, err := RunUFCSPass(ctx, src)
	require.NoError(t, err)
	assert.Contains(t, string(out), `cc_std_out_write(cc_slice_from_buffer("hi", sizeof("hi")-1))`)
}
