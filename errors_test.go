package cclower

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiagnosticKindFatal(t *testing.T) {
	assert.True(t, SyntaxUnsupported.Fatal())
	assert.True(t, UseAfterMove.Fatal())
	assert.True(t, CopyOfMoveOnly.Fatal())
	assert.True(t, CaptureTypeUnknown.Fatal())
	assert.False(t, SpanResolutionFailure.Fatal())
	assert.False(t, InternalAllocationFailure.Fatal())
}

func TestUseAfterMoveDiagnosticMessage(t *testing.T) {
	d := useAfterMoveDiagnostic("f.cc", 10, 3, "s")
	assert.Equal(t, "error: CC: use after move of slice 's' @ f.cc:10:3", d.Error())
}

func TestDiagnosticsCollector(t *testing.T) {
	d := &Diagnostics{}
	assert.True(t, d.Empty())
	d.Add(Diagnostic{Kind: SpanResolutionFailure, Message: "skip"})
	assert.False(t, d.Empty())
	assert.Len(t, d.All(), 1)
}
