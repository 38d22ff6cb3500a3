package cclower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkerStripRemovesAllThreeMarkers(t *testing.T) {
	src := []byte("@async CCTaskIntptr f(void);\n@noblock void log_line(void);\n@latency_sensitive void tick(void);\n")
	ctx := newTestCtx("f.cc", src, nil)

	out, err := RunMarkerStripPass(ctx, src)
	require.NoError(t, err)
	result := string(out)

	assert.NotContains(t, result, "@async")
	assert.NotContains(t, result, "@noblock")
	assert.NotContains(t, result, "@latency_sensitive")
	assert.Contains(t, result, "CCTaskIntptr f(void);")
}

func TestMarkerStripLeavesLookalikeIdentifiersAlone(t *testing.T) {
	src := []byte("void @asyncish_custom(void);\n")
	ctx := newTestCtx("f.cc", src, nil)

	out, err := RunMarkerStripPass(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, string(src), string(out))
}

func TestMarkerStripIsIdempotent(t *testing.T) {
	src := []byte("@async void f(void);\n")
	ctx := newTestCtx("f.cc", src, nil)

	once, err := RunMarkerStripPass(ctx, src)
	require.NoError(t, err)
	twice, err := RunMarkerStripPass(ctx, once)
	require.NoError(t, err)
	assert.Equal(t, string(once), string(twice))
}
