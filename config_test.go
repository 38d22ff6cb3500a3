package cclower

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPipelineConfigDefaults(t *testing.T) {
	cfg := NewPipelineConfig()
	assert.True(t, cfg.GetBool("pipeline.ufcs"))
	assert.True(t, cfg.GetBool("pipeline.marker_strip"))
	assert.Equal(t, 1, cfg.GetInt("pipeline.optimize"))
}

func TestPipelineConfigSetOverrides(t *testing.T) {
	cfg := NewPipelineConfig()
	cfg.SetBool("pipeline.ufcs", false)
	assert.False(t, cfg.GetBool("pipeline.ufcs"))
}

func TestPipelineConfigGetMissingPanics(t *testing.T) {
	cfg := NewPipelineConfig()
	assert.Panics(t, func() {
		cfg.GetBool("pipeline.does_not_exist")
	})
}

func TestPipelineConfigTypeMismatchPanics(t *testing.T) {
	cfg := NewPipelineConfig()
	assert.Panics(t, func() {
		cfg.GetString("pipeline.ufcs")
	})
}
