package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatTokens(t *testing.T) {
	tests := []struct {
		tokens int64
		want   string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1.0K"},
		{131072, "131.1K"},
		{1_500_000, "1.50M"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatTokens(tt.tokens))
	}
}

func TestPercentOf(t *testing.T) {
	assert.InDelta(t, 81.0, percentOf(81, 100), 0.001)
	assert.Equal(t, 0.0, percentOf(50, 0))
}

func TestRenderProgressBarClamps(t *testing.T) {
	// Out-of-range inputs must not panic or overflow the bar width.
	assert.NotEmpty(t, renderProgressBar(-10, 10))
	assert.NotEmpty(t, renderProgressBar(250, 10))
}
