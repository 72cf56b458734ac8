package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Positive(t, EstimateTokens("hello"))

	short := EstimateTokens("Lives in Berlin")
	long := EstimateTokens(strings.Repeat("Lives in Berlin ", 20))
	assert.Greater(t, long, short)
}

func TestFitCount(t *testing.T) {
	texts := []string{
		strings.Repeat("word ", 20),
		strings.Repeat("word ", 20),
		strings.Repeat("word ", 20),
	}
	per := EstimateTokens(texts[0]) + Overhead

	assert.Equal(t, 3, FitCount(texts, 0), "zero budget is unlimited")
	assert.Equal(t, 3, FitCount(texts, -1))
	assert.Equal(t, 0, FitCount(texts, per-1))
	assert.Equal(t, 1, FitCount(texts, per))
	assert.Equal(t, 2, FitCount(texts, 2*per+1))
	assert.Equal(t, 3, FitCount(texts, 100*per))
	assert.Equal(t, 0, FitCount(nil, 10))
}
