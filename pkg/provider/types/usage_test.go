package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func int64p(v int64) *int64 { return &v }

func TestUsageAdd(t *testing.T) {
	a := Usage{InputTokens: int64p(10), OutputTokens: int64p(5), TotalTokens: int64p(15)}
	b := Usage{InputTokens: int64p(20), OutputTokens: int64p(8), TotalTokens: int64p(28)}

	sum := a.Add(b)

	assert.Equal(t, int64(30), sum.GetInputTokens())
	assert.Equal(t, int64(13), sum.GetOutputTokens())
	assert.Equal(t, int64(43), sum.GetTotalTokens())
}

func TestUsageAddNil(t *testing.T) {
	var a, b Usage
	sum := a.Add(b)
	assert.Equal(t, int64(0), sum.GetInputTokens())
}

func TestUsageAddDetails(t *testing.T) {
	a := Usage{InputDetails: &InputTokenDetails{CacheReadTokens: int64p(3)}}
	b := Usage{InputDetails: &InputTokenDetails{CacheReadTokens: int64p(4)}}

	sum := a.Add(b)

	assert.NotNil(t, sum.InputDetails)
	assert.Equal(t, int64(7), *sum.InputDetails.CacheReadTokens)
}

func TestUsageAddRaw(t *testing.T) {
	a := Usage{Raw: map[string]interface{}{"a": 1}}
	b := Usage{Raw: map[string]interface{}{"b": 2}}

	sum := a.Add(b)

	assert.Equal(t, 1, sum.Raw["a"])
	assert.Equal(t, 2, sum.Raw["b"])
}
