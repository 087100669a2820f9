package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoalesceReturnsFirstNonZero(t *testing.T) {
	assert.Equal(t, "b", Coalesce("", "b", "c"))
	assert.Equal(t, "a", Coalesce("a", "b"))
}

func TestCoalesceReturnsZeroWhenAllZero(t *testing.T) {
	assert.Equal(t, "", Coalesce("", ""))
	assert.Equal(t, 0, Coalesce(0, 0))
}
