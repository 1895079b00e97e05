package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasOversizeToken_FlagsTokenBeyondBound(t *testing.T) {
	assert.False(t, hasOversizeToken([]int{1, 2, 3, maxSingleTokenChars}))
	assert.True(t, hasOversizeToken([]int{1, 2, maxSingleTokenChars + 1}))
}

func TestHasOversizeToken_EmptyIsNotOversize(t *testing.T) {
	assert.False(t, hasOversizeToken(nil))
}
