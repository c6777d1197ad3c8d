package aiprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_EmptyKeyReturnsFallback(t *testing.T) {
	p := New("")
	text, fallback, err := p.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, fallback)
	assert.Equal(t, "hello", text)
}

func TestDeterministicCompletion_TruncatesLongPrompts(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	out := deterministicCompletion(string(long))
	assert.Len(t, out, 200)
}

func TestFallbackProvider_NeverErrors(t *testing.T) {
	fb := fallbackProvider{}
	_, fallback, err := fb.Complete(context.Background(), "anything")
	assert.NoError(t, err)
	assert.True(t, fallback)
}
