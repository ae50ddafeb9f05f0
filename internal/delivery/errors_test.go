package delivery

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindMatching(t *testing.T) {
	tr := NewTransient("telegram", "Status: 502. Body: <NO BODY>", nil)
	fa := NewFatal("telegram", "Status: 403. Body: forbidden", nil)

	assert.True(t, IsTransient(tr))
	assert.False(t, IsFatal(tr))
	assert.True(t, IsFatal(fa))
	assert.False(t, IsTransient(fa))

	wrapped := fmt.Errorf("send: %w", fa)
	assert.True(t, IsFatal(wrapped))
	de, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, Fatal, de.Kind)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "telegram fatal error: Status: 400. Body: <NO BODY>",
		NewFatal("telegram", "Status: 400. Body: <NO BODY>", nil).Error())
	assert.Equal(t, "delivery temporary error: dial tcp: refused",
		NewTransient("", "", errors.New("dial tcp: refused")).Error())
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewTransient("telegram", "x", cause)
	assert.ErrorIs(t, err, cause)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("retry")
	require.NoError(t, err)
	assert.Equal(t, Transient, k)

	k, err = ParseKind("permanent")
	require.NoError(t, err)
	assert.Equal(t, Fatal, k)

	_, err = ParseKind("maybe")
	assert.Error(t, err)
}
