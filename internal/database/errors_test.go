package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapStoreError(t *testing.T) {
	assert.NoError(t, wrapStoreError("op", nil))

	assert.Same(t, ErrNotFound, wrapStoreError("find user", ErrNotFound))

	wrapped := fmt.Errorf("lookup: %w", ErrSessionNotFound)
	assert.Equal(t, wrapped, wrapStoreError("get session", wrapped))

	cause := errors.New("connection reset")
	err := wrapStoreError("insert tweet", cause)

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "insert tweet", se.Op)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "insert tweet: connection reset", err.Error())

	assert.Same(t, err, wrapStoreError("outer", err))
}
