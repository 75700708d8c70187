package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreWrapsBackendFailure(t *testing.T) {
	err := Store("chats.get", errors.New("connection reset"))

	assert.ErrorIs(t, err, ErrStore)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, ErrStore, Kind(err))
}

func TestStoreKeepsExistingKind(t *testing.T) {
	notFound := fmt.Errorf("chat %w", ErrNotFound)
	err := Store("chats.get", notFound)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, errors.Is(err, ErrStore))
}

func TestStoreNil(t *testing.T) {
	assert.NoError(t, Store("noop", nil))
}

func TestValidationMessage(t *testing.T) {
	err := Validation("message text is empty")

	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "validation failed: message text is empty", err.Error())
}

func TestKindUnknown(t *testing.T) {
	assert.Nil(t, Kind(errors.New("plain")))
}
