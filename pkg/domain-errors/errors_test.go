package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCauseAndCode(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeInternal, "failed to insert profile")

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.True(t, HasCode(err, CodeInternal))
	assert.Equal(t, "failed to insert profile: connection reset", err.Error())

	msg, ok := MessageOf(err)
	require.True(t, ok)
	assert.Equal(t, "failed to insert profile", msg)
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestCodeOfThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("phase auth: %w", New(CodeConflict, "User already registered"))

	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, CodeConflict, code)
	assert.False(t, HasCode(err, CodeInternal))
}

func TestCodeOfPlainError(t *testing.T) {
	_, ok := CodeOf(errors.New("plain"))
	assert.False(t, ok)
	_, ok = MessageOf(nil)
	assert.False(t, ok)
}
