package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  string
	}{
		{ErrorExpected, "expected"},
		{ErrorInvalid, "invalid"},
		{ErrorTransient, "transient"},
		{ErrorFatal, "fatal"},
		{ErrorClass(42), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.class.String())
	}
}

func TestIsExpected(t *testing.T) {
	assert.True(t, IsExpected(ErrNotHandled))
	assert.True(t, IsExpected(ErrNoMapping))
	assert.True(t, IsExpected(fmt.Errorf("wrapped: %w", ErrNotHandled)))
	assert.False(t, IsExpected(ErrInvalidData))
	assert.False(t, IsExpected(nil))
}

func TestIsInvalid(t *testing.T) {
	assert.True(t, IsInvalid(ErrInvalidData))
	assert.True(t, IsInvalid(ErrInvalidKey))
	assert.True(t, IsInvalid(ErrUnknownPlugin))
	assert.False(t, IsInvalid(ErrNotHandled))
	assert.False(t, IsInvalid(nil))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrSourceUnavailable))
	assert.True(t, IsTransient(ErrConnectionLost))
	assert.True(t, IsTransient(errors.New("dial tcp: connection refused")))
	assert.True(t, IsTransient(errors.New("request timeout")))
	assert.False(t, IsTransient(errors.New("some defect")))
	assert.False(t, IsTransient(nil))
}

func TestClassify_UnknownErrorIsFatal(t *testing.T) {
	// An unexpected fault may indicate a defect, not a bad message
	assert.Equal(t, ErrorFatal, Classify(errors.New("nil pointer dereference")))
	assert.Equal(t, ErrorExpected, Classify(ErrNotHandled))
	assert.Equal(t, ErrorInvalid, Classify(ErrInvalidData))
	assert.Equal(t, ErrorTransient, Classify(ErrSourceUnavailable))
}

func TestWrap(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(base, "Dispatcher", "handle", "worker invocation")
	require.Error(t, err)
	assert.Equal(t, "Dispatcher.handle: worker invocation failed: boom", err.Error())
	assert.True(t, errors.Is(err, base))

	assert.NoError(t, Wrap(nil, "Dispatcher", "handle", "noop"))
}

func TestWrapClassified(t *testing.T) {
	base := errors.New("boom")

	expected := WrapExpected(base, "Handler", "Handle", "plugin match")
	assert.True(t, IsExpected(expected))
	assert.True(t, errors.Is(expected, base))

	invalid := WrapInvalid(base, "Handler", "Handle", "parse filename")
	assert.True(t, IsInvalid(invalid))
	assert.False(t, IsExpected(invalid))

	transient := WrapTransient(base, "Cache", "Load", "fetch mappings")
	assert.True(t, IsTransient(transient))

	fatal := WrapFatal(base, "Dispatcher", "Run", "subscription")
	assert.True(t, IsFatal(fatal))

	assert.NoError(t, WrapExpected(nil, "x", "y", "z"))
	assert.NoError(t, WrapInvalid(nil, "x", "y", "z"))
	assert.NoError(t, WrapTransient(nil, "x", "y", "z"))
	assert.NoError(t, WrapFatal(nil, "x", "y", "z"))
}

func TestClassifiedError_Unwrap(t *testing.T) {
	err := WrapInvalid(ErrInvalidData, "Handler", "Handle", "decode")
	assert.True(t, errors.Is(err, ErrInvalidData))

	var ce *ClassifiedError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrorInvalid, ce.Class)
	assert.Equal(t, "Handler", ce.Component)
}
