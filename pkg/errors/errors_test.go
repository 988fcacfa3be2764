package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			err:      New(CodeMalformedInput, "bad json on line 3"),
			expected: "[MALFORMED_INPUT] bad json on line 3",
		},
		{
			name:     "with underlying error",
			err:      Wrap(CodeOutputFailure, "write failed", errors.New("disk full")),
			expected: "[OUTPUT_FAILURE] write failed: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodeOutputFailure, "write failed", underlying)

	assert.Equal(t, underlying, err.Unwrap())
}

func TestAppError_Is(t *testing.T) {
	err1 := New(CodeMalformedInput, "error 1")
	err2 := New(CodeMalformedInput, "error 2")
	err3 := New(CodeBadFlag, "error 3")

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestIsMalformedInput(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"sentinel", ErrMalformedInput, true},
		{"wrapped", Wrap(CodeMalformedInput, "bad line", errors.New("unexpected token")), true},
		{"other code", ErrBadFlag, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsMalformedInput(tt.err))
		})
	}
}

func TestIsOutputFailure(t *testing.T) {
	assert.True(t, IsOutputFailure(ErrOutputFailure))
	assert.False(t, IsOutputFailure(ErrMalformedInput))
}

func TestIsBadFlag(t *testing.T) {
	assert.True(t, IsBadFlag(ErrBadFlag))
	assert.False(t, IsBadFlag(ErrMalformedInput))
}

func TestIsUnknownReroot(t *testing.T) {
	assert.True(t, IsUnknownReroot(ErrUnknownReroot))
	assert.False(t, IsUnknownReroot(ErrMalformedInput))
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "app error",
			err:      New(CodeMalformedInput, "bad"),
			expected: CodeMalformedInput,
		},
		{
			name:     "wrapped app error",
			err:      Wrap(CodeUnknownRef, "ref", errors.New("inner")),
			expected: CodeUnknownRef,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: CodeUnknown,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetErrorCode(tt.err))
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil", nil, 0},
		{"bad flag", ErrBadFlag, 2},
		{"malformed input", ErrMalformedInput, 1},
		{"output failure", ErrOutputFailure, 1},
		{"unknown reroot", ErrUnknownReroot, 1},
		{"plain error", errors.New("boom"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExitCode(tt.err))
		})
	}
}
