package treeporterrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrorTypeValidation, "count out of range")

	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Equal(t, "count out of range", err.Message)
	assert.Nil(t, err.Cause)
	assert.NotEmpty(t, err.Stack)
	assert.Contains(t, err.Error(), "count out of range")
}

func TestNewf(t *testing.T) {
	err := Newf(ErrorTypeConflict, "object %q already exists", "events")

	assert.Equal(t, ErrorTypeConflict, err.Type)
	assert.Equal(t, `object "events" already exists`, err.Message)
}

func TestWrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, ErrorTypeFile, "cannot publish object")

	assert.Equal(t, ErrorTypeFile, err.Type)
	assert.Equal(t, cause, err.Cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "cannot publish object")
	assert.Contains(t, err.Error(), "disk full")
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeFile, "ignored"))
}

func TestWrapPreservesStack(t *testing.T) {
	inner := New(ErrorTypeData, "bad payload")
	outer := Wrap(inner, ErrorTypeFile, "cannot read record")

	assert.Equal(t, inner.Stack, outer.Stack)
}

func TestWrapf(t *testing.T) {
	cause := errors.New("eof")
	err := Wrapf(cause, ErrorTypeFile, "cannot read record %d", 42)

	require.NotNil(t, err)
	assert.Equal(t, "cannot read record 42", err.Message)
	assert.ErrorIs(t, err, cause)
}

func TestIsType(t *testing.T) {
	err := New(ErrorTypeValidation, "bad value")

	assert.True(t, IsType(err, ErrorTypeValidation))
	assert.False(t, IsType(err, ErrorTypeFile))

	// Chain through fmt wrapping and Wrap
	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, IsType(wrapped, ErrorTypeValidation))

	rewrapped := Wrap(err, ErrorTypeFile, "io layer")
	assert.True(t, IsType(rewrapped, ErrorTypeFile))

	assert.False(t, IsType(nil, ErrorTypeFile))
	assert.False(t, IsType(errors.New("plain"), ErrorTypeFile))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeData, "decode failed").
		WithDetail("branch", "pt").
		WithDetail("record", 7)

	assert.Equal(t, "pt", err.Details["branch"])
	assert.Equal(t, 7, err.Details["record"])
}
