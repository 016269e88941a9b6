package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTypeError(t *testing.T) {
	err := NewTypeError("bad argument %d", 2)
	require.EqualError(t, err, "bad argument 2")

	var te *TypeError
	require.ErrorAs(t, err, &te)
	assert.Nil(t, te.Cause)
}

func TestNewRangeError(t *testing.T) {
	err := NewRangeError("index %d out of range", 9)
	require.EqualError(t, err, "index 9 out of range")

	var re *RangeError
	require.ErrorAs(t, err, &re)
}

func TestWrapError_PreservesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := WrapError("mapping failed", cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "mapping failed")
	assert.Contains(t, err.Error(), "root cause")
}

func TestTypeError_UnwrapsThroughWrapping(t *testing.T) {
	inner := NewTypeError("inner")
	outer := fmt.Errorf("outer: %w", inner)

	var te *TypeError
	require.ErrorAs(t, outer, &te)
	assert.Equal(t, "inner", te.Message)
}

func TestPanicError(t *testing.T) {
	err := PanicError{Value: "kaboom"}
	assert.Contains(t, err.Error(), "kaboom")

	wrapped := PanicError{Value: errors.New("wrapped cause")}
	require.ErrorIs(t, wrapped, wrapped.Unwrap())
}
