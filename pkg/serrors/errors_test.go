package serrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseError_IsMatchesByCode(t *testing.T) {
	t.Parallel()

	sentinel := NewError("THING_MISSING", "thing missing", "Errors.ThingMissing")
	detailed := sentinel.Withf("id=%d", 7)

	require.ErrorIs(t, detailed, sentinel)
	require.ErrorIs(t, fmt.Errorf("outer: %w", detailed), sentinel)
	require.Equal(t, "thing missing: id=7", detailed.Error())

	other := NewError("OTHER", "thing missing", "")
	require.NotErrorIs(t, detailed, other)
}

func TestBaseError_WrapKeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	sentinel := NewError("FAILED", "failed", "")
	err := sentinel.Wrap(cause)

	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, "failed: boom", err.Error())

	code, ok := CodeOf(fmt.Errorf("ctx: %w", err))
	require.True(t, ok)
	require.Equal(t, "FAILED", code)

	_, ok = CodeOf(cause)
	require.False(t, ok)
}
