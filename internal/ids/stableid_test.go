package ids

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseInt64(t *testing.T) {
	t.Parallel()

	got, ok := ParseInt64("42")
	require.True(t, ok)
	require.EqualValues(t, 42, got)

	got, ok = ParseInt64(float64(7))
	require.True(t, ok)
	require.EqualValues(t, 7, got)

	_, ok = ParseInt64(7.5)
	require.False(t, ok)

	_, ok = ParseInt64("abc")
	require.False(t, ok)

	_, ok = ParseInt64(nil)
	require.False(t, ok)
}

func TestStableIDNumericPassthrough(t *testing.T) {
	t.Parallel()

	require.EqualValues(t, 123456, StableID("journal", "123456"))
	require.EqualValues(t, -5, StableID("journal", "-5"))
}

func TestStableIDHashedValues(t *testing.T) {
	t.Parallel()

	a := StableID("journal", "zkxb2024")
	b := StableID("journal", "zkxb2024")
	require.Equal(t, a, b, "same input must map to the same id")
	require.Positive(t, a)

	other := StableID("issue", "zkxb2024")
	require.NotEqual(t, a, other, "domain prefix must separate id spaces")

	require.Zero(t, StableID("journal", "  "))
}
