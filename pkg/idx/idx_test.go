package idx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewProducesValidIDs(t *testing.T) {
	t.Parallel()

	id := New()
	require.False(t, id.IsZero())

	parsed, err := Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestParseRejectsMalformedInput(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "   ", "not-a-ulid", "0123456789"} {
		_, err := Parse(input)
		require.ErrorIs(t, err, ErrInvalid, "input %q", input)
	}
}

func TestNewAtEmbedsTimestamp(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	id := NewAt(at)
	require.Equal(t, at.Truncate(time.Millisecond), id.Time())
}

func TestIDsAreMonotonicWithinSameMillisecond(t *testing.T) {
	t.Parallel()

	at := time.Now().UTC()
	a := NewAt(at)
	b := NewAt(at)
	require.Less(t, a.String(), b.String())
}
