package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsMonotonic(t *testing.T) {
	t.Parallel()

	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestAtRoundTripsTime(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 2, 26, 8, 30, 0, 0, time.UTC)
	got, err := Time(At(ts))
	require.NoError(t, err)
	assert.True(t, ts.Equal(got))
}

func TestTimeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Time("not-a-ulid")
	assert.Error(t, err)
}

func TestShort(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", Short("abc"))
	assert.Equal(t, "ABCDEFGH", Short("01HZZZZZZZZZZZZZZZABCDEFGH"))
}
