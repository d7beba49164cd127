package ratex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterEnforcesBurst(t *testing.T) {
	t.Parallel()

	l := NewLimiter(Config{RequestsPerWindow: 3, Window: time.Minute, Burst: 3})

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow("user-a"))
	}
	require.False(t, l.Allow("user-a"))

	// Independent key gets its own bucket.
	require.True(t, l.Allow("user-b"))
}

func TestLimiterDefaults(t *testing.T) {
	t.Parallel()

	l := NewLimiter(Config{})
	for i := 0; i < 5; i++ {
		require.True(t, l.Allow("k"))
	}
	require.False(t, l.Allow("k"))
}
