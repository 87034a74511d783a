package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOccurredAtZeroBecomesNull(t *testing.T) {
	// A zero time must bind as NULL so the column defaults to NOW();
	// binding the zero value directly would record year 1.
	require.Nil(t, occurredAt(time.Time{}))
}

func TestOccurredAtKeepsExplicitTimestamp(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	require.Equal(t, at, occurredAt(at))
}
