package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBusinessDayBeforeCutoff(t *testing.T) {
	// 1 AM belongs to the previous day's drawer.
	at := time.Date(2025, 3, 15, 1, 30, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), BusinessDay(at, 4))
}

func TestBusinessDayAfterCutoff(t *testing.T) {
	at := time.Date(2025, 3, 15, 4, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), BusinessDay(at, 4))

	at = time.Date(2025, 3, 15, 23, 59, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), BusinessDay(at, 4))
}

func TestBusinessDayMidnightCutoff(t *testing.T) {
	// Cutoff 0 rolls over exactly at midnight: 3 AM is already today.
	at := time.Date(2025, 3, 15, 3, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), BusinessDay(at, 0))
}

func TestBusinessDayDefaultsCutoff(t *testing.T) {
	at := time.Date(2025, 3, 15, 3, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), BusinessDay(at, -1))
	require.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), BusinessDay(at, 13))
}

func TestSameBusinessDay(t *testing.T) {
	evening := time.Date(2025, 3, 14, 22, 0, 0, 0, time.UTC)
	lateNight := time.Date(2025, 3, 15, 2, 0, 0, 0, time.UTC)
	morning := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	require.True(t, SameBusinessDay(evening, lateNight, 4))
	require.False(t, SameBusinessDay(lateNight, morning, 4))
}
