package printer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/flock/internal/discovery"
	"github.com/dyluth/flock/internal/presence"
	"github.com/dyluth/flock/pkg/geo"
	"github.com/dyluth/flock/pkg/roster"
)

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})

	t.Run("returns error with title when including suggestions", func(t *testing.T) {
		err := Error("Test Error", "Explanation", []string{"Try this fix"})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})

	t.Run("returns error with title for multiple suggestions", func(t *testing.T) {
		err := Error("Test Error", "Explanation", []string{
			"First option",
			"Second option",
		})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})
}

// Note: The Error function prints formatted output to stderr with colors. The
// error object returned only contains the title for Cobra's error handling.
// This is intentional to avoid duplicate output while providing rich
// formatted errors.

func TestFormatDiscoveredUsers(t *testing.T) {
	matches := []discovery.DiscoveredUser{
		{
			DisplayName:   "Alice",
			MatchType:     discovery.MatchPhone,
			RequestStatus: roster.StatusFriends,
			IsOnline:      true,
		},
		{
			DisplayName:   "Bob",
			MatchType:     discovery.MatchEmail,
			RequestStatus: roster.StatusNone,
			LastActive:    time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC),
		},
	}

	out := FormatDiscoveredUsers(matches)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "online")
	assert.Contains(t, out, "last seen 2026-08-30 14:30")
}

func TestFormatNearbyFriends(t *testing.T) {
	friends := []presence.NearbyFriend{
		{
			DisplayName:    "Carol",
			DistanceMeters: 1050,
			IsOnline:       true,
			LastUpdated:    time.Date(2026, 8, 30, 9, 15, 0, 0, time.UTC),
		},
		{
			DisplayName:    "Dave",
			DistanceMeters: geo.MaxDistance,
			LastUpdated:    time.Date(2026, 8, 30, 9, 20, 0, 0, time.UTC),
		},
	}

	out := FormatNearbyFriends(friends)
	assert.Contains(t, out, "1.1 km")
	assert.Contains(t, out, "Dave")
	assert.Contains(t, out, "-")
	assert.Contains(t, out, "offline")
}
