package presence

import (
	"sort"
	"time"

	"github.com/dyluth/flock/pkg/geo"
)

// NearbyFriend is a projection computed on demand from presence state and the
// viewer's location. DistanceMeters carries geo.MaxDistance when the viewer's
// location is unknown, so downstream sort and format code has no null case.
type NearbyFriend struct {
	ID             string
	DisplayName    string
	AvatarURL      string
	DistanceMeters float64
	IsOnline       bool
	LastUpdated    time.Time
	Coordinates    geo.Coordinates
}

// NearbyFriends projects every friend with a known location relative to the
// viewer. With a viewer location the result is sorted ascending by distance;
// without one, every entry carries the sentinel distance and first-seen order
// is preserved (no sort is meaningful without distances).
func (c *Cache) NearbyFriends(viewer *geo.Coordinates) []NearbyFriend {
	now := c.now()

	c.mu.RLock()
	nearby := make([]NearbyFriend, 0, len(c.order))
	for _, id := range c.order {
		fs := c.friends[id]
		if fs.location == nil {
			continue
		}

		nf := NearbyFriend{
			ID:             fs.friendID,
			DisplayName:    fs.displayName,
			AvatarURL:      fs.avatarURL,
			DistanceMeters: geo.MaxDistance,
			IsOnline:       c.effectiveOnline(fs, now),
			LastUpdated:    fs.lastSeen,
			Coordinates:    fs.location.Coordinates,
		}
		if viewer != nil {
			nf.DistanceMeters = geo.Distance(*viewer, fs.location.Coordinates)
		}
		nearby = append(nearby, nf)
	}
	c.mu.RUnlock()

	if viewer != nil {
		sort.SliceStable(nearby, func(i, j int) bool {
			return nearby[i].DistanceMeters < nearby[j].DistanceMeters
		})
	}

	return nearby
}

// NearbySelf projects nearby friends against the tracker-fed self location.
func (c *Cache) NearbySelf() []NearbyFriend {
	return c.NearbyFriends(c.SelfLocation())
}
