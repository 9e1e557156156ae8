// Package presence owns the live, merged view of every friend's location,
// motion, and online/offline status. A single merge loop applies events from
// a presence subscription in arrival order; readers take immutable snapshots
// and never observe a friend mid-merge.
//
// Online status follows the staleness rule: a friend is online only while an
// explicit online signal was last received AND the last signal is fresher
// than the online window. Staleness alone demotes a friend to offline,
// without waiting for an explicit offline event.
package presence

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dyluth/flock/pkg/geo"
	"github.com/dyluth/flock/pkg/roster"
)

const (
	// DefaultOnlineWindow is the staleness threshold after which a friend is
	// considered offline absent a fresher signal.
	DefaultOnlineWindow = 5 * time.Minute

	// DefaultSweepInterval is how often the merge loop demotes stale friends
	// in the stored state. Reads additionally apply the window lazily, so the
	// sweep cadence never affects what a reader can observe.
	DefaultSweepInterval = 30 * time.Second
)

// ConnectionState describes the health of the underlying update stream.
type ConnectionState string

const (
	// StateDisconnected means no subscription is active
	StateDisconnected ConnectionState = "disconnected"

	// StateConnecting means Start has been called and the subscription is opening
	StateConnecting ConnectionState = "connecting"

	// StateConnected means the stream is open and events are being merged
	StateConnected ConnectionState = "connected"

	// StateError means the subscription could not be opened
	StateError ConnectionState = "error"
)

// Source is the update-stream capability the cache consumes.
// *roster.Client satisfies it; stub sources can be built with
// roster.NewPresenceSubscription.
type Source interface {
	SubscribePresenceEvents(ctx context.Context) (*roster.PresenceSubscription, error)
}

// FriendLocation is one friend's location at a point in time. Values are
// superseded wholesale by newer events, never mutated in place.
type FriendLocation struct {
	Coordinates geo.Coordinates
	AccuracyM   float64
	AltitudeM   *float64
	BearingDeg  *float64
	SpeedMps    *float64
	IsMoving    bool
	Address     string
	Timestamp   time.Time
}

// FriendState is an immutable snapshot of one friend's merged state.
// IsOnline already has the staleness rule applied.
type FriendState struct {
	FriendID    string
	DisplayName string
	AvatarURL   string
	Location    *FriendLocation
	IsOnline    bool
	LastSeen    time.Time
}

// friendState is the mutable form owned exclusively by the merge loop.
type friendState struct {
	friendID    string
	displayName string
	avatarURL   string
	location    *FriendLocation
	online      bool // raw explicit signal; staleness applied on read
	lastSeen    time.Time
}

// Options tunes a Cache. Zero values select defaults.
type Options struct {
	OnlineWindow  time.Duration
	SweepInterval time.Duration
	Now           func() time.Time // injectable clock
}

// Cache is the authoritative merged presence state for all friends.
type Cache struct {
	source        Source
	onlineWindow  time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	mu      sync.RWMutex
	state   ConnectionState
	friends map[string]*friendState
	order   []string // friend IDs in first-seen order
	self    *geo.Coordinates

	cancel  context.CancelFunc
	sub     *roster.PresenceSubscription
	wg      sync.WaitGroup
	running bool
}

// NewCache creates a presence cache over the given event source.
func NewCache(source Source, opts Options) (*Cache, error) {
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if opts.OnlineWindow <= 0 {
		opts.OnlineWindow = DefaultOnlineWindow
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Cache{
		source:        source,
		onlineWindow:  opts.OnlineWindow,
		sweepInterval: opts.SweepInterval,
		now:           opts.Now,
		state:         StateDisconnected,
		friends:       make(map[string]*friendState),
	}, nil
}

// ConnectionState returns the current stream state.
func (c *Cache) ConnectionState() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Start opens the subscription and launches the merge loop.
// State moves Disconnected -> Connecting -> Connected; a failed subscription
// open leaves the cache in StateError. Returns an error if already running.
func (c *Cache) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("presence cache already started")
	}
	c.running = true
	c.state = StateConnecting
	c.mu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)

	sub, err := c.source.SubscribePresenceEvents(loopCtx)
	if err != nil {
		cancel()
		c.mu.Lock()
		c.running = false
		c.state = StateError
		c.mu.Unlock()
		return fmt.Errorf("failed to open update stream: %w", err)
	}

	c.mu.Lock()
	c.cancel = cancel
	c.sub = sub
	c.state = StateConnected
	c.mu.Unlock()

	c.wg.Add(1)
	go c.mergeLoop(loopCtx, sub)

	return nil
}

// Stop tears down the subscription and joins the merge loop before returning,
// so no event is applied after Stop returns. Safe to call from any state and
// idempotent; the cache always reads Disconnected afterwards, including from
// StateError after a failed Start.
func (c *Cache) Stop() {
	c.mu.Lock()
	if !c.running {
		c.state = StateDisconnected
		c.mu.Unlock()
		return
	}
	c.running = false
	sub := c.sub
	cancel := c.cancel
	c.sub = nil
	c.cancel = nil
	c.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
}

// mergeLoop is the single writer of friend state. It applies events in
// arrival order and periodically demotes stale friends.
func (c *Cache) mergeLoop(ctx context.Context, sub *roster.PresenceSubscription) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.setDisconnected()
			return

		case ev, ok := <-sub.Events():
			if !ok {
				// Stream closed by the transport or by Stop.
				c.setDisconnected()
				return
			}
			c.apply(ev)

		case err, ok := <-sub.Errors():
			if ok && err != nil {
				// Malformed events are skipped, not fatal.
				log.Printf("[WARN] presence stream: %v", err)
			}

		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) setDisconnected() {
	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
}

// apply merges one inbound event. Applying the same event twice leaves the
// state identical to applying it once: every mutation assigns values derived
// only from the event payload.
func (c *Cache) apply(ev *roster.PresenceEvent) {
	if err := ev.Validate(); err != nil {
		log.Printf("[WARN] dropping invalid presence event: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fs := c.friends[ev.FriendID]
	if fs == nil {
		fs = &friendState{friendID: ev.FriendID}
		c.friends[ev.FriendID] = fs
		c.order = append(c.order, ev.FriendID)
	}

	ts := time.UnixMilli(ev.TimestampMs)

	switch ev.Kind {
	case roster.EventLocationUpdated:
		// Wholesale replacement; does not imply online status.
		fs.location = locationFromEvent(ev.Location)
		fs.lastSeen = ts

	case roster.EventCameOnline:
		fs.online = true
		fs.lastSeen = ts

	case roster.EventWentOffline:
		fs.online = false
		fs.lastSeen = ts

	case roster.EventStartedMoving:
		if fs.location != nil {
			fs.location.IsMoving = true
		}
		fs.lastSeen = ts

	case roster.EventStoppedMoving:
		if fs.location != nil {
			fs.location.IsMoving = false
		}
		fs.lastSeen = ts
	}
}

// sweep demotes any friend whose last signal is older than the online window.
// Staleness always wins over the last explicit signal.
func (c *Cache) sweep() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, fs := range c.friends {
		if fs.online && now.Sub(fs.lastSeen) >= c.onlineWindow {
			fs.online = false
		}
	}
}

// effectiveOnline applies the staleness rule to the raw signal at read time,
// so a reader can never observe an expired "online" flag regardless of sweep
// timing.
func (c *Cache) effectiveOnline(fs *friendState, now time.Time) bool {
	return fs.online && now.Sub(fs.lastSeen) < c.onlineWindow
}

// snapshotLocked copies one friend's state with staleness applied.
// Caller holds at least the read lock.
func (c *Cache) snapshotLocked(fs *friendState, now time.Time) FriendState {
	snap := FriendState{
		FriendID:    fs.friendID,
		DisplayName: fs.displayName,
		AvatarURL:   fs.avatarURL,
		IsOnline:    c.effectiveOnline(fs, now),
		LastSeen:    fs.lastSeen,
	}
	if fs.location != nil {
		loc := *fs.location
		snap.Location = &loc
	}
	return snap
}

// Friend returns a snapshot of one friend's state.
func (c *Cache) Friend(friendID string) (FriendState, bool) {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	fs, ok := c.friends[friendID]
	if !ok {
		return FriendState{}, false
	}
	return c.snapshotLocked(fs, now), true
}

// Friends returns snapshots of every tracked friend in first-seen order.
func (c *Cache) Friends() []FriendState {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]FriendState, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.snapshotLocked(c.friends[id], now))
	}
	return out
}

// Moving reports whether a friend is currently moving. A stale moving flag on
// an offline friend is never reported as moving.
func (c *Cache) Moving(friendID string) bool {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	fs, ok := c.friends[friendID]
	if !ok || fs.location == nil {
		return false
	}
	return fs.location.IsMoving && c.effectiveOnline(fs, now)
}

// UpsertProfile attaches directory profile fields (from discovery) to a
// friend's presence state so projections can render names and avatars.
// Creates the friend entry if it does not exist yet.
func (c *Cache) UpsertProfile(friendID, displayName, avatarURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fs := c.friends[friendID]
	if fs == nil {
		fs = &friendState{friendID: friendID}
		c.friends[friendID] = fs
		c.order = append(c.order, friendID)
	}
	fs.displayName = displayName
	fs.avatarURL = avatarURL
}

// SetSelfLocation records the local user's own location, typically fed by the
// background tracker.
func (c *Cache) SetSelfLocation(loc geo.Coordinates) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.self = &loc
}

// SelfLocation returns the local user's last known location, or nil.
func (c *Cache) SelfLocation() *geo.Coordinates {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.self == nil {
		return nil
	}
	loc := *c.self
	return &loc
}

// locationFromEvent converts the wire payload into the cache's location type.
func locationFromEvent(l *roster.EventLocation) *FriendLocation {
	loc := &FriendLocation{
		Coordinates: l.Coordinates(),
		AccuracyM:   l.AccuracyM,
		IsMoving:    l.IsMoving,
		Address:     l.Address,
		Timestamp:   time.UnixMilli(l.TimestampMs),
	}
	if l.AltitudeM != nil {
		v := *l.AltitudeM
		loc.AltitudeM = &v
	}
	if l.BearingDeg != nil {
		v := *l.BearingDeg
		loc.BearingDeg = &v
	}
	if l.SpeedMps != nil {
		v := *l.SpeedMps
		loc.SpeedMps = &v
	}
	return loc
}
