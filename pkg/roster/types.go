// Package roster provides type-safe Go definitions and Redis schema patterns
// for the flock directory and presence bus. The roster is the single boundary
// between the core components and the backend document store: user records
// are looked up by exact-match discovery hash, friend/request edges live in
// sets, and presence events travel over a Pub/Sub channel.
//
// All Redis keys and channels are namespaced by instance name so multiple
// flock instances can safely coexist on a single Redis server.
package roster

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dyluth/flock/pkg/geo"
)

// UserRecord is the directory's view of one registered account, stored under
// each of the account's discovery hashes.
type UserRecord struct {
	UserID       string `json:"user_id"`        // UUID - account identifier
	DisplayName  string `json:"display_name"`   // Profile name shown to matched contacts
	AvatarURL    string `json:"avatar_url"`     // Optional profile picture URL
	IsOnline     bool   `json:"is_online"`      // Last known online flag
	LastActiveMs int64  `json:"last_active_ms"` // Unix millis of last activity, 0 if unknown
}

// HashField identifies which discovery key a directory lookup targets.
type HashField string

const (
	// HashFieldPhone matches records registered under a phone-number hash
	HashFieldPhone HashField = "phone"

	// HashFieldEmail matches records registered under an email hash
	HashFieldEmail HashField = "email"

	// HashFieldComposite matches records registered under the combined
	// phone+email hash, the strongest match signal
	HashFieldComposite HashField = "composite"
)

// RequestStatus describes the friend-request relationship between the current
// user and a discovered account.
type RequestStatus string

const (
	// StatusNone means no request exists in either direction
	StatusNone RequestStatus = "none"

	// StatusSent means the current user has an outgoing pending request
	StatusSent RequestStatus = "sent"

	// StatusReceived means the discovered account has requested the current user
	StatusReceived RequestStatus = "received"

	// StatusFriends means the two accounts are already connected
	StatusFriends RequestStatus = "friends"
)

// EventKind identifies the payload shape of a presence event.
type EventKind string

const (
	// EventLocationUpdated carries a full location payload that replaces the
	// friend's previous location wholesale
	EventLocationUpdated EventKind = "location_updated"

	// EventCameOnline marks the friend as explicitly online
	EventCameOnline EventKind = "came_online"

	// EventWentOffline marks the friend as explicitly offline
	EventWentOffline EventKind = "went_offline"

	// EventStartedMoving flips the moving flag on the friend's latest location
	EventStartedMoving EventKind = "started_moving"

	// EventStoppedMoving clears the moving flag on the friend's latest location
	EventStoppedMoving EventKind = "stopped_moving"
)

// EventLocation is the location payload carried by location_updated events.
// Optional float fields are pointers so absence survives serialization.
type EventLocation struct {
	Lat         float64  `json:"lat"`
	Lon         float64  `json:"lon"`
	AccuracyM   float64  `json:"accuracy_m"`
	AltitudeM   *float64 `json:"altitude_m,omitempty"`
	BearingDeg  *float64 `json:"bearing_deg,omitempty"`
	SpeedMps    *float64 `json:"speed_mps,omitempty"`
	IsMoving    bool     `json:"is_moving"`
	Address     string   `json:"address,omitempty"`
	TimestampMs int64    `json:"timestamp_ms"`
}

// Coordinates returns the location as a geo pair.
func (l *EventLocation) Coordinates() geo.Coordinates {
	return geo.Coordinates{Lat: l.Lat, Lon: l.Lon}
}

// PresenceEvent is one inbound update on the presence bus. Events are
// delivered at-least-once and ordered per friend; consumers must treat
// duplicate delivery of the same event as a no-op.
type PresenceEvent struct {
	FriendID    string         `json:"friend_id"`          // UUID of the friend the event concerns
	Kind        EventKind      `json:"kind"`               // Event payload shape
	Location    *EventLocation `json:"location,omitempty"` // Required for location_updated
	TimestampMs int64          `json:"timestamp_ms"`       // Unix millis when the event was produced
}

// Validate checks if the UserRecord has valid field values.
func (r *UserRecord) Validate() error {
	if !isValidUUID(r.UserID) {
		return fmt.Errorf("invalid user ID: not a valid UUID")
	}

	if r.DisplayName == "" {
		return fmt.Errorf("display name cannot be empty")
	}

	if r.LastActiveMs < 0 {
		return fmt.Errorf("last_active_ms cannot be negative")
	}

	return nil
}

// Validate checks if the HashField is a valid enum value.
func (f HashField) Validate() error {
	switch f {
	case HashFieldPhone, HashFieldEmail, HashFieldComposite:
		return nil
	default:
		return fmt.Errorf("unknown hash field: %q", f)
	}
}

// Validate checks if the EventKind is a valid enum value.
func (k EventKind) Validate() error {
	switch k {
	case EventLocationUpdated, EventCameOnline, EventWentOffline,
		EventStartedMoving, EventStoppedMoving:
		return nil
	default:
		return fmt.Errorf("unknown event kind: %q", k)
	}
}

// Validate checks if the RequestStatus is a valid enum value.
func (s RequestStatus) Validate() error {
	switch s {
	case StatusNone, StatusSent, StatusReceived, StatusFriends:
		return nil
	default:
		return fmt.Errorf("unknown request status: %q", s)
	}
}

// Validate checks if the PresenceEvent has valid field values.
func (e *PresenceEvent) Validate() error {
	if !isValidUUID(e.FriendID) {
		return fmt.Errorf("invalid friend ID: not a valid UUID")
	}

	if err := e.Kind.Validate(); err != nil {
		return fmt.Errorf("invalid kind: %w", err)
	}

	if e.TimestampMs <= 0 {
		return fmt.Errorf("timestamp_ms must be positive, got %d", e.TimestampMs)
	}

	if e.Kind == EventLocationUpdated {
		if e.Location == nil {
			return fmt.Errorf("location_updated event requires a location payload")
		}
		if !e.Location.Coordinates().Valid() {
			return fmt.Errorf("location out of range: lat=%v lon=%v", e.Location.Lat, e.Location.Lon)
		}
		if e.Location.AccuracyM < 0 {
			return fmt.Errorf("accuracy_m cannot be negative")
		}
	}

	return nil
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
