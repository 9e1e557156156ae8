// Package discovery matches address-book contacts to registered accounts
// using irreversible discovery hashes. A discovery run hashes the contact
// snapshot, queries the directory by exact-match hash (composite preferred
// over phone over email), deduplicates by account, attaches friend-request
// status, and tracks aggregate statistics.
package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/dyluth/flock/internal/contacthash"
	"github.com/dyluth/flock/pkg/roster"
)

// ErrPermissionDenied is returned by a ContactsSource when the device
// address book cannot be read.
var ErrPermissionDenied = errors.New("contacts permission denied")

// ErrDiscoveryInFlight is returned by Discover when a previous run has not
// finished. Concurrent runs are rejected rather than interleaved so the
// stats accumulator stays single-writer.
var ErrDiscoveryInFlight = errors.New("discovery already in flight")

// MatchType records which discovery hash produced a match.
type MatchType string

const (
	// MatchPhone means the contact matched via its phone-number hash
	MatchPhone MatchType = "phone"

	// MatchEmail means the contact matched via its email hash
	MatchEmail MatchType = "email"

	// MatchComposite means the contact matched via the combined hash,
	// the strongest, disambiguating signal
	MatchComposite MatchType = "composite"
)

// DiscoveredUser is one successful contact-to-account match.
type DiscoveredUser struct {
	UserID         string
	DisplayName    string
	AvatarURL      string
	MatchedContact contacthash.Contact
	MatchType      MatchType
	RequestStatus  roster.RequestStatus
	LastActive     time.Time // zero when the directory has no activity record
	IsOnline       bool
}

// Result is one value emitted on a discovery stream. Exactly one terminal
// result is emitted per run; Progress results may precede it.
type Result interface {
	// Terminal reports whether this result ends the discovery run.
	Terminal() bool
}

// Progress reports partial completion of the backend lookup phase.
type Progress struct {
	Processed int // valid hashes resolved so far
	Total     int // valid hashes in this run
}

// Success carries the deduplicated match list. Never empty.
type Success struct {
	Matches []DiscoveredUser
}

// NoMatches is the legitimate empty outcome. TotalContactsSearched counts the
// original snapshot, including contacts that had no usable phone or email.
type NoMatches struct {
	TotalContactsSearched int
}

// PermissionDenied is emitted when the contact snapshot cannot be read.
// Stats are not touched.
type PermissionDenied struct{}

// Failure is a backend or transport fault. A failed run is not a processed
// attempt: stats are not touched. Retry policy belongs to the caller.
type Failure struct {
	Reason error
}

// Terminal implementations.
func (Progress) Terminal() bool         { return false }
func (Success) Terminal() bool          { return true }
func (NoMatches) Terminal() bool        { return true }
func (PermissionDenied) Terminal() bool { return true }
func (Failure) Terminal() bool          { return true }

// Stats is the process-wide discovery accumulator. Values are copies;
// mutation happens only inside the matcher.
type Stats struct {
	TotalDiscoveryAttempts int
	TotalContactsProcessed int
	TotalUsersDiscovered   int
	AverageMatchRate       float64 // discovered / processed, 0 when processed is 0
	HasStats               bool
}

// ContactsSource supplies the read-only contact snapshot for one run.
// Implementations return ErrPermissionDenied (possibly wrapped) when the
// address book is not readable.
type ContactsSource interface {
	Contacts(ctx context.Context) ([]contacthash.Contact, error)
}

// SourceFunc adapts a function to the ContactsSource interface.
type SourceFunc func(ctx context.Context) ([]contacthash.Contact, error)

// Contacts implements ContactsSource.
func (f SourceFunc) Contacts(ctx context.Context) ([]contacthash.Contact, error) {
	return f(ctx)
}

// SliceSource returns a ContactsSource over a fixed snapshot.
func SliceSource(contacts []contacthash.Contact) ContactsSource {
	return SourceFunc(func(context.Context) ([]contacthash.Contact, error) {
		return contacts, nil
	})
}
