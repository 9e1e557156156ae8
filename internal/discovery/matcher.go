package discovery

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dyluth/flock/internal/contacthash"
	"github.com/dyluth/flock/pkg/roster"
)

// lookupWorkers bounds the number of concurrent directory lookups per run.
const lookupWorkers = 4

// Directory is the exact-match lookup capability the matcher consumes.
// *roster.Client satisfies it.
type Directory interface {
	FindByHash(ctx context.Context, field roster.HashField, digest []byte) (*roster.UserRecord, error)
}

// Requests resolves friend-request status between two users.
// *roster.Client satisfies it.
type Requests interface {
	RequestStatus(ctx context.Context, selfID, otherID string) (roster.RequestStatus, error)
}

// Matcher turns contact snapshots into discovered users. A matcher supports
// one discovery run at a time; its stats accumulator and dedup cache survive
// across runs until ClearCache.
type Matcher struct {
	hasher *contacthash.Hasher
	dir    Directory
	req    Requests
	selfID string // empty means no authenticated session

	mu       sync.Mutex
	inFlight bool
	stats    Stats
	resolved map[string]*roster.UserRecord // hash key -> known hit
}

// NewMatcher creates a discovery matcher.
//
// Parameters:
//   - hasher: derives discovery keys from contacts
//   - dir: backend directory lookup capability
//   - req: friend-request status capability (may be nil; statuses default to none)
//   - selfID: authenticated user ID, or "" for an unauthenticated session
func NewMatcher(hasher *contacthash.Hasher, dir Directory, req Requests, selfID string) (*Matcher, error) {
	if hasher == nil {
		return nil, fmt.Errorf("hasher cannot be nil")
	}
	if dir == nil {
		return nil, fmt.Errorf("directory cannot be nil")
	}

	return &Matcher{
		hasher:   hasher,
		dir:      dir,
		req:      req,
		selfID:   selfID,
		resolved: make(map[string]*roster.UserRecord),
	}, nil
}

// Discover runs a single discovery pass over the source's contact snapshot.
// The returned channel carries zero or more Progress results followed by
// exactly one terminal result, then closes. The caller must drain it.
//
// Returns ErrDiscoveryInFlight if a previous run has not finished.
func (m *Matcher) Discover(ctx context.Context, source ContactsSource) (<-chan Result, error) {
	m.mu.Lock()
	if m.inFlight {
		m.mu.Unlock()
		return nil, ErrDiscoveryInFlight
	}
	m.inFlight = true
	m.mu.Unlock()

	results := make(chan Result, lookupWorkers)

	go func() {
		defer close(results)
		defer func() {
			m.mu.Lock()
			m.inFlight = false
			m.mu.Unlock()
		}()

		m.run(ctx, source, results)
	}()

	return results, nil
}

// run executes the discovery algorithm and emits the terminal result.
func (m *Matcher) run(ctx context.Context, source ContactsSource, results chan<- Result) {
	contacts, err := source.Contacts(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			results <- PermissionDenied{}
			return
		}
		results <- Failure{Reason: fmt.Errorf("failed to read contacts: %w", err)}
		return
	}

	if len(contacts) == 0 {
		m.recordAttempt(0, 0)
		results <- NoMatches{TotalContactsSearched: 0}
		return
	}

	// Hash everything, keep only contacts with at least one discovery key.
	type candidate struct {
		contact contacthash.Contact
		hash    contacthash.ContactHash
	}
	var candidates []candidate
	for _, c := range contacts {
		h := m.hasher.Hash(c)
		if h.IsValidForDiscovery() {
			candidates = append(candidates, candidate{contact: c, hash: h})
		}
	}

	if len(candidates) == 0 {
		m.recordAttempt(len(contacts), 0)
		results <- NoMatches{TotalContactsSearched: len(contacts)}
		return
	}

	// Resolve candidates against the directory on a bounded worker pool.
	// The terminal result waits for the full join; a backend fault cancels
	// the remaining lookups and fails the run without touching stats.
	type outcome struct {
		record    *roster.UserRecord
		matchType MatchType
	}
	outcomes := make([]outcome, len(candidates))

	lookupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        sync.WaitGroup
		errOnce   sync.Once
		lookupErr error
		doneMu    sync.Mutex
		done      int
	)

	work := make(chan int)
	for w := 0; w < lookupWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				rec, mt, err := m.lookup(lookupCtx, candidates[i].hash)
				if err != nil {
					errOnce.Do(func() {
						lookupErr = err
						cancel()
					})
					return
				}
				outcomes[i] = outcome{record: rec, matchType: mt}

				doneMu.Lock()
				done++
				progress := Progress{Processed: done, Total: len(candidates)}
				doneMu.Unlock()

				// Progress is best-effort: never block the pool on a slow consumer.
				select {
				case results <- progress:
				default:
				}
			}
		}()
	}

feed:
	for i := range candidates {
		select {
		case work <- i:
		case <-lookupCtx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	if lookupErr != nil {
		results <- Failure{Reason: lookupErr}
		return
	}
	if err := ctx.Err(); err != nil {
		results <- Failure{Reason: err}
		return
	}

	// Deduplicate by account: a contact can match the same record via both
	// phone and email. First contact in snapshot order wins.
	seen := make(map[string]bool)
	var matches []DiscoveredUser
	for i, out := range outcomes {
		if out.record == nil || seen[out.record.UserID] {
			continue
		}
		seen[out.record.UserID] = true

		du := DiscoveredUser{
			UserID:         out.record.UserID,
			DisplayName:    out.record.DisplayName,
			AvatarURL:      out.record.AvatarURL,
			MatchedContact: candidates[i].contact,
			MatchType:      out.matchType,
			RequestStatus:  roster.StatusNone,
			IsOnline:       out.record.IsOnline,
		}
		if out.record.LastActiveMs > 0 {
			du.LastActive = time.UnixMilli(out.record.LastActiveMs)
		}
		matches = append(matches, du)
	}

	// Resolve friend-request status. Without an authenticated session every
	// status stays at its default rather than failing the run.
	if m.selfID != "" && m.req != nil {
		for i := range matches {
			status, err := m.req.RequestStatus(ctx, m.selfID, matches[i].UserID)
			if err != nil {
				results <- Failure{Reason: fmt.Errorf("failed to resolve request status: %w", err)}
				return
			}
			matches[i].RequestStatus = status
		}
	}

	m.recordAttempt(len(contacts), len(matches))

	if len(matches) == 0 {
		results <- NoMatches{TotalContactsSearched: len(contacts)}
		return
	}
	results <- Success{Matches: matches}
}

// lookup resolves one contact hash against the directory, preferring the
// composite hash over phone over email. Known results are served from the
// cross-run dedup cache without touching the backend.
func (m *Matcher) lookup(ctx context.Context, h contacthash.ContactHash) (*roster.UserRecord, MatchType, error) {
	type probe struct {
		field     roster.HashField
		digest    []byte
		matchType MatchType
	}
	probes := []probe{
		{roster.HashFieldComposite, h.CompositeHash, MatchComposite},
		{roster.HashFieldPhone, h.HashedPhone, MatchPhone},
		{roster.HashFieldEmail, h.HashedEmail, MatchEmail},
	}

	for _, p := range probes {
		if p.digest == nil {
			continue
		}

		cacheKey := string(p.field) + ":" + hex.EncodeToString(p.digest)

		m.mu.Lock()
		rec := m.resolved[cacheKey]
		m.mu.Unlock()

		if rec == nil {
			var err error
			rec, err = m.dir.FindByHash(ctx, p.field, p.digest)
			if err != nil && !roster.IsNotFound(err) {
				return nil, "", fmt.Errorf("directory lookup failed: %w", err)
			}

			// Only hits are cached: a miss may become a hit when the
			// account registers later.
			if rec != nil {
				m.mu.Lock()
				m.resolved[cacheKey] = rec
				m.mu.Unlock()
			}
		}

		if rec != nil {
			return rec, p.matchType, nil
		}
	}

	return nil, "", nil
}

// recordAttempt folds one completed run into the accumulator.
// Failed and permission-denied runs never reach here.
func (m *Matcher) recordAttempt(processed, discovered int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.TotalDiscoveryAttempts++
	m.stats.TotalContactsProcessed += processed
	m.stats.TotalUsersDiscovered += discovered
	if m.stats.TotalContactsProcessed > 0 {
		m.stats.AverageMatchRate = float64(m.stats.TotalUsersDiscovered) / float64(m.stats.TotalContactsProcessed)
	} else {
		m.stats.AverageMatchRate = 0
	}
	m.stats.HasStats = true
}

// Stats returns a copy of the accumulator.
func (m *Matcher) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// ClearCache resets the stats accumulator to zero and discards the
// cross-run match dedup cache.
func (m *Matcher) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = Stats{}
	m.resolved = make(map[string]*roster.UserRecord)
}
