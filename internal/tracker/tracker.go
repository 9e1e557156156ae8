// Package tracker produces the device's own location stream when the host
// application is backgrounded, optimizing for energy use over precision.
// The platform location source and the app-lifecycle notifications are
// injected interfaces, so the state machine is independent of any OS
// callback mechanism. Validated samples are published on an outbound channel
// for the networking collaborator and the presence cache's notion of "self".
package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dyluth/flock/pkg/geo"
)

const (
	// MaxBackgroundAccuracyM rejects samples coarser than this many meters.
	MaxBackgroundAccuracyM = 200

	// MaxSampleAge rejects samples older than this when they arrive.
	MaxSampleAge = 300 * time.Second

	// DefaultGrantLifetime bounds the background execution grant. Kept under
	// the typical platform allowance so release is always tracker-initiated.
	DefaultGrantLifetime = 170 * time.Second
)

// State is the tracker lifecycle state.
type State string

const (
	// StateIdle means no acquisition is running
	StateIdle State = "idle"

	// StateTracking means the provider subscription is live
	StateTracking State = "tracking"
)

// LifecycleEvent is an app foreground/background transition, delivered by an
// injected lifecycle signal rather than a platform callback.
type LifecycleEvent string

const (
	// EnterForeground switches to the precise profile and releases the grant
	EnterForeground LifecycleEvent = "enter_foreground"

	// EnterBackground switches to the low-power profile and arms the grant
	EnterBackground LifecycleEvent = "enter_background"
)

// Profile tunes the platform acquisition trade-off between precision and
// battery. Batching caps apply only where the platform supports deferred
// delivery; whichever cap triggers first flushes the batch.
type Profile struct {
	DesiredAccuracyM  float64
	MinDistanceM      float64
	MaxBatchDistanceM float64
	MaxBatchAge       time.Duration
}

// ForegroundProfile favors precision: tight accuracy, small distance filter,
// no deferral.
var ForegroundProfile = Profile{
	DesiredAccuracyM: 10,
	MinDistanceM:     10,
}

// BackgroundProfile favors battery: coarse accuracy, 50m distance filter,
// bounded deferred delivery.
var BackgroundProfile = Profile{
	DesiredAccuracyM:  100,
	MinDistanceM:      50,
	MaxBatchDistanceM: 500,
	MaxBatchAge:       60 * time.Second,
}

// Sample is one validated outbound location record for the local user.
type Sample struct {
	Coordinates geo.Coordinates
	AccuracyM   float64
	AltitudeM   *float64
	BearingDeg  *float64
	SpeedMps    *float64
	IsMoving    bool
	Timestamp   time.Time
}

// ProviderSubscription is an active raw-location subscription from the
// platform source, mirroring the shape of roster subscriptions.
type ProviderSubscription struct {
	samples <-chan Sample
	errors  <-chan error
	cancel  func()
	once    sync.Once
}

// NewProviderSubscription wraps pre-built channels in a subscription.
func NewProviderSubscription(samples <-chan Sample, errs <-chan error, cancel func()) *ProviderSubscription {
	if cancel == nil {
		cancel = func() {}
	}
	return &ProviderSubscription{samples: samples, errors: errs, cancel: cancel}
}

// Samples returns the channel of raw location samples.
func (s *ProviderSubscription) Samples() <-chan Sample { return s.samples }

// Errors returns the channel of provider errors.
func (s *ProviderSubscription) Errors() <-chan error { return s.errors }

// Close stops the subscription. Safe to call multiple times.
func (s *ProviderSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Provider is the platform location source boundary.
type Provider interface {
	Subscribe(ctx context.Context, profile Profile) (*ProviderSubscription, error)
}

// Permissions is the platform permission boundary. Background tracking
// requires the elevated "always" authorization.
type Permissions interface {
	AlwaysAuthorized() bool
}

// Options tunes a Tracker. Zero values select defaults.
type Options struct {
	MaxAccuracyM  float64
	MaxSampleAge  time.Duration
	GrantLifetime time.Duration
	Now           func() time.Time
}

// Tracker manages the device's own location acquisition across app-lifecycle
// transitions. One Tracker supports repeated Start/Stop cycles.
type Tracker struct {
	provider      Provider
	perms         Permissions
	maxAccuracyM  float64
	maxSampleAge  time.Duration
	grantLifetime time.Duration
	now           func() time.Time

	mu         sync.Mutex
	state      State
	background bool
	grantTimer *time.Timer
	sub        *ProviderSubscription
	cancel     context.CancelFunc
	samples    chan Sample
	diags      chan error
	stopping   bool

	wg sync.WaitGroup
}

// New creates a tracker over the given platform boundaries.
func New(provider Provider, perms Permissions, opts Options) (*Tracker, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	if perms == nil {
		return nil, fmt.Errorf("permissions cannot be nil")
	}
	if opts.MaxAccuracyM <= 0 {
		opts.MaxAccuracyM = MaxBackgroundAccuracyM
	}
	if opts.MaxSampleAge <= 0 {
		opts.MaxSampleAge = MaxSampleAge
	}
	if opts.GrantLifetime <= 0 {
		opts.GrantLifetime = DefaultGrantLifetime
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Tracker{
		provider:      provider,
		perms:         perms,
		maxAccuracyM:  opts.MaxAccuracyM,
		maxSampleAge:  opts.MaxSampleAge,
		grantLifetime: opts.GrantLifetime,
		now:           opts.Now,
		state:         StateIdle,
	}, nil
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Backgrounded reports whether the low-power profile is active.
func (t *Tracker) Backgrounded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.background
}

// GrantActive reports whether a background execution grant is currently held.
func (t *Tracker) GrantActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.grantTimer != nil
}

// Samples returns the outbound channel of validated location records.
// The channel is created by Start and closed when tracking ends.
func (t *Tracker) Samples() <-chan Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.samples
}

// Diagnostics returns the channel of classified, non-fatal tracker errors
// (rejected samples, provider faults). Delivery is best-effort: diagnostics
// are dropped rather than ever blocking the acquisition loop. The channel is
// never closed; a new one is created by each Start.
func (t *Tracker) Diagnostics() <-chan error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.diags
}

// Start begins acquisition on the foreground profile.
// Requires the "always" permission; without it the tracker fails with
// CodePermissionDenied and no state change. Returns an error if already
// tracking.
func (t *Tracker) Start(ctx context.Context) error {
	if !t.perms.AlwaysAuthorized() {
		return &Error{Code: CodePermissionDenied, Err: ErrPermissionDenied}
	}

	t.mu.Lock()
	if t.state == StateTracking {
		t.mu.Unlock()
		return fmt.Errorf("tracker already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.state = StateTracking
	t.background = false
	t.stopping = false
	t.cancel = cancel
	t.samples = make(chan Sample, 32)
	t.diags = make(chan error, 16)
	t.mu.Unlock()

	t.wg.Add(1)
	go t.run(runCtx)

	return nil
}

// Stop releases the subscription and the background grant, joins the
// acquisition loop, and returns the tracker to Idle. Safe to call from any
// state and idempotent; no sample is published after Stop returns.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.state != StateTracking {
		t.mu.Unlock()
		return
	}
	t.stopping = true
	t.releaseGrantLocked()
	sub := t.sub
	cancel := t.cancel
	t.sub = nil
	t.cancel = nil
	t.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	if cancel != nil {
		cancel()
	}
	t.wg.Wait()

	t.mu.Lock()
	t.state = StateIdle
	t.background = false
	t.mu.Unlock()
}

// Apply feeds one app-lifecycle transition into the state machine.
// Transitions while Idle are recorded but have no acquisition effect until
// the next Start.
func (t *Tracker) Apply(ev LifecycleEvent) {
	t.mu.Lock()

	switch ev {
	case EnterBackground:
		if t.background {
			t.mu.Unlock()
			return
		}
		t.background = true
		if t.state == StateTracking {
			// Bounded-lifetime execution grant; expiry releases it and
			// surfaces a diagnostic, acquisition continues coarse.
			t.grantTimer = time.AfterFunc(t.grantLifetime, t.onGrantExpired)
		}

	case EnterForeground:
		if !t.background {
			t.mu.Unlock()
			return
		}
		t.background = false
		t.releaseGrantLocked()

	default:
		t.mu.Unlock()
		return
	}

	sub := t.sub
	t.sub = nil
	t.mu.Unlock()

	// Closing the live subscription makes the run loop resubscribe with the
	// profile matching the new lifecycle phase.
	if sub != nil {
		sub.Close()
	}
}

// onGrantExpired releases the background grant when its lifetime ends.
func (t *Tracker) onGrantExpired() {
	t.mu.Lock()
	t.grantTimer = nil
	diags := t.diags
	t.mu.Unlock()

	emitDiag(diags, &Error{Code: CodeUnknown, Err: fmt.Errorf("background execution grant expired")})
}

// abortTracking returns the tracker to Idle when acquisition dies on a
// subscribe fault, so State() never reports a live tracker with no
// subscription behind it. A concurrent or later Stop sees the idle state and
// no-ops.
func (t *Tracker) abortTracking() {
	t.mu.Lock()
	t.stopping = true
	t.releaseGrantLocked()
	cancel := t.cancel
	t.cancel = nil
	t.sub = nil
	t.state = StateIdle
	t.background = false
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// releaseGrantLocked cancels the grant timer. Caller holds the mutex.
func (t *Tracker) releaseGrantLocked() {
	if t.grantTimer != nil {
		t.grantTimer.Stop()
		t.grantTimer = nil
	}
}

// profileLocked selects the acquisition profile for the current phase.
func (t *Tracker) profileLocked() Profile {
	if t.background {
		return BackgroundProfile
	}
	return ForegroundProfile
}

// run owns the provider subscription. When a subscription closes (lifecycle
// transition or transport fault) the loop resubscribes with the profile for
// the current phase, until the tracker is stopped.
func (t *Tracker) run(ctx context.Context) {
	defer t.wg.Done()

	t.mu.Lock()
	samples := t.samples
	diags := t.diags
	t.mu.Unlock()

	// Only the samples channel is closed on exit: the grant-expiry timer may
	// emit a diagnostic concurrently with shutdown, so diags stays open and
	// is simply replaced on the next Start.
	defer close(samples)

	for {
		t.mu.Lock()
		if t.stopping {
			t.mu.Unlock()
			return
		}
		profile := t.profileLocked()
		t.mu.Unlock()

		sub, err := t.provider.Subscribe(ctx, profile)
		if err != nil {
			emitDiag(diags, MapProviderError(err))
			t.abortTracking()
			return
		}

		t.mu.Lock()
		if t.stopping {
			t.mu.Unlock()
			sub.Close()
			return
		}
		t.sub = sub
		t.mu.Unlock()

		if !t.consume(ctx, sub, samples, diags) {
			return
		}
	}
}

// consume forwards one subscription's samples until it closes.
// Returns false when the loop should exit instead of resubscribing.
func (t *Tracker) consume(ctx context.Context, sub *ProviderSubscription, samples chan Sample, diags chan error) bool {
	for {
		select {
		case <-ctx.Done():
			return false

		case raw, ok := <-sub.Samples():
			if !ok {
				// Subscription closed: profile switch or provider gone.
				return true
			}

			if err := t.validate(raw); err != nil {
				emitDiag(diags, err)
				continue
			}

			select {
			case samples <- raw:
			case <-ctx.Done():
				return false
			}

		case err, ok := <-sub.Errors():
			if ok && err != nil {
				emitDiag(diags, MapProviderError(err))
			}
		}
	}
}

// validate gates one raw sample on accuracy and freshness.
func (t *Tracker) validate(s Sample) error {
	if s.AccuracyM > t.maxAccuracyM {
		return &Error{
			Code: CodeInaccurateLocation,
			Err:  fmt.Errorf("accuracy %.0fm exceeds %.0fm", s.AccuracyM, t.maxAccuracyM),
		}
	}

	if age := t.now().Sub(s.Timestamp); age > t.maxSampleAge {
		return &Error{
			Code: CodeOutdatedLocation,
			Err:  fmt.Errorf("sample is %s old (limit %s)", age.Round(time.Second), t.maxSampleAge),
		}
	}

	if !s.Coordinates.Valid() {
		return &Error{
			Code: CodeUnknown,
			Err:  fmt.Errorf("coordinates out of range: %+v", s.Coordinates),
		}
	}

	return nil
}

// emitDiag delivers a diagnostic without ever blocking the loop.
func emitDiag(diags chan error, err error) {
	select {
	case diags <- err:
	default:
		log.Printf("[WARN] tracker diagnostic dropped: %v", err)
	}
}
