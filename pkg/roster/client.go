package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Redis operations for the roster.
// All keys and channels are automatically namespaced with the instance name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new roster client for the specified instance.
// The client automatically namespaces all keys and channels with the instance name.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: flock instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
// Returns an error if Redis is not reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// RegisterUser writes a directory record under every provided discovery hash.
// Validates the record and each hash field before writing.
//
// This method is idempotent - registering the same record twice is safe.
func (c *Client) RegisterUser(ctx context.Context, rec *UserRecord, hashes map[HashField][]byte) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid user record: %w", err)
	}

	if len(hashes) == 0 {
		return fmt.Errorf("at least one discovery hash is required")
	}

	hash := UserRecordToHash(rec)

	for field, digest := range hashes {
		if err := field.Validate(); err != nil {
			return fmt.Errorf("invalid hash field: %w", err)
		}
		if len(digest) == 0 {
			return fmt.Errorf("empty digest for field %q", field)
		}

		key := DirectoryKey(c.instanceName, field, digest)
		if err := c.rdb.HSet(ctx, key, hash).Err(); err != nil {
			return fmt.Errorf("failed to write directory record: %w", err)
		}
	}

	return nil
}

// FindByHash looks up a directory record by exact-match discovery hash.
// Returns (nil, redis.Nil) if no record is registered under the digest.
// Use IsNotFound() to check for not-found errors.
func (c *Client) FindByHash(ctx context.Context, field HashField, digest []byte) (*UserRecord, error) {
	if err := field.Validate(); err != nil {
		return nil, fmt.Errorf("invalid hash field: %w", err)
	}

	key := DirectoryKey(c.instanceName, field, digest)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read directory record: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	rec, err := HashToUserRecord(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize directory record: %w", err)
	}

	return rec, nil
}

// AddFriendRequest records a pending friend request from one user to another.
// Writes both directions of the edge so status lookups stay O(1).
func (c *Client) AddFriendRequest(ctx context.Context, fromUserID, toUserID string) error {
	if err := c.rdb.SAdd(ctx, RequestsOutKey(c.instanceName, fromUserID), toUserID).Err(); err != nil {
		return fmt.Errorf("failed to record outgoing request: %w", err)
	}
	if err := c.rdb.SAdd(ctx, RequestsInKey(c.instanceName, toUserID), fromUserID).Err(); err != nil {
		return fmt.Errorf("failed to record incoming request: %w", err)
	}
	return nil
}

// SetFriends marks two users as confirmed friends and clears any pending
// request edges between them.
func (c *Client) SetFriends(ctx context.Context, userA, userB string) error {
	if err := c.rdb.SAdd(ctx, FriendsKey(c.instanceName, userA), userB).Err(); err != nil {
		return fmt.Errorf("failed to record friendship: %w", err)
	}
	if err := c.rdb.SAdd(ctx, FriendsKey(c.instanceName, userB), userA).Err(); err != nil {
		return fmt.Errorf("failed to record friendship: %w", err)
	}

	// Clear request edges in both directions.
	c.rdb.SRem(ctx, RequestsOutKey(c.instanceName, userA), userB)
	c.rdb.SRem(ctx, RequestsOutKey(c.instanceName, userB), userA)
	c.rdb.SRem(ctx, RequestsInKey(c.instanceName, userA), userB)
	c.rdb.SRem(ctx, RequestsInKey(c.instanceName, userB), userA)

	return nil
}

// RequestStatus resolves the friend-request relationship between selfID and
// otherID. Friendship wins over pending requests in either direction.
func (c *Client) RequestStatus(ctx context.Context, selfID, otherID string) (RequestStatus, error) {
	isFriend, err := c.rdb.SIsMember(ctx, FriendsKey(c.instanceName, selfID), otherID).Result()
	if err != nil {
		return "", fmt.Errorf("failed to check friendship: %w", err)
	}
	if isFriend {
		return StatusFriends, nil
	}

	sent, err := c.rdb.SIsMember(ctx, RequestsOutKey(c.instanceName, selfID), otherID).Result()
	if err != nil {
		return "", fmt.Errorf("failed to check outgoing requests: %w", err)
	}
	if sent {
		return StatusSent, nil
	}

	received, err := c.rdb.SIsMember(ctx, RequestsInKey(c.instanceName, selfID), otherID).Result()
	if err != nil {
		return "", fmt.Errorf("failed to check incoming requests: %w", err)
	}
	if received {
		return StatusReceived, nil
	}

	return StatusNone, nil
}

// PublishPresenceEvent validates an event and publishes it to the instance's
// presence channel as JSON.
func (c *Client) PublishPresenceEvent(ctx context.Context, ev *PresenceEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid presence event: %w", err)
	}

	eventJSON, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal presence event: %w", err)
	}

	channel := PresenceEventsChannel(c.instanceName)
	if err := c.rdb.Publish(ctx, channel, eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish presence event: %w", err)
	}

	return nil
}

// PresenceSubscription represents an active Pub/Sub subscription to presence
// events. Caller must call Close() when done to clean up resources.
// Subscriptions deliver full event objects via the Events() channel.
type PresenceSubscription struct {
	events <-chan *PresenceEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// NewPresenceSubscription wraps pre-built channels in a subscription.
// It exists so alternate event sources (no-op stubs, replay fixtures, tests)
// can satisfy the same consumer contract without a Redis connection.
func NewPresenceSubscription(events <-chan *PresenceEvent, errs <-chan error, cancel func()) *PresenceSubscription {
	if cancel == nil {
		cancel = func() {}
	}
	return &PresenceSubscription{events: events, errors: errs, cancel: cancel}
}

// Events returns the channel of presence events.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *PresenceSubscription) Events() <-chan *PresenceEvent {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures and other non-fatal issues.
// The subscription continues after errors - messages are skipped.
func (s *PresenceSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *PresenceSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribePresenceEvents subscribes to presence events for this instance.
// Returns a PresenceSubscription that delivers full event objects.
// Caller must call subscription.Close() when done.
// Context cancellation also stops the subscription.
//
// Events are delivered on a buffered channel (size 32) to prevent blocking.
// If the subscriber is too slow, events may be dropped by Redis Pub/Sub
// (at-most-once transport; the presence cache tolerates gaps via staleness).
func (c *Client) SubscribePresenceEvents(ctx context.Context) (*PresenceSubscription, error) {
	channel := PresenceEventsChannel(c.instanceName)
	pubsub := c.rdb.Subscribe(ctx, channel)

	// Wait for the subscription to be confirmed so callers observe an open
	// stream before the first event can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to open presence subscription: %w", err)
	}

	eventsChan := make(chan *PresenceEvent, 32)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev PresenceEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					// Send error on error channel, skip message
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal presence event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &PresenceSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
// Use this to check if FindByHash returned "not found".
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
