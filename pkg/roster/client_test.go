package roster

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func testRecord() *UserRecord {
	return &UserRecord{
		UserID:       uuid.New().String(),
		DisplayName:  "Alice",
		AvatarURL:    "https://example.com/alice.png",
		IsOnline:     true,
		LastActiveMs: time.Now().UnixMilli(),
	}
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.NotNil(t, client)
		assert.Equal(t, "test-instance", client.instanceName)
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instance name cannot be empty")
	})
}

func TestPing(t *testing.T) {
	client, _ := setupTestClient(t)
	err := client.Ping(context.Background())
	assert.NoError(t, err)
}

func TestRegisterAndFindByHash(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	digest := []byte{0xde, 0xad, 0xbe, 0xef}

	t.Run("round-trips a record", func(t *testing.T) {
		rec := testRecord()
		err := client.RegisterUser(ctx, rec, map[HashField][]byte{HashFieldPhone: digest})
		require.NoError(t, err)

		found, err := client.FindByHash(ctx, HashFieldPhone, digest)
		require.NoError(t, err)
		assert.Equal(t, rec.UserID, found.UserID)
		assert.Equal(t, rec.DisplayName, found.DisplayName)
		assert.Equal(t, rec.AvatarURL, found.AvatarURL)
		assert.Equal(t, rec.IsOnline, found.IsOnline)
		assert.Equal(t, rec.LastActiveMs, found.LastActiveMs)
	})

	t.Run("fields are isolated", func(t *testing.T) {
		// Registered under phone only; email lookup of the same digest misses.
		_, err := client.FindByHash(ctx, HashFieldEmail, digest)
		assert.True(t, IsNotFound(err))
	})

	t.Run("unknown digest is not found", func(t *testing.T) {
		_, err := client.FindByHash(ctx, HashFieldComposite, []byte{0x01})
		assert.True(t, IsNotFound(err))
	})

	t.Run("rejects invalid record", func(t *testing.T) {
		rec := testRecord()
		rec.UserID = "not-a-uuid"
		err := client.RegisterUser(ctx, rec, map[HashField][]byte{HashFieldPhone: digest})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid user record")
	})

	t.Run("rejects empty hash set", func(t *testing.T) {
		err := client.RegisterUser(ctx, testRecord(), nil)
		assert.Error(t, err)
	})

	t.Run("rejects invalid hash field", func(t *testing.T) {
		err := client.RegisterUser(ctx, testRecord(), map[HashField][]byte{HashField("bogus"): digest})
		assert.Error(t, err)

		_, err = client.FindByHash(ctx, HashField("bogus"), digest)
		assert.Error(t, err)
	})

	t.Run("registration is idempotent", func(t *testing.T) {
		rec := testRecord()
		hashes := map[HashField][]byte{HashFieldEmail: {0xaa, 0xbb}}
		require.NoError(t, client.RegisterUser(ctx, rec, hashes))
		require.NoError(t, client.RegisterUser(ctx, rec, hashes))

		found, err := client.FindByHash(ctx, HashFieldEmail, []byte{0xaa, 0xbb})
		require.NoError(t, err)
		assert.Equal(t, rec.UserID, found.UserID)
	})
}

func TestRequestStatus(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	self := uuid.New().String()
	other := uuid.New().String()
	stranger := uuid.New().String()

	t.Run("defaults to none", func(t *testing.T) {
		status, err := client.RequestStatus(ctx, self, stranger)
		require.NoError(t, err)
		assert.Equal(t, StatusNone, status)
	})

	t.Run("outgoing request is sent", func(t *testing.T) {
		require.NoError(t, client.AddFriendRequest(ctx, self, other))

		status, err := client.RequestStatus(ctx, self, other)
		require.NoError(t, err)
		assert.Equal(t, StatusSent, status)
	})

	t.Run("incoming request is received", func(t *testing.T) {
		status, err := client.RequestStatus(ctx, other, self)
		require.NoError(t, err)
		assert.Equal(t, StatusReceived, status)
	})

	t.Run("friendship wins and clears requests", func(t *testing.T) {
		require.NoError(t, client.SetFriends(ctx, self, other))

		status, err := client.RequestStatus(ctx, self, other)
		require.NoError(t, err)
		assert.Equal(t, StatusFriends, status)

		status, err = client.RequestStatus(ctx, other, self)
		require.NoError(t, err)
		assert.Equal(t, StatusFriends, status)
	})
}

func TestPresenceEvents(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	friendID := uuid.New().String()

	t.Run("publishes and receives an event", func(t *testing.T) {
		sub, err := client.SubscribePresenceEvents(ctx)
		require.NoError(t, err)
		defer sub.Close()

		ev := &PresenceEvent{
			FriendID: friendID,
			Kind:     EventLocationUpdated,
			Location: &EventLocation{
				Lat:         51.5074,
				Lon:         -0.1278,
				AccuracyM:   12,
				IsMoving:    true,
				TimestampMs: time.Now().UnixMilli(),
			},
			TimestampMs: time.Now().UnixMilli(),
		}
		require.NoError(t, client.PublishPresenceEvent(ctx, ev))

		select {
		case got := <-sub.Events():
			assert.Equal(t, friendID, got.FriendID)
			assert.Equal(t, EventLocationUpdated, got.Kind)
			require.NotNil(t, got.Location)
			assert.Equal(t, ev.Location.Lat, got.Location.Lat)
			assert.True(t, got.Location.IsMoving)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for presence event")
		}
	})

	t.Run("rejects invalid events", func(t *testing.T) {
		err := client.PublishPresenceEvent(ctx, &PresenceEvent{
			FriendID:    friendID,
			Kind:        EventLocationUpdated,
			TimestampMs: time.Now().UnixMilli(),
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "location payload")
	})

	t.Run("malformed payloads surface on the error channel", func(t *testing.T) {
		sub, err := client.SubscribePresenceEvents(ctx)
		require.NoError(t, err)
		defer sub.Close()

		client.rdb.Publish(ctx, PresenceEventsChannel("test-instance"), "not json")

		select {
		case err := <-sub.Errors():
			assert.Error(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for subscription error")
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		sub, err := client.SubscribePresenceEvents(ctx)
		require.NoError(t, err)
		assert.NoError(t, sub.Close())
		assert.NoError(t, sub.Close())
	})

	t.Run("context cancellation stops the subscription", func(t *testing.T) {
		subCtx, cancel := context.WithCancel(ctx)
		sub, err := client.SubscribePresenceEvents(subCtx)
		require.NoError(t, err)
		defer sub.Close()

		cancel()

		select {
		case _, ok := <-sub.Events():
			assert.False(t, ok, "events channel should be closed")
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for events channel to close")
		}
	})
}
