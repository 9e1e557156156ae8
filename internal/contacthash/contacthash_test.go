package contacthash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHasher(t *testing.T) *Hasher {
	h, err := NewHasher([]byte("test-secret"), "44")
	require.NoError(t, err)
	return h
}

func TestNewHasher(t *testing.T) {
	t.Run("rejects empty secret", func(t *testing.T) {
		_, err := NewHasher(nil, "44")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "secret cannot be empty")
	})

	t.Run("rejects non-digit country code", func(t *testing.T) {
		_, err := NewHasher([]byte("s"), "+44")
		assert.Error(t, err)
	})
}

func TestNormalizePhone(t *testing.T) {
	h := newTestHasher(t)

	t.Run("strips formatting", func(t *testing.T) {
		got, err := h.NormalizePhone("+44 (0) 7700 900123")
		require.NoError(t, err)
		// The leading + keeps the country code; formatting is dropped.
		assert.Equal(t, "+4407700900123", got)
	})

	t.Run("identical number in different formats hashes identically", func(t *testing.T) {
		a, err := h.NormalizePhone("+44 7700 900123")
		require.NoError(t, err)
		b, err := h.NormalizePhone("+44-7700-900123")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("00 prefix becomes plus", func(t *testing.T) {
		got, err := h.NormalizePhone("0044 7700 900123")
		require.NoError(t, err)
		assert.Equal(t, "+447700900123", got)
	})

	t.Run("national number gets default country code", func(t *testing.T) {
		got, err := h.NormalizePhone("07700 900123")
		require.NoError(t, err)
		assert.Equal(t, "+447700900123", got)
	})

	t.Run("rejects too-short numbers", func(t *testing.T) {
		_, err := h.NormalizePhone("123")
		assert.Error(t, err)
	})

	t.Run("rejects too-long numbers", func(t *testing.T) {
		_, err := h.NormalizePhone("+1234567890123456789")
		assert.Error(t, err)
	})
}

func TestNormalizeEmail(t *testing.T) {
	t.Run("lower-cases and trims", func(t *testing.T) {
		got, err := NormalizeEmail("  Alice@Example.COM ")
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", got)
	})

	t.Run("rejects malformed addresses", func(t *testing.T) {
		for _, raw := range []string{"", "alice", "@example.com", "alice@", "a@b@c"} {
			_, err := NormalizeEmail(raw)
			assert.Error(t, err, "raw=%q", raw)
		}
	})
}

func TestHash(t *testing.T) {
	h := newTestHasher(t)

	t.Run("deterministic across formatting variants", func(t *testing.T) {
		a := h.Hash(Contact{ID: "c1", PhoneNumbers: []string{"0044 7700 900123"}})
		b := h.Hash(Contact{ID: "c2", PhoneNumbers: []string{"+44-7700-900123"}})
		require.NotNil(t, a.HashedPhone)
		assert.Equal(t, a.HashedPhone, b.HashedPhone)
	})

	t.Run("phone and email yield composite", func(t *testing.T) {
		ch := h.Hash(Contact{
			ID:             "c1",
			PhoneNumbers:   []string{"+447700900123"},
			EmailAddresses: []string{"alice@example.com"},
		})
		assert.NotNil(t, ch.HashedPhone)
		assert.NotNil(t, ch.HashedEmail)
		assert.NotNil(t, ch.CompositeHash)
		assert.True(t, ch.IsValidForDiscovery())
	})

	t.Run("single field yields nil composite", func(t *testing.T) {
		ch := h.Hash(Contact{ID: "c1", EmailAddresses: []string{"alice@example.com"}})
		assert.Nil(t, ch.HashedPhone)
		assert.NotNil(t, ch.HashedEmail)
		assert.Nil(t, ch.CompositeHash)
		assert.True(t, ch.IsValidForDiscovery())
	})

	t.Run("no usable fields yields all-nil hash", func(t *testing.T) {
		ch := h.Hash(Contact{ID: "c1", PhoneNumbers: []string{"123"}, EmailAddresses: []string{"not-an-email"}})
		assert.Nil(t, ch.HashedPhone)
		assert.Nil(t, ch.HashedEmail)
		assert.Nil(t, ch.CompositeHash)
		assert.False(t, ch.IsValidForDiscovery())
	})

	t.Run("different secrets produce different keys", func(t *testing.T) {
		other, err := NewHasher([]byte("other-secret"), "44")
		require.NoError(t, err)
		c := Contact{ID: "c1", EmailAddresses: []string{"alice@example.com"}}
		assert.NotEqual(t, h.Hash(c).HashedEmail, other.Hash(c).HashedEmail)
	})

	t.Run("first normalizable entry wins", func(t *testing.T) {
		a := h.Hash(Contact{ID: "c1", PhoneNumbers: []string{"bad", "+447700900123"}})
		b := h.Hash(Contact{ID: "c2", PhoneNumbers: []string{"+447700900123"}})
		assert.Equal(t, b.HashedPhone, a.HashedPhone)
	})
}
