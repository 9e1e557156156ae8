// Package contacthash derives deterministic, salted discovery keys from
// address-book contacts. Phone numbers and emails are normalized to a
// canonical form and digested with HMAC-SHA256 under a process-wide secret,
// so two differently-formatted representations of the same number produce
// the same key and no raw contact data ever leaves this package.
package contacthash

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"strings"
)

// Contact is a read-only snapshot of a single address-book entry.
type Contact struct {
	ID             string   `json:"id" yaml:"id"`
	DisplayName    string   `json:"display_name" yaml:"display_name"`
	PhoneNumbers   []string `json:"phone_numbers" yaml:"phone_numbers"`
	EmailAddresses []string `json:"email_addresses" yaml:"email_addresses"`
}

// ContactHash holds the derived discovery keys for one contact.
// CompositeHash is present only when both the phone and email hashes exist.
type ContactHash struct {
	ContactID     string
	HashedPhone   []byte
	HashedEmail   []byte
	CompositeHash []byte
}

// IsValidForDiscovery reports whether at least one discovery key was derived.
// Contacts without a usable phone or email are excluded from backend queries
// but still counted as processed.
func (h ContactHash) IsValidForDiscovery() bool {
	return h.HashedPhone != nil || h.HashedEmail != nil
}

// Hasher derives discovery keys. It is safe for concurrent use.
type Hasher struct {
	secret         []byte
	defaultCountry string
}

// NewHasher creates a hasher with the given process-wide secret and the
// country calling code (digits only, e.g. "44") to assume for phone numbers
// that carry no international prefix.
//
// Returns an error if the secret is empty.
func NewHasher(secret []byte, defaultCountryCode string) (*Hasher, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("hasher secret cannot be empty")
	}
	for _, r := range defaultCountryCode {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("default country code must be digits only, got %q", defaultCountryCode)
		}
	}
	return &Hasher{secret: secret, defaultCountry: defaultCountryCode}, nil
}

// Hash derives the discovery keys for a contact. The first normalizable phone
// number and the first normalizable email address win; contacts with neither
// yield an all-nil hash.
func (h *Hasher) Hash(c Contact) ContactHash {
	out := ContactHash{ContactID: c.ID}

	for _, raw := range c.PhoneNumbers {
		phone, err := h.NormalizePhone(raw)
		if err != nil {
			continue
		}
		out.HashedPhone = h.digest([]byte(phone))
		break
	}

	for _, raw := range c.EmailAddresses {
		email, err := NormalizeEmail(raw)
		if err != nil {
			continue
		}
		out.HashedEmail = h.digest([]byte(email))
		break
	}

	if out.HashedPhone != nil && out.HashedEmail != nil {
		combined := make([]byte, 0, len(out.HashedPhone)+len(out.HashedEmail))
		combined = append(combined, out.HashedPhone...)
		combined = append(combined, out.HashedEmail...)
		out.CompositeHash = h.digest(combined)
	}

	return out
}

// NormalizePhone canonicalizes a phone number to E.164-like form: formatting
// characters stripped, a leading "+" enforced, and the default country code
// prepended when the number carries no international prefix.
//
// Returns an error for numbers with fewer than 8 or more than 15 digits.
func (h *Hasher) NormalizePhone(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	international := strings.HasPrefix(trimmed, "+")

	var digits strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	number := digits.String()

	switch {
	case international:
		// Already carries a country code.
	case strings.HasPrefix(number, "00"):
		// International dialing prefix form: 0044... -> +44...
		number = number[2:]
	default:
		// Bare national number: drop a single trunk zero, assume the
		// configured country.
		number = strings.TrimPrefix(number, "0")
		number = h.defaultCountry + number
	}

	if len(number) < 8 || len(number) > 15 {
		return "", fmt.Errorf("phone number %q has %d digits after normalization (want 8-15)", raw, len(number))
	}

	return "+" + number, nil
}

// NormalizeEmail canonicalizes an email address: trimmed and lower-cased.
// Returns an error if the address is not of the form local@domain.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.Count(email, "@") != 1 {
		return "", fmt.Errorf("invalid email address %q", raw)
	}
	return email, nil
}

// digest computes the one-way HMAC-SHA256 discovery key for a normalized value.
func (h *Hasher) digest(value []byte) []byte {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(value)
	return mac.Sum(nil)
}
