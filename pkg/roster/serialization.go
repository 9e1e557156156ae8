package roster

import (
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Numeric and boolean
// fields are rendered as their string forms. This keeps individual fields
// queryable while staying close to the wire format.

// UserRecordToHash converts a UserRecord struct to a Redis hash format.
func UserRecordToHash(r *UserRecord) map[string]interface{} {
	return map[string]interface{}{
		"user_id":        r.UserID,
		"display_name":   r.DisplayName,
		"avatar_url":     r.AvatarURL,
		"is_online":      r.IsOnline,
		"last_active_ms": r.LastActiveMs,
	}
}

// HashToUserRecord converts a Redis hash to a UserRecord struct.
// Absent numeric/boolean fields default to their zero values; present but
// malformed fields are an error.
func HashToUserRecord(hash map[string]string) (*UserRecord, error) {
	var isOnline bool
	if v := hash["is_online"]; v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid is_online field: %w", err)
		}
		isOnline = parsed
	}

	var lastActiveMs int64
	if v := hash["last_active_ms"]; v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid last_active_ms field: %w", err)
		}
		lastActiveMs = parsed
	}

	return &UserRecord{
		UserID:       hash["user_id"],
		DisplayName:  hash["display_name"],
		AvatarURL:    hash["avatar_url"],
		IsOnline:     isOnline,
		LastActiveMs: lastActiveMs,
	}, nil
}
