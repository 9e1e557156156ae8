package roster

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name to
// enable multiple flock instances to safely coexist on a single Redis server.
//
// Key pattern: flock:{instance_name}:{entity}:...
// Channel pattern: flock:{instance_name}:{event_type}_events

// DirectoryKey returns the Redis key for a directory record under one
// discovery hash. The digest is rendered as lowercase hex.
// Pattern: flock:{instance_name}:directory:{field}:{hex_digest}
func DirectoryKey(instanceName string, field HashField, digest []byte) string {
	return fmt.Sprintf("flock:%s:directory:%s:%x", instanceName, field, digest)
}

// RequestsOutKey returns the Redis key for a user's outgoing friend-request set.
// Pattern: flock:{instance_name}:requests:out:{user_id}
func RequestsOutKey(instanceName, userID string) string {
	return fmt.Sprintf("flock:%s:requests:out:%s", instanceName, userID)
}

// RequestsInKey returns the Redis key for a user's incoming friend-request set.
// Pattern: flock:{instance_name}:requests:in:{user_id}
func RequestsInKey(instanceName, userID string) string {
	return fmt.Sprintf("flock:%s:requests:in:%s", instanceName, userID)
}

// FriendsKey returns the Redis key for a user's confirmed-friends set.
// Pattern: flock:{instance_name}:friends:{user_id}
func FriendsKey(instanceName, userID string) string {
	return fmt.Sprintf("flock:%s:friends:%s", instanceName, userID)
}

// PresenceEventsChannel returns the Pub/Sub channel name for presence events.
// Pattern: flock:{instance_name}:presence_events
func PresenceEventsChannel(instanceName string) string {
	return fmt.Sprintf("flock:%s:presence_events", instanceName)
}
