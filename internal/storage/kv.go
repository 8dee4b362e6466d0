package storage

import "context"

// Storage keys for the three persisted blobs. The key names are part of the
// external contract and must not change.
const (
	KeyProfiles      = "edu_profiles"
	KeyCurrentUser   = "edu_current_user"
	KeyNotifications = "edu_notifications"
)

// KV is a keyed blob store. Values are opaque serialized payloads; callers
// own the encoding.
type KV interface {
	// Get returns the value stored under key. The boolean reports whether
	// the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
