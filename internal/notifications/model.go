package notifications

import "time"

// Type classifies a notification for display purposes only.
type Type string

const (
	TypeFollow Type = "follow"
	TypeView   Type = "view"
	TypeSystem Type = "system"
)

// Notification is the persisted notification record. JSON field names match
// the stored blob layout and must not change.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	Type      Type      `json:"type"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// AddInput carries the caller-supplied fields for a new notification. The id
// and creation time are assigned by the store.
type AddInput struct {
	UserID  string
	Message string
	Type    Type
	Read    bool
}
