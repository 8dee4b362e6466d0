package profiles

import (
	"errors"
	"time"
)

var (
	// ErrDuplicateEmail indicates the email is already taken by another profile.
	ErrDuplicateEmail = errors.New("profiles: email already exists")
	// ErrNotFound indicates the referenced profile id does not exist.
	ErrNotFound = errors.New("profiles: profile not found")
	// ErrNotLoggedIn indicates an operation requiring a current user was
	// invoked with no current user set.
	ErrNotLoggedIn = errors.New("profiles: not logged in")
)

// UserProfile is the persisted profile record. JSON field names match the
// stored blob layout and must not change.
type UserProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Bio       string    `json:"bio"`
	ImageURL  string    `json:"imageUrl"`
	Skills    []string  `json:"skills"`
	IsPrivate bool      `json:"isPrivate"`
	Following []string  `json:"following"`
	Followers []string  `json:"followers"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ViewCount int       `json:"viewCount"`
}

// CreateInput carries the caller-supplied fields for a new profile. The id,
// follower list, timestamps and view count are assigned by the store.
type CreateInput struct {
	Name      string
	Email     string
	Bio       string
	ImageURL  string
	Skills    []string
	IsPrivate bool
	Following []string
}

// Patch enumerates the optional fields of a profile update. Nil fields are
// preserved from the stored record.
type Patch struct {
	ID        string
	Name      *string
	Email     *string
	Bio       *string
	ImageURL  *string
	Skills    []string
	IsPrivate *bool
}

func (p Patch) applyTo(profile *UserProfile) {
	if p.Name != nil {
		profile.Name = *p.Name
	}
	if p.Email != nil {
		profile.Email = *p.Email
	}
	if p.Bio != nil {
		profile.Bio = *p.Bio
	}
	if p.ImageURL != nil {
		profile.ImageURL = *p.ImageURL
	}
	if p.Skills != nil {
		profile.Skills = p.Skills
	}
	if p.IsPrivate != nil {
		profile.IsPrivate = *p.IsPrivate
	}
}

// Analytics summarizes the figures shown on a profile's analytics panel.
type Analytics struct {
	ViewCount      int `json:"viewCount"`
	FollowerCount  int `json:"followerCount"`
	FollowingCount int `json:"followingCount"`
}
