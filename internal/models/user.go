package models

import "time"

// UserProfile is the public record of a user.
type UserProfile struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	EmailLower  string     `json:"emailLower"`
	DisplayName string     `json:"displayName"`
	PhotoURL    string     `json:"photoURL,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	IsOnline    bool       `json:"isOnline"`
	LastSeenAt  *time.Time `json:"lastSeenAt,omitempty"`
}

// Snapshot returns the display fields copied into other records.
func (u UserProfile) Snapshot() *UserSnapshot {
	return &UserSnapshot{DisplayName: u.DisplayName, PhotoURL: u.PhotoURL}
}

// ProfileUpdate carries the fields a user may change on their own profile.
type ProfileUpdate struct {
	DisplayName *string `json:"displayName,omitempty"`
	PhotoURL    *string `json:"photoURL,omitempty"`
	Email       *string `json:"email,omitempty"`
}

// Credentials are keyed by lower-cased email.
type Credentials struct {
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Presence is a user's self-reported online state.
type Presence struct {
	UserID     string     `json:"userId"`
	IsOnline   bool       `json:"isOnline"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
}
