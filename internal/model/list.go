package model

import "time"

// List is a named collection of todos with exactly one owner.
type List struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Share grants a collaborator access to a list.
type Share struct {
	ID           string    `json:"id"`
	ListID       string    `json:"list_id"`
	SharedWithID string    `json:"shared_with_id"`
	CreatedAt    time.Time `json:"created_at"`
	Profile      *Profile  `json:"profile,omitempty"`
}

// Profile is the public face of a user.
type Profile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Label prefers the display name and falls back to the email.
func (p Profile) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Email != "" {
		return p.Email
	}
	return p.ID
}

// InviteLink lets anyone holding Token join ListID until ExpiresAt.
type InviteLink struct {
	ID        string    `json:"id"`
	ListID    string    `json:"list_id"`
	Token     string    `json:"token"`
	CreatedBy string    `json:"created_by"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the link can no longer be redeemed at now.
func (l InviteLink) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
