package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultUserID is the implicit single user all keys belong to
const DefaultUserID = "default_user"

// APIToken is a stored provider API key. At most one record exists per
// (UserID, Provider); deletes only clear IsActive.
type APIToken struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"userId"`
	Provider  Provider  `json:"provider"`
	APIKey    string    `json:"apiKey"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewAPIToken(userID string, provider Provider, apiKey string) *APIToken {
	if userID == "" {
		userID = DefaultUserID
	}
	now := time.Now().UTC()
	return &APIToken{
		ID:        uuid.New(),
		UserID:    userID,
		Provider:  provider,
		APIKey:    apiKey,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Masked returns a copy with the secret reduced to its last four characters
func (t APIToken) Masked() APIToken {
	t.APIKey = MaskSecret(t.APIKey)
	return t
}

// MaskSecret masks a string showing only last 4 characters
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
