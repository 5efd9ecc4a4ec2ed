package domain

import (
	"context"
	"strings"
)

// Preference is a tri-state notification preference. Legacy clients wrote
// the underlying fields as booleans, strings or not at all; the repository
// normalizes them into this type once, at the scan boundary.
type Preference int

const (
	PreferenceUnset Preference = iota
	PreferenceEnabled
	PreferenceDisabled
)

// Bool resolves the preference, defaulting to enabled when unset.
func (p Preference) Bool() bool {
	return p != PreferenceDisabled
}

// ParsePreference normalizes a raw stored value into a Preference.
// Recognized as enabled: "true", "1", "yes" (case-insensitive). Everything
// else non-empty is disabled; empty is unset.
func ParsePreference(raw string) Preference {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return PreferenceUnset
	case "true", "1", "yes":
		return PreferenceEnabled
	default:
		return PreferenceDisabled
	}
}

// UserProfile is the read-only view of a user this pipeline needs: name
// fields for personalization, the push token, and delivery preferences.
type UserProfile struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	FullName    string `json:"full_name"`
	DisplayName string `json:"display_name"`

	PushToken            string     `json:"push_token"`
	NotificationsEnabled Preference `json:"notifications_enabled"`
	PrefInvited          Preference `json:"pref_invited"`
	PrefNotInvited       Preference `json:"pref_not_invited"`
}

// UserRepository defines the read and token-cleanup operations on users.
// Token cleanup is the only write this pipeline performs on user records.
type UserRepository interface {
	// GetByIDs returns the profiles that exist, keyed by user ID. Missing
	// users are simply absent from the map.
	GetByIDs(ctx context.Context, ids []string) (map[string]*UserProfile, error)

	// ClearPushTokens removes the push token from the given users in one
	// batch, after the gateway reported the tokens invalid.
	ClearPushTokens(ctx context.Context, userIDs []string) error
}
