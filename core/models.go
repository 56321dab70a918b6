package core

import (
	"time"

	"github.com/google/uuid"
)

// Provider identifies a social sign-in provider
type Provider string

const (
	ProviderGitHub    Provider = "github"
	ProviderGoogle    Provider = "google"
	ProviderTwitter   Provider = "twitter"
	ProviderLinkedIn  Provider = "linkedin"
	ProviderFacebook  Provider = "facebook"
	ProviderDiscord   Provider = "discord"
	ProviderGitLab    Provider = "gitlab"
	ProviderTikTok    Provider = "tiktok"
	ProviderMicrosoft Provider = "microsoft"
	ProviderSpotify   Provider = "spotify"
	ProviderDropbox   Provider = "dropbox"
	ProviderTwitch    Provider = "twitch"
	ProviderApple     Provider = "apple"
)

// User is the account record written by the authentication library
type User struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	Image         string    `json:"image,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Session represents a sign-in session. Only the hash of the token key is stored.
type Session struct {
	ID           string    `json:"id"`
	TokenKeyHash string    `json:"token_key_hash"`
	UserID       uuid.UUID `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
