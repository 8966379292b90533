package models

import "time"

// OAuthToken is the stored credential a user granted for one platform.
type OAuthToken struct {
	UserID       string
	Platform     Platform
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	AccountID    string
	AccountName  string
	UpdatedAt    time.Time
}
