package model

import "time"

// User is a tracked contributor whose pull requests are ingested.
type User struct {
	ID          int64
	Login       string
	GitHubID    int64
	Name        string
	AvatarURL   string
	Affiliation string
	AddedAt     time.Time
}

// UserProfile is the subset of a GitHub user profile used to backfill a User.
type UserProfile struct {
	GitHubID  int64
	Login     string
	Name      string
	AvatarURL string
}
