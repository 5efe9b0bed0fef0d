package model

import "strings"

// Owner is a GitHub account (user or organization) that owns repositories.
type Owner struct {
	ID         int64
	GitHubID   int64
	Login      string
	Name       string
	Kind       OwnerKind
	ProfileURL string
}

// DefaultProfileURL derives the public profile link for a login.
func DefaultProfileURL(login string) string {
	return "https://github.com/" + strings.TrimSpace(login)
}
