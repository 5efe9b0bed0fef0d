package model

// Repository represents a GitHub repository that at least one tracked pull
// request targets.
type Repository struct {
	ID       int64
	GitHubID int64
	Name     string
	OwnerID  int64
	Flagged  bool // Manual exclusion from metrics; never written by sync.

	// Populated on reads via join.
	OwnerLogin string
}

// FullName returns "owner/name", or just the name when the owner is unknown.
func (r Repository) FullName() string {
	if r.OwnerLogin == "" {
		return r.Name
	}
	return r.OwnerLogin + "/" + r.Name
}
