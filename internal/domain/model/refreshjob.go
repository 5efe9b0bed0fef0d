package model

import "time"

// RefreshOutcome records the result of syncing one user during a refresh run.
type RefreshOutcome struct {
	Login        string
	Success      bool
	PRsProcessed int
	Error        string
	FinishedAt   time.Time
}

// RefreshJob is a point-in-time view of the full-roster refresh job.
type RefreshJob struct {
	RunID           string
	Running         bool
	Total           int
	Processed       int
	Succeeded       int
	Failed          int
	PRsProcessed    int
	CurrentLogin    string
	StartedAt       time.Time
	LastCompletedAt time.Time
	LastError       string
	Recent          []RefreshOutcome // Oldest first.
}
