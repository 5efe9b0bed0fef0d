package model

import "time"

// ReviewComment represents an inline comment on a pull request diff.
// General PR-level discussion (issue comments) is not a ReviewComment.
type ReviewComment struct {
	ID        int64
	Author    string
	CreatedAt time.Time
}
