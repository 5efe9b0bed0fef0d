package model

import "strings"

// ReviewStatus is the review-progress classification of a pull request.
// It is recomputed from scratch on every sync and is not monotonic.
type ReviewStatus string

const (
	ReviewStatusPending          ReviewStatus = "pending"
	ReviewStatusInReview         ReviewStatus = "in_review"
	ReviewStatusApproved         ReviewStatus = "approved"
	ReviewStatusChangesRequested ReviewStatus = "changes_requested"
	ReviewStatusMerged           ReviewStatus = "merged"
)

// ReviewStatuses lists every valid ReviewStatus in display order.
var ReviewStatuses = []ReviewStatus{
	ReviewStatusPending,
	ReviewStatusInReview,
	ReviewStatusApproved,
	ReviewStatusChangesRequested,
	ReviewStatusMerged,
}

// Valid reports whether s is one of the known review statuses.
func (s ReviewStatus) Valid() bool {
	for _, known := range ReviewStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ReviewState represents the state of a single submitted review.
type ReviewState string

const (
	ReviewStateApproved         ReviewState = "approved"
	ReviewStateChangesRequested ReviewState = "changes_requested"
	ReviewStateCommented        ReviewState = "commented"
	ReviewStatePending          ReviewState = "pending"
	ReviewStateDismissed        ReviewState = "dismissed"
)

// ParseReviewState normalizes a GitHub review state ("APPROVED",
// "CHANGES_REQUESTED", ...) to a ReviewState.
func ParseReviewState(s string) ReviewState {
	return ReviewState(strings.ToLower(strings.TrimSpace(s)))
}

// OwnerKind distinguishes user accounts from organizations.
type OwnerKind string

const (
	OwnerKindUser         OwnerKind = "User"
	OwnerKindOrganization OwnerKind = "Organization"
)
