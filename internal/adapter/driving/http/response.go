package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/reviewpulse/internal/application"
	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// PRResponse is the JSON representation of a pull request.
type PRResponse struct {
	ID                  int64            `json:"id"`
	GitHubID            int64            `json:"github_id"`
	Number              int              `json:"number,omitempty"`
	Title               string           `json:"title"`
	Body                string           `json:"body,omitempty"`
	BodyHTML            string           `json:"body_html,omitempty"`
	Repository          string           `json:"repository"`
	Author              string           `json:"author"`
	IsOpen              bool             `json:"is_open"`
	IsMerged            bool             `json:"is_merged"`
	URL                 string           `json:"url"`
	CreatedAt           string           `json:"created_at"`
	UpdatedAt           string           `json:"updated_at"`
	ClosedAt            *string          `json:"closed_at"`
	ReviewStatus        string           `json:"review_status"`
	ReviewStartedAt     *string          `json:"review_started_at"`
	Reviewers           []string         `json:"reviewers"`
	ReviewCommentsCount int              `json:"review_comments_count"`
	RepoFlagged         bool             `json:"repo_flagged"`
	Metrics             *MetricsResponse `json:"metrics,omitempty"`
}

// MetricsResponse is the JSON representation of per-PR timing metrics.
type MetricsResponse struct {
	TimeToFirstReviewHours *float64 `json:"time_to_first_review_hours"`
	TotalReviewHours       *float64 `json:"total_review_hours"`
	IsStuck                bool     `json:"is_stuck"`
}

// StuckPRResponse is a pull request flagged as a review bottleneck.
type StuckPRResponse struct {
	PullRequest   PRResponse `json:"pull_request"`
	DaysInReview  int        `json:"days_in_review"`
	HoursInReview int        `json:"hours_in_review"`
}

// BottleneckResponse is the JSON representation of the bottleneck report.
type BottleneckResponse struct {
	TotalStuckPRs int                          `json:"total_stuck_prs"`
	StuckPRs      []StuckPRResponse            `json:"stuck_prs"`
	ByRepository  map[string][]StuckPRResponse `json:"by_repository"`
}

// EfficiencyResponse is the JSON representation of the efficiency report.
type EfficiencyResponse struct {
	TotalPRs                  int            `json:"total_prs"`
	PRsWithReviews            int            `json:"prs_with_reviews"`
	ReviewRate                float64        `json:"review_rate"`
	StatusCounts              map[string]int `json:"status_counts"`
	ApprovedPRs               int            `json:"approved_prs"`
	ChangesRequestedPRs       int            `json:"changes_requested_prs"`
	MergedPRs                 int            `json:"merged_prs"`
	ApprovalRate              float64        `json:"approval_rate"`
	AvgTimeToFirstReviewHours float64        `json:"avg_time_to_first_review_hours"`
	AvgTimeToFirstReviewDays  float64        `json:"avg_time_to_first_review_days"`
	AvgTotalReviewTimeHours   float64        `json:"avg_total_review_time_hours"`
	AvgTotalReviewTimeDays    float64        `json:"avg_total_review_time_days"`
	Bottlenecks               struct {
		TotalStuckPRs            int `json:"total_stuck_prs"`
		RepositoriesWithStuckPRs int `json:"repositories_with_stuck_prs"`
	} `json:"bottlenecks"`
}

// StatisticsResponse is the JSON representation of store-wide totals.
type StatisticsResponse struct {
	TotalPRs            int            `json:"total_prs"`
	MergedPRs           int            `json:"merged_prs"`
	OpenPRs             int            `json:"open_prs"`
	ClosedPRs           int            `json:"closed_prs"`
	TotalRepositories   int            `json:"total_repositories"`
	FlaggedRepositories int            `json:"flagged_repositories"`
	TotalUsers          int            `json:"total_users"`
	TotalOwners         int            `json:"total_owners"`
	ReviewStatusCounts  map[string]int `json:"review_status_counts"`
}

// LeaderboardEntryResponse is one ranked user on the leaderboard.
type LeaderboardEntryResponse struct {
	Rank      int    `json:"rank"`
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	TotalPRs  int    `json:"total_prs"`
	MergedPRs int    `json:"merged_prs"`
}

// SyncResponse is the JSON representation of a single user sync.
type SyncResponse struct {
	Login        string `json:"login"`
	Fetched      int    `json:"fetched"`
	Created      int    `json:"created"`
	Updated      int    `json:"updated"`
	Unchanged    int    `json:"unchanged"`
	Skipped      int    `json:"skipped"`
	PRsProcessed int    `json:"prs_processed"`
}

// RefreshOutcomeResponse is one entry of the recent-outcome log.
type RefreshOutcomeResponse struct {
	Login        string `json:"login"`
	Success      bool   `json:"success"`
	PRsProcessed int    `json:"prs_processed"`
	Error        string `json:"error,omitempty"`
	FinishedAt   string `json:"finished_at"`
}

// RefreshJobResponse is the JSON representation of the refresh job.
type RefreshJobResponse struct {
	RunID           string                   `json:"run_id,omitempty"`
	Running         bool                     `json:"running"`
	Total           int                      `json:"total"`
	Processed       int                      `json:"processed"`
	Succeeded       int                      `json:"succeeded"`
	Failed          int                      `json:"failed"`
	PRsProcessed    int                      `json:"prs_processed"`
	CurrentLogin    string                   `json:"current_login,omitempty"`
	StartedAt       *string                  `json:"started_at"`
	LastCompletedAt *string                  `json:"last_completed_at"`
	LastError       string                   `json:"last_error,omitempty"`
	Recent          []RefreshOutcomeResponse `json:"recent"`
}

// RefreshStartResponse is returned by the refresh trigger.
type RefreshStartResponse struct {
	Accepted                 bool               `json:"accepted"`
	Reason                   string             `json:"reason,omitempty"`
	CooldownRemainingSeconds int64              `json:"cooldown_remaining_seconds,omitempty"`
	Job                      RefreshJobResponse `json:"job"`
}

// healthResponse is the JSON representation of the health check.
type healthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func optionalTime(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func toPRResponse(pr model.PullRequest) PRResponse {
	reviewers := pr.Reviewers
	if reviewers == nil {
		reviewers = []string{}
	}

	return PRResponse{
		ID:                  pr.ID,
		GitHubID:            pr.GitHubID,
		Number:              pr.Number,
		Title:               pr.Title,
		Repository:          pr.RepoFullName,
		Author:              pr.AuthorLogin,
		IsOpen:              pr.IsOpen,
		IsMerged:            pr.IsMerged,
		URL:                 pr.URL,
		CreatedAt:           formatTime(pr.CreatedAt),
		UpdatedAt:           formatTime(pr.UpdatedAt),
		ClosedAt:            optionalTime(pr.ClosedAt),
		ReviewStatus:        string(pr.ReviewStatus),
		ReviewStartedAt:     optionalTime(pr.ReviewStartedAt),
		Reviewers:           reviewers,
		ReviewCommentsCount: pr.ReviewCommentsCount,
		RepoFlagged:         pr.RepoFlagged,
	}
}

func toPRViewResponse(v application.PullRequestView) PRResponse {
	resp := toPRResponse(v.PullRequest)
	resp.Metrics = &MetricsResponse{
		TimeToFirstReviewHours: roundedPtr(v.Metrics.TimeToFirstReviewHours),
		TotalReviewHours:       roundedPtr(v.Metrics.TotalReviewHours),
		IsStuck:                v.Metrics.IsStuck,
	}
	return resp
}

// toPRDetailResponse adds the raw and rendered description to the view.
func toPRDetailResponse(v application.PullRequestView) PRResponse {
	resp := toPRViewResponse(v)
	resp.Body = v.PullRequest.Body
	resp.BodyHTML = renderDescription(v.PullRequest.Body)
	return resp
}

func toPRViewResponses(views []application.PullRequestView) []PRResponse {
	resp := make([]PRResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, toPRViewResponse(v))
	}
	return resp
}

func roundedPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := model.Round2(*v)
	return &r
}

func toStuckResponses(stuck []model.StuckPR) []StuckPRResponse {
	resp := make([]StuckPRResponse, 0, len(stuck))
	for _, s := range stuck {
		resp = append(resp, StuckPRResponse{
			PullRequest:   toPRResponse(s.PullRequest),
			DaysInReview:  s.DaysInReview,
			HoursInReview: s.HoursInReview,
		})
	}
	return resp
}

func toBottleneckResponse(r model.BottleneckReport) BottleneckResponse {
	byRepo := make(map[string][]StuckPRResponse, len(r.ByRepository))
	for repo, stuck := range r.ByRepository {
		byRepo[repo] = toStuckResponses(stuck)
	}

	return BottleneckResponse{
		TotalStuckPRs: r.TotalStuckPRs,
		StuckPRs:      toStuckResponses(r.StuckPRs),
		ByRepository:  byRepo,
	}
}

func toEfficiencyResponse(r model.EfficiencyReport) EfficiencyResponse {
	resp := EfficiencyResponse{
		TotalPRs:                  r.TotalPRs,
		PRsWithReviews:            r.PRsWithReviews,
		ReviewRate:                r.ReviewRate,
		StatusCounts:              statusCountsResponse(r.StatusCounts),
		ApprovedPRs:               r.ApprovedPRs,
		ChangesRequestedPRs:       r.ChangesRequestedPRs,
		MergedPRs:                 r.MergedPRs,
		ApprovalRate:              r.ApprovalRate,
		AvgTimeToFirstReviewHours: r.AvgTimeToFirstReviewHours,
		AvgTimeToFirstReviewDays:  r.AvgTimeToFirstReviewDays,
		AvgTotalReviewTimeHours:   r.AvgTotalReviewTimeHours,
		AvgTotalReviewTimeDays:    r.AvgTotalReviewTimeDays,
	}
	resp.Bottlenecks.TotalStuckPRs = r.Bottlenecks.TotalStuckPRs
	resp.Bottlenecks.RepositoriesWithStuckPRs = r.Bottlenecks.RepositoriesWithStuckPRs
	return resp
}

func toStatisticsResponse(s model.Statistics) StatisticsResponse {
	return StatisticsResponse{
		TotalPRs:            s.TotalPRs,
		MergedPRs:           s.MergedPRs,
		OpenPRs:             s.OpenPRs,
		ClosedPRs:           s.ClosedPRs,
		TotalRepositories:   s.TotalRepositories,
		FlaggedRepositories: s.FlaggedRepositories,
		TotalUsers:          s.TotalUsers,
		TotalOwners:         s.TotalOwners,
		ReviewStatusCounts:  statusCountsResponse(s.ReviewStatusCounts),
	}
}

func toLeaderboardResponse(board []model.LeaderboardEntry) []LeaderboardEntryResponse {
	resp := make([]LeaderboardEntryResponse, 0, len(board))
	for i, e := range board {
		resp = append(resp, LeaderboardEntryResponse{
			Rank:      i + 1,
			Login:     e.Login,
			Name:      e.Name,
			AvatarURL: e.AvatarURL,
			TotalPRs:  e.TotalPRs,
			MergedPRs: e.MergedPRs,
		})
	}
	return resp
}

func statusCountsResponse(counts map[model.ReviewStatus]int) map[string]int {
	out := make(map[string]int, len(counts))
	for st, n := range counts {
		out[string(st)] = n
	}
	return out
}

func toSyncResponse(r application.SyncResult) SyncResponse {
	return SyncResponse{
		Login:        r.Login,
		Fetched:      r.Fetched,
		Created:      r.Created,
		Updated:      r.Updated,
		Unchanged:    r.Unchanged,
		Skipped:      r.Skipped,
		PRsProcessed: r.PullRequestsProcessed(),
	}
}

func toRefreshJobResponse(j model.RefreshJob) RefreshJobResponse {
	recent := make([]RefreshOutcomeResponse, 0, len(j.Recent))
	for _, o := range j.Recent {
		recent = append(recent, RefreshOutcomeResponse{
			Login:        o.Login,
			Success:      o.Success,
			PRsProcessed: o.PRsProcessed,
			Error:        o.Error,
			FinishedAt:   formatTime(o.FinishedAt),
		})
	}

	return RefreshJobResponse{
		RunID:           j.RunID,
		Running:         j.Running,
		Total:           j.Total,
		Processed:       j.Processed,
		Succeeded:       j.Succeeded,
		Failed:          j.Failed,
		PRsProcessed:    j.PRsProcessed,
		CurrentLogin:    j.CurrentLogin,
		StartedAt:       optionalTime(&j.StartedAt),
		LastCompletedAt: optionalTime(&j.LastCompletedAt),
		LastError:       j.LastError,
		Recent:          recent,
	}
}

// RepoResponse is the JSON representation of a repository.
type RepoResponse struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Flagged  bool   `json:"flagged"`
}

// webhookResponse acknowledges a webhook delivery.
type webhookResponse struct {
	Status string `json:"status"`
	Login  string `json:"login,omitempty"`
}
