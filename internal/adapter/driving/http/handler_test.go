package httphandler_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/reviewpulse/internal/adapter/driving/http"
	"github.com/ericfisherdev/reviewpulse/internal/application"
	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
	"github.com/ericfisherdev/reviewpulse/internal/domain/port/driven"
)

// --- Fakes ---

type fakeSyncer struct {
	result     application.SyncResult
	syncErr    error
	refreshed  model.PullRequest
	refreshErr error
	synced     chan string
}

func (f *fakeSyncer) SyncUser(_ context.Context, login string) (application.SyncResult, error) {
	if f.synced != nil {
		f.synced <- login
	}
	r := f.result
	r.Login = login
	return r, f.syncErr
}

func (f *fakeSyncer) RefreshPullRequest(_ context.Context, _ int64) (model.PullRequest, error) {
	return f.refreshed, f.refreshErr
}

type fakeRefresher struct {
	start application.StartResult
	err   error
	job   model.RefreshJob
}

func (f *fakeRefresher) Start(_ context.Context) (application.StartResult, error) {
	return f.start, f.err
}

func (f *fakeRefresher) Status() model.RefreshJob { return f.job }

type fakeMetrics struct {
	bottlenecks model.BottleneckReport
	efficiency  model.EfficiencyReport
	stats       model.Statistics
	views       []application.PullRequestView
	view        application.PullRequestView
	leaderboard []model.LeaderboardEntry
	err         error
}

func (f *fakeMetrics) Bottlenecks(_ context.Context) (model.BottleneckReport, error) {
	return f.bottlenecks, f.err
}

func (f *fakeMetrics) Efficiency(_ context.Context) (model.EfficiencyReport, error) {
	return f.efficiency, f.err
}

func (f *fakeMetrics) Statistics(_ context.Context) (model.Statistics, error) {
	return f.stats, f.err
}

func (f *fakeMetrics) InReview(_ context.Context) ([]application.PullRequestView, error) {
	return f.views, f.err
}

func (f *fakeMetrics) ByStatus(_ context.Context, status model.ReviewStatus) ([]application.PullRequestView, error) {
	if !status.Valid() {
		return nil, application.ErrInvalidStatus
	}
	return f.views, f.err
}

func (f *fakeMetrics) PullRequest(_ context.Context, _ int64) (application.PullRequestView, error) {
	return f.view, f.err
}

func (f *fakeMetrics) Leaderboard(_ context.Context) ([]model.LeaderboardEntry, error) {
	return f.leaderboard, f.err
}

func (f *fakeMetrics) UserPullRequests(_ context.Context, _ string) ([]application.PullRequestView, error) {
	return f.views, f.err
}

type fakeRepoStore struct {
	repo   model.Repository
	setErr error
}

func (f *fakeRepoStore) GetByName(_ context.Context, _ int64, _ string) (*model.Repository, error) {
	return nil, nil
}

func (f *fakeRepoStore) GetByID(_ context.Context, _ int64) (*model.Repository, error) {
	cp := f.repo
	return &cp, nil
}

func (f *fakeRepoStore) Ensure(_ context.Context, repo model.Repository) (model.Repository, error) {
	return repo, nil
}

func (f *fakeRepoStore) SetFlagged(_ context.Context, _ int64, flagged bool) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.repo.Flagged = flagged
	return nil
}

func (f *fakeRepoStore) ListAll(_ context.Context) ([]model.Repository, error) {
	return []model.Repository{f.repo}, nil
}

type fakeUserStore struct {
	logins []string
}

func (f *fakeUserStore) GetByLogin(_ context.Context, login string) (*model.User, error) {
	for i, l := range f.logins {
		if l == login {
			return &model.User{ID: int64(i + 1), Login: l}, nil
		}
	}
	return nil, fmt.Errorf("get user %s: %w", login, driven.ErrUserNotFound)
}

func (f *fakeUserStore) ListAll(_ context.Context) ([]model.User, error) { return nil, nil }

func (f *fakeUserStore) Upsert(_ context.Context, u model.User) (model.User, error) { return u, nil }

// --- Helpers ---

var testTime = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

type deps struct {
	syncer    *fakeSyncer
	refresher *fakeRefresher
	metrics   *fakeMetrics
	repos     *fakeRepoStore
	users     *fakeUserStore
	secret    string
}

func newDeps() *deps {
	return &deps{
		syncer:    &fakeSyncer{},
		refresher: &fakeRefresher{},
		metrics:   &fakeMetrics{},
		repos:     &fakeRepoStore{repo: model.Repository{ID: 3, Name: "web", OwnerLogin: "acme"}},
		users:     &fakeUserStore{logins: []string{"alice"}},
	}
}

func (d *deps) router() http.Handler {
	h := httphandler.NewHandler(d.syncer, d.refresher, d.metrics, d.repos, d.users, d.secret, slog.Default())
	return httphandler.NewRouter(h, slog.Default())
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func samplePR() model.PullRequest {
	started := testTime.Add(2 * time.Hour)
	return model.PullRequest{
		ID:              7,
		GitHubID:        7007,
		Number:          42,
		Title:           "Add search",
		Body:            "Adds **fuzzy** search.",
		RepoFullName:    "acme/web",
		AuthorLogin:     "alice",
		IsOpen:          true,
		URL:             "https://github.com/acme/web/pull/42",
		CreatedAt:       testTime,
		UpdatedAt:       testTime.Add(3 * time.Hour),
		ReviewStatus:    model.ReviewStatusInReview,
		ReviewStartedAt: &started,
	}
}

// --- Tests ---

func TestHealth(t *testing.T) {
	rec := serve(t, newDeps().router(), http.MethodGet, "/api/v1/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestSyncUser(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "tracked user", wantStatus: http.StatusOK},
		{name: "untracked user", err: fmt.Errorf("sync: %w", driven.ErrUserNotFound), wantStatus: http.StatusNotFound},
		{name: "upstream failure", err: errors.New("search failed"), wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			d.syncer.result = application.SyncResult{Fetched: 4, Created: 2, Updated: 1, Unchanged: 1}
			d.syncer.syncErr = tt.err

			rec := serve(t, d.router(), http.MethodPost, "/api/v1/users/alice/sync", "")
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				var body map[string]any
				decodeJSON(t, rec, &body)
				assert.Equal(t, "alice", body["login"])
				assert.InDelta(t, 4, body["prs_processed"], 0)
				assert.InDelta(t, 2, body["created"], 0)
			}
		})
	}
}

func TestStartRefresh(t *testing.T) {
	tests := []struct {
		name           string
		start          application.StartResult
		wantStatus     int
		wantRetryAfter string
	}{
		{
			name:       "accepted",
			start:      application.StartResult{Accepted: true, Job: model.RefreshJob{Running: true, Total: 3}},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "already running",
			start:      application.StartResult{Reason: application.ReasonAlreadyRunning, Job: model.RefreshJob{Running: true}},
			wantStatus: http.StatusConflict,
		},
		{
			name: "cooldown",
			start: application.StartResult{
				Reason:            application.ReasonCooldown,
				CooldownRemaining: 90*time.Minute + 500*time.Millisecond,
			},
			wantStatus:     http.StatusTooManyRequests,
			wantRetryAfter: "5401",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			d.refresher.start = tt.start

			rec := serve(t, d.router(), http.MethodPost, "/api/v1/refresh", "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantRetryAfter, rec.Header().Get("Retry-After"))

			var body map[string]any
			decodeJSON(t, rec, &body)
			assert.Equal(t, tt.start.Accepted, body["accepted"])
		})
	}
}

func TestStartRefresh_RosterError(t *testing.T) {
	d := newDeps()
	d.refresher.err = errors.New("database is locked")

	rec := serve(t, d.router(), http.MethodPost, "/api/v1/refresh", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRefreshStatus(t *testing.T) {
	d := newDeps()
	d.refresher.job = model.RefreshJob{
		RunID:           "run-1",
		Total:           2,
		Processed:       2,
		Succeeded:       1,
		Failed:          1,
		LastCompletedAt: testTime,
		LastError:       "bob: boom",
		Recent: []model.RefreshOutcome{
			{Login: "alice", Success: true, PRsProcessed: 3, FinishedAt: testTime},
			{Login: "bob", Error: "boom", FinishedAt: testTime},
		},
	}

	rec := serve(t, d.router(), http.MethodGet, "/api/v1/refresh/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body httphandler.RefreshJobResponse
	decodeJSON(t, rec, &body)
	assert.False(t, body.Running)
	assert.Nil(t, body.StartedAt)
	require.NotNil(t, body.LastCompletedAt)
	assert.Equal(t, "2026-02-10T12:00:00Z", *body.LastCompletedAt)
	require.Len(t, body.Recent, 2)
	assert.Equal(t, "boom", body.Recent[1].Error)
}

func TestBottlenecks(t *testing.T) {
	d := newDeps()
	stuck := model.StuckPR{PullRequest: samplePR(), DaysInReview: 9, HoursInReview: 216}
	d.metrics.bottlenecks = model.BottleneckReport{
		TotalStuckPRs: 1,
		StuckPRs:      []model.StuckPR{stuck},
		ByRepository:  map[string][]model.StuckPR{"acme/web": {stuck}},
	}

	rec := serve(t, d.router(), http.MethodGet, "/api/v1/metrics/bottlenecks", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body httphandler.BottleneckResponse
	decodeJSON(t, rec, &body)
	assert.Equal(t, 1, body.TotalStuckPRs)
	require.Len(t, body.StuckPRs, 1)
	assert.Equal(t, 216, body.StuckPRs[0].HoursInReview)
	assert.Equal(t, "acme/web", body.StuckPRs[0].PullRequest.Repository)
	assert.Len(t, body.ByRepository["acme/web"], 1)
}

func TestEfficiency(t *testing.T) {
	d := newDeps()
	d.metrics.efficiency = model.EfficiencyReport{
		TotalPRs:     4,
		ReviewRate:   75,
		ApprovalRate: 33.33,
		StatusCounts: map[model.ReviewStatus]int{model.ReviewStatusPending: 1, model.ReviewStatusMerged: 1},
		Bottlenecks:  model.BottleneckSummary{TotalStuckPRs: 2, RepositoriesWithStuckPRs: 1},
	}

	rec := serve(t, d.router(), http.MethodGet, "/api/v1/metrics/efficiency", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body httphandler.EfficiencyResponse
	decodeJSON(t, rec, &body)
	assert.Equal(t, 75.0, body.ReviewRate)
	assert.Equal(t, 33.33, body.ApprovalRate)
	assert.Equal(t, 1, body.StatusCounts["pending"])
	assert.Equal(t, 2, body.Bottlenecks.TotalStuckPRs)
}

func TestStatistics(t *testing.T) {
	d := newDeps()
	d.metrics.stats = model.Statistics{TotalPRs: 5, TotalRepositories: 2, FlaggedRepositories: 1}

	rec := serve(t, d.router(), http.MethodGet, "/api/v1/metrics/statistics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body httphandler.StatisticsResponse
	decodeJSON(t, rec, &body)
	assert.Equal(t, 5, body.TotalPRs)
	assert.Equal(t, 1, body.FlaggedRepositories)
}

func TestMetrics_StoreError(t *testing.T) {
	for _, path := range []string{
		"/api/v1/metrics/bottlenecks",
		"/api/v1/metrics/efficiency",
		"/api/v1/metrics/statistics",
		"/api/v1/prs/in-review",
		"/api/v1/leaderboard",
		"/api/v1/users/alice/prs",
	} {
		t.Run(path, func(t *testing.T) {
			d := newDeps()
			d.metrics.err = errors.New("disk I/O error")

			rec := serve(t, d.router(), http.MethodGet, path, "")
			assert.Equal(t, http.StatusInternalServerError, rec.Code)

			var body map[string]string
			decodeJSON(t, rec, &body)
			assert.Equal(t, "internal server error", body["error"])
		})
	}
}

func TestInReview(t *testing.T) {
	d := newDeps()
	ttfr := 2.004
	d.metrics.views = []application.PullRequestView{{
		PullRequest: samplePR(),
		Metrics:     model.PRMetrics{TimeToFirstReviewHours: &ttfr},
	}}

	rec := serve(t, d.router(), http.MethodGet, "/api/v1/prs/in-review", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []httphandler.PRResponse
	decodeJSON(t, rec, &body)
	require.Len(t, body, 1)
	assert.Equal(t, "in_review", body[0].ReviewStatus)
	assert.Equal(t, []string{}, body[0].Reviewers)
	require.NotNil(t, body[0].Metrics)
	require.NotNil(t, body[0].Metrics.TimeToFirstReviewHours)
	assert.Equal(t, 2.0, *body[0].Metrics.TimeToFirstReviewHours)
	assert.Nil(t, body[0].Metrics.TotalReviewHours)
	assert.Nil(t, body[0].ClosedAt)
}

func TestLeaderboard(t *testing.T) {
	d := newDeps()
	d.metrics.leaderboard = []model.LeaderboardEntry{
		{Login: "bob", Name: "Bob", TotalPRs: 4, MergedPRs: 3},
		{Login: "alice", TotalPRs: 5, MergedPRs: 1},
	}

	rec := serve(t, d.router(), http.MethodGet, "/api/v1/leaderboard", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []httphandler.LeaderboardEntryResponse
	decodeJSON(t, rec, &body)
	require.Len(t, body, 2)
	assert.Equal(t, 1, body[0].Rank)
	assert.Equal(t, "bob", body[0].Login)
	assert.Equal(t, 3, body[0].MergedPRs)
	assert.Equal(t, 2, body[1].Rank)
	assert.Equal(t, 5, body[1].TotalPRs)
}

func TestLeaderboard_Empty(t *testing.T) {
	rec := serve(t, newDeps().router(), http.MethodGet, "/api/v1/leaderboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestUserPullRequests(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "tracked user", wantStatus: http.StatusOK},
		{name: "untracked user", err: fmt.Errorf("user pull requests: %w", driven.ErrUserNotFound), wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			d.metrics.views = []application.PullRequestView{{PullRequest: samplePR()}}
			d.metrics.err = tt.err

			rec := serve(t, d.router(), http.MethodGet, "/api/v1/users/alice/prs", "")
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				var body []httphandler.PRResponse
				decodeJSON(t, rec, &body)
				require.Len(t, body, 1)
				assert.Equal(t, "alice", body[0].Author)
				assert.NotNil(t, body[0].Metrics)
			}
		})
	}
}

func TestByStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		wantStatus int
	}{
		{name: "valid status", status: "approved", wantStatus: http.StatusOK},
		{name: "unknown status", status: "reopened", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			rec := serve(t, d.router(), http.MethodGet, "/api/v1/prs/status/"+tt.status, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestGetPR(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
	}{
		{name: "found", path: "/api/v1/prs/7", wantStatus: http.StatusOK},
		{name: "not found", path: "/api/v1/prs/99", err: fmt.Errorf("get: %w", driven.ErrPRNotFound), wantStatus: http.StatusNotFound},
		{name: "non-numeric id", path: "/api/v1/prs/abc", wantStatus: http.StatusBadRequest},
		{name: "zero id", path: "/api/v1/prs/0", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			d.metrics.view = application.PullRequestView{PullRequest: samplePR()}
			d.metrics.err = tt.err

			rec := serve(t, d.router(), http.MethodGet, tt.path, "")
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				var body httphandler.PRResponse
				decodeJSON(t, rec, &body)
				assert.Equal(t, int64(7), body.ID)
				assert.Equal(t, 42, body.Number)
				assert.Equal(t, "2026-02-10T12:00:00Z", body.CreatedAt)
				require.NotNil(t, body.ReviewStartedAt)
				assert.Equal(t, "2026-02-10T14:00:00Z", *body.ReviewStartedAt)
				assert.Equal(t, "Adds **fuzzy** search.", body.Body)
				assert.Contains(t, body.BodyHTML, "<strong>fuzzy</strong>")
			}
		})
	}
}

func TestRefreshReview(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "refreshed", wantStatus: http.StatusOK},
		{name: "not found", err: driven.ErrPRNotFound, wantStatus: http.StatusNotFound},
		{name: "number unknown", err: fmt.Errorf("refresh: %w", application.ErrPRNumberUnknown), wantStatus: http.StatusUnprocessableEntity},
		{name: "write failure", err: errors.New("database is locked"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			d.syncer.refreshed = samplePR()
			d.syncer.refreshErr = tt.err

			rec := serve(t, d.router(), http.MethodPost, "/api/v1/prs/7/refresh-review", "")
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestFlagRepo(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setErr     error
		wantStatus int
	}{
		{name: "flag", body: `{"flagged":true}`, wantStatus: http.StatusOK},
		{name: "missing field", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "malformed body", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "unknown repo", body: `{"flagged":false}`, setErr: driven.ErrRepoNotFound, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			d.repos.setErr = tt.setErr

			rec := serve(t, d.router(), http.MethodPut, "/api/v1/repos/3/flag", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				var body httphandler.RepoResponse
				decodeJSON(t, rec, &body)
				assert.Equal(t, "acme/web", body.FullName)
				assert.True(t, body.Flagged)
			}
		})
	}
}

func webhookRequest(t *testing.T, event, secret, payload string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/github", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(payload))
		req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}
	return req
}

const prPayload = `{"action":"opened","number":42,"pull_request":{"id":7007,"number":42,"user":{"login":"%s"}}}`

func TestWebhook_TrackedAuthorTriggersSync(t *testing.T) {
	d := newDeps()
	d.secret = "s3cret"
	d.syncer.synced = make(chan string, 1)

	rec := httptest.NewRecorder()
	d.router().ServeHTTP(rec, webhookRequest(t, "pull_request", "s3cret", fmt.Sprintf(prPayload, "alice")))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	select {
	case login := <-d.syncer.synced:
		assert.Equal(t, "alice", login)
	case <-time.After(2 * time.Second):
		t.Fatal("sync was not triggered")
	}
}

func TestWebhook_UntrackedAuthorIgnored(t *testing.T) {
	d := newDeps()

	rec := httptest.NewRecorder()
	d.router().ServeHTTP(rec, webhookRequest(t, "pull_request", "", fmt.Sprintf(prPayload, "mallory")))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	decodeJSON(t, rec, &body)
	assert.Equal(t, "ignored", body["status"])
}

func TestWebhook_BadSignature(t *testing.T) {
	d := newDeps()
	d.secret = "s3cret"

	rec := httptest.NewRecorder()
	d.router().ServeHTTP(rec, webhookRequest(t, "pull_request", "wrong", fmt.Sprintf(prPayload, "alice")))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhook_Ping(t *testing.T) {
	d := newDeps()

	rec := httptest.NewRecorder()
	d.router().ServeHTTP(rec, webhookRequest(t, "ping", "", `{"zen":"Keep it logically awesome."}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	decodeJSON(t, rec, &body)
	assert.Equal(t, "pong", body["status"])
}

func TestWebhook_OtherEventIgnored(t *testing.T) {
	d := newDeps()

	rec := httptest.NewRecorder()
	d.router().ServeHTTP(rec, webhookRequest(t, "star", "", `{"action":"created"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	d := newDeps()
	h := httphandler.NewHandler(d.syncer, d.refresher, nil, d.repos, d.users, "", slog.Default())

	rec := serve(t, httphandler.NewRouter(h, slog.Default()), http.MethodGet, "/api/v1/metrics/statistics", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
