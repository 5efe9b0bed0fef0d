package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/reviewpulse/internal/application"
	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
	"github.com/ericfisherdev/reviewpulse/internal/domain/port/driven"
)

const (
	maxRequestBody     = 1 << 20
	webhookSyncTimeout = 5 * time.Minute
)

// Syncer ingests pull requests for one user or refreshes a single PR.
type Syncer interface {
	SyncUser(ctx context.Context, login string) (application.SyncResult, error)
	RefreshPullRequest(ctx context.Context, prID int64) (model.PullRequest, error)
}

// Refresher drives the full-roster refresh job.
type Refresher interface {
	Start(ctx context.Context) (application.StartResult, error)
	Status() model.RefreshJob
}

// Metrics serves the read-only reporting views.
type Metrics interface {
	Bottlenecks(ctx context.Context) (model.BottleneckReport, error)
	Efficiency(ctx context.Context) (model.EfficiencyReport, error)
	Statistics(ctx context.Context) (model.Statistics, error)
	InReview(ctx context.Context) ([]application.PullRequestView, error)
	ByStatus(ctx context.Context, status model.ReviewStatus) ([]application.PullRequestView, error)
	PullRequest(ctx context.Context, id int64) (application.PullRequestView, error)
	Leaderboard(ctx context.Context) ([]model.LeaderboardEntry, error)
	UserPullRequests(ctx context.Context, login string) ([]application.PullRequestView, error)
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	syncer        Syncer
	refresher     Refresher
	metrics       Metrics
	repos         driven.RepoStore
	users         driven.UserStore
	webhookSecret []byte
	logger        *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. An empty
// webhook secret disables signature verification.
func NewHandler(
	syncer Syncer,
	refresher Refresher,
	metrics Metrics,
	repos driven.RepoStore,
	users driven.UserStore,
	webhookSecret string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		syncer:        syncer,
		refresher:     refresher,
		metrics:       metrics,
		repos:         repos,
		users:         users,
		webhookSecret: []byte(webhookSecret),
		logger:        logger,
	}
}

// NewRouter creates an http.Handler with all routes registered and wrapped
// with request-id, logging and recovery middleware.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware(logger))
	// Recovery innermost so panics are caught before logging.
	r.Use(recoveryMiddleware(logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Post("/users/{login}/sync", h.SyncUser)
		r.Get("/users/{login}/prs", h.UserPullRequests)

		r.Get("/leaderboard", h.Leaderboard)

		r.Post("/refresh", h.StartRefresh)
		r.Get("/refresh/status", h.RefreshStatus)

		r.Get("/metrics/bottlenecks", h.Bottlenecks)
		r.Get("/metrics/efficiency", h.Efficiency)
		r.Get("/metrics/statistics", h.Statistics)

		r.Get("/prs/in-review", h.InReview)
		r.Get("/prs/status/{status}", h.ByStatus)
		r.Get("/prs/{id}", h.GetPR)
		r.Post("/prs/{id}/refresh-review", h.RefreshReview)

		r.Put("/repos/{id}/flag", h.FlagRepo)

		r.Post("/webhooks/github", h.Webhook)
	})

	return r
}

// Health returns a simple liveness response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Time: formatTime(time.Now())})
}

// SyncUser ingests the pull requests of one tracked user synchronously.
func (h *Handler) SyncUser(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")

	result, err := h.syncer.SyncUser(r.Context(), login)
	if err != nil {
		if errors.Is(err, driven.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not tracked: "+login)
			return
		}
		h.logger.Error("failed to sync user", "login", login, "error", err)
		writeError(w, http.StatusBadGateway, "sync failed")
		return
	}

	writeJSON(w, http.StatusOK, toSyncResponse(result))
}

// UserPullRequests lists the pull requests authored by one tracked user.
func (h *Handler) UserPullRequests(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")

	views, err := h.metrics.UserPullRequests(r.Context(), login)
	if err != nil {
		if errors.Is(err, driven.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not tracked: "+login)
			return
		}
		h.internalError(w, "failed to list user PRs", err)
		return
	}
	writeJSON(w, http.StatusOK, toPRViewResponses(views))
}

// Leaderboard ranks tracked users by merged pull requests.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.metrics.Leaderboard(r.Context())
	if err != nil {
		h.internalError(w, "failed to compute leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaderboardResponse(board))
}

// StartRefresh triggers a full-roster refresh in the background.
func (h *Handler) StartRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.refresher.Start(r.Context())
	if err != nil {
		h.logger.Error("failed to start refresh", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := RefreshStartResponse{
		Accepted: res.Accepted,
		Reason:   res.Reason,
		Job:      toRefreshJobResponse(res.Job),
	}

	switch {
	case res.Accepted:
		writeJSON(w, http.StatusAccepted, resp)
	case res.Reason == application.ReasonCooldown:
		secs := int64(math.Ceil(res.CooldownRemaining.Seconds()))
		resp.CooldownRemainingSeconds = secs
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		writeJSON(w, http.StatusTooManyRequests, resp)
	default:
		writeJSON(w, http.StatusConflict, resp)
	}
}

// RefreshStatus reports the refresh job state.
func (h *Handler) RefreshStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toRefreshJobResponse(h.refresher.Status()))
}

// Bottlenecks returns pull requests stuck in review.
func (h *Handler) Bottlenecks(w http.ResponseWriter, r *http.Request) {
	report, err := h.metrics.Bottlenecks(r.Context())
	if err != nil {
		h.internalError(w, "failed to compute bottlenecks", err)
		return
	}
	writeJSON(w, http.StatusOK, toBottleneckResponse(report))
}

// Efficiency returns aggregate review-health metrics.
func (h *Handler) Efficiency(w http.ResponseWriter, r *http.Request) {
	report, err := h.metrics.Efficiency(r.Context())
	if err != nil {
		h.internalError(w, "failed to compute efficiency", err)
		return
	}
	writeJSON(w, http.StatusOK, toEfficiencyResponse(report))
}

// Statistics returns store-wide totals.
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.metrics.Statistics(r.Context())
	if err != nil {
		h.internalError(w, "failed to compute statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatisticsResponse(stats))
}

// InReview lists open pull requests that have review activity.
func (h *Handler) InReview(w http.ResponseWriter, r *http.Request) {
	views, err := h.metrics.InReview(r.Context())
	if err != nil {
		h.internalError(w, "failed to list in-review PRs", err)
		return
	}
	writeJSON(w, http.StatusOK, toPRViewResponses(views))
}

// ByStatus lists pull requests with the given review status.
func (h *Handler) ByStatus(w http.ResponseWriter, r *http.Request) {
	status := model.ReviewStatus(chi.URLParam(r, "status"))

	views, err := h.metrics.ByStatus(r.Context(), status)
	if err != nil {
		if errors.Is(err, application.ErrInvalidStatus) {
			writeError(w, http.StatusBadRequest, "invalid review status: "+string(status))
			return
		}
		h.internalError(w, "failed to list PRs by status", err)
		return
	}
	writeJSON(w, http.StatusOK, toPRViewResponses(views))
}

// GetPR returns one pull request with its metrics and rendered description.
func (h *Handler) GetPR(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	view, err := h.metrics.PullRequest(r.Context(), id)
	if err != nil {
		if errors.Is(err, driven.ErrPRNotFound) {
			writeError(w, http.StatusNotFound, "pull request not found")
			return
		}
		h.internalError(w, "failed to get PR", err)
		return
	}
	writeJSON(w, http.StatusOK, toPRDetailResponse(view))
}

// RefreshReview re-fetches review data for one pull request.
func (h *Handler) RefreshReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	pr, err := h.syncer.RefreshPullRequest(r.Context(), id)
	switch {
	case errors.Is(err, driven.ErrPRNotFound):
		writeError(w, http.StatusNotFound, "pull request not found")
	case errors.Is(err, application.ErrPRNumberUnknown):
		writeError(w, http.StatusUnprocessableEntity, "pull request number unknown")
	case err != nil:
		h.internalError(w, "failed to refresh PR review", err)
	default:
		writeJSON(w, http.StatusOK, toPRResponse(pr))
	}
}

// flagRequest is the JSON body for the repository flag endpoint.
type flagRequest struct {
	Flagged *bool `json:"flagged"`
}

// FlagRepo sets or clears the manual exclusion flag on a repository.
func (h *Handler) FlagRepo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req flagRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Flagged == nil {
		writeError(w, http.StatusBadRequest, "flagged is required")
		return
	}

	if err := h.repos.SetFlagged(r.Context(), id, *req.Flagged); err != nil {
		if errors.Is(err, driven.ErrRepoNotFound) {
			writeError(w, http.StatusNotFound, "repository not found")
			return
		}
		h.internalError(w, "failed to flag repository", err)
		return
	}

	repo, err := h.repos.GetByID(r.Context(), id)
	if err != nil {
		h.internalError(w, "failed to reload repository", err)
		return
	}

	writeJSON(w, http.StatusOK, RepoResponse{
		ID:       repo.ID,
		FullName: repo.FullName(),
		Flagged:  repo.Flagged,
	})
}

// Webhook accepts GitHub pull_request deliveries and syncs the author when
// they are tracked.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := gh.ValidatePayload(r, h.webhookSecret)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	eventType := gh.WebHookType(r)
	if eventType == "ping" {
		writeJSON(w, http.StatusOK, webhookResponse{Status: "pong"})
		return
	}

	event, err := gh.ParseWebHook(eventType, payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unparseable webhook payload")
		return
	}

	prEvent, ok := event.(*gh.PullRequestEvent)
	if !ok {
		writeJSON(w, http.StatusOK, webhookResponse{Status: "ignored"})
		return
	}

	login := prEvent.GetPullRequest().GetUser().GetLogin()
	if _, err := h.users.GetByLogin(r.Context(), login); err != nil {
		if errors.Is(err, driven.ErrUserNotFound) {
			writeJSON(w, http.StatusOK, webhookResponse{Status: "ignored"})
			return
		}
		h.internalError(w, "failed to look up webhook author", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), webhookSyncTimeout)
	go func() {
		defer cancel()
		if _, err := h.syncer.SyncUser(ctx, login); err != nil {
			h.logger.Error("webhook-triggered sync failed", "login", login, "error", err)
		}
	}()

	h.logger.Info("webhook accepted",
		"action", prEvent.GetAction(),
		"login", login,
		"delivery", gh.DeliveryID(r),
	)
	writeJSON(w, http.StatusAccepted, webhookResponse{Status: "accepted", Login: login})
}

func (h *Handler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// pathID parses the {id} URL parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
