package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
	"github.com/ericfisherdev/reviewpulse/internal/domain/port/driven"
)

// Reasons a refresh request is rejected.
const (
	ReasonAlreadyRunning = "already running"
	ReasonCooldown       = "cooldown"
)

const recentOutcomeLimit = 20

// UserSyncer syncs a single tracked user. SyncService satisfies it.
type UserSyncer interface {
	SyncUser(ctx context.Context, login string) (SyncResult, error)
}

// RefreshConfig tunes the refresh coordinator.
type RefreshConfig struct {
	Cooldown  time.Duration    // Minimum time between the end of one run and the start of the next.
	UserDelay time.Duration    // Pause between consecutive users.
	Clock     func() time.Time // Defaults to time.Now.
}

// StartResult describes the outcome of a refresh request.
type StartResult struct {
	Accepted          bool
	Reason            string
	CooldownRemaining time.Duration
	Job               model.RefreshJob
}

// RefreshCoordinator runs the full-roster refresh job. At most one run is in
// flight; job state is only exposed through copies.
type RefreshCoordinator struct {
	syncer UserSyncer
	users  driven.UserStore
	cache  driven.MetricsCache
	cfg    RefreshConfig

	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	job      model.RefreshJob
	starting bool // Roster is loading; Running is not yet published.
	done     chan struct{}
}

// NewRefreshCoordinator creates an idle coordinator. cache may be nil.
func NewRefreshCoordinator(syncer UserSyncer, users driven.UserStore, cache driven.MetricsCache, cfg RefreshConfig) *RefreshCoordinator {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	base, cancel := context.WithCancel(context.Background())
	return &RefreshCoordinator{
		syncer: syncer,
		users:  users,
		cache:  cache,
		cfg:    cfg,
		base:   base,
		cancel: cancel,
	}
}

// Start begins a refresh run unless one is already running or the cooldown
// since the last completed run has not elapsed. The roster is loaded before
// Start returns; a roster failure is returned and leaves the job idle. Users
// are then synced sequentially in the background.
//
// The job only reports Running once the roster has loaded, so Status never
// shows a running job carrying the previous run's counters.
func (c *RefreshCoordinator) Start(ctx context.Context) (StartResult, error) {
	c.mu.Lock()
	if c.job.Running || c.starting {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return StartResult{Reason: ReasonAlreadyRunning, Job: snap}, nil
	}

	now := c.cfg.Clock()
	if !c.job.LastCompletedAt.IsZero() && c.cfg.Cooldown > 0 {
		if remaining := c.job.LastCompletedAt.Add(c.cfg.Cooldown).Sub(now); remaining > 0 {
			snap := c.snapshotLocked()
			c.mu.Unlock()
			return StartResult{Reason: ReasonCooldown, CooldownRemaining: remaining, Job: snap}, nil
		}
	}

	// Claim the run before releasing the lock so concurrent callers are rejected.
	c.starting = true
	c.mu.Unlock()

	users, err := c.users.ListAll(ctx)

	c.mu.Lock()
	c.starting = false
	if err != nil {
		c.job.LastError = fmt.Sprintf("load roster: %v", err)
		snap := c.snapshotLocked()
		c.mu.Unlock()

		slog.Error("refresh aborted", "error", err)
		return StartResult{Job: snap}, fmt.Errorf("start refresh: load roster: %w", err)
	}

	c.job = model.RefreshJob{
		RunID:           uuid.NewString(),
		Running:         true,
		Total:           len(users),
		StartedAt:       c.cfg.Clock(),
		LastCompletedAt: c.job.LastCompletedAt,
	}

	done := make(chan struct{})
	c.done = done
	snap := c.snapshotLocked()
	c.mu.Unlock()

	slog.Info("refresh started", "run_id", snap.RunID, "users", len(users))

	go c.run(users, done)

	return StartResult{Accepted: true, Job: snap}, nil
}

func (c *RefreshCoordinator) run(users []model.User, done chan struct{}) {
	defer close(done)

	ctx := c.base
	for i, u := range users {
		if i > 0 && c.cfg.UserDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(c.cfg.UserDelay):
			}
		}
		if ctx.Err() != nil {
			c.abort(ctx.Err())
			return
		}

		c.mu.Lock()
		c.job.CurrentLogin = u.Login
		c.mu.Unlock()

		result, err := c.syncer.SyncUser(ctx, u.Login)
		c.record(u.Login, result, err)
	}

	c.finish()
}

func (c *RefreshCoordinator) record(login string, result SyncResult, err error) {
	outcome := model.RefreshOutcome{
		Login:        login,
		Success:      err == nil,
		PRsProcessed: result.PullRequestsProcessed(),
		FinishedAt:   c.cfg.Clock(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.job.Processed++
	c.job.PRsProcessed += outcome.PRsProcessed
	if err != nil {
		outcome.Error = err.Error()
		c.job.Failed++
		c.job.LastError = outcome.Error
		slog.Error("user refresh failed", "run_id", c.job.RunID, "login", login, "error", err)
	} else {
		c.job.Succeeded++
	}

	c.job.Recent = append(c.job.Recent, outcome)
	if over := len(c.job.Recent) - recentOutcomeLimit; over > 0 {
		c.job.Recent = slices.Delete(c.job.Recent, 0, over)
	}
}

func (c *RefreshCoordinator) finish() {
	c.mu.Lock()
	c.job.Running = false
	c.job.CurrentLogin = ""
	c.job.LastCompletedAt = c.cfg.Clock()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.cache != nil {
		c.cache.Invalidate(c.base)
	}

	slog.Info("refresh complete",
		"run_id", snap.RunID,
		"processed", snap.Processed,
		"succeeded", snap.Succeeded,
		"failed", snap.Failed,
		"prs_processed", snap.PRsProcessed,
		"duration", snap.LastCompletedAt.Sub(snap.StartedAt).Round(time.Second),
	)
}

func (c *RefreshCoordinator) abort(err error) {
	c.mu.Lock()
	c.job.Running = false
	c.job.CurrentLogin = ""
	c.job.LastError = fmt.Sprintf("refresh canceled: %v", err)
	runID := c.job.RunID
	c.mu.Unlock()

	slog.Warn("refresh canceled", "run_id", runID, "error", err)
}

// Status returns a copy of the current job state.
func (c *RefreshCoordinator) Status() model.RefreshJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *RefreshCoordinator) snapshotLocked() model.RefreshJob {
	snap := c.job
	snap.Recent = slices.Clone(c.job.Recent)
	if snap.Recent == nil {
		snap.Recent = []model.RefreshOutcome{}
	}
	return snap
}

// Wait blocks until the current run, if any, has ended.
func (c *RefreshCoordinator) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

// RunSchedule calls Start every interval until ctx is canceled. Rejections
// (running or cooling down) are logged at debug level.
func (c *RefreshCoordinator) RunSchedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("refresh schedule stopped")
			return
		case <-ticker.C:
			res, err := c.Start(ctx)
			if err != nil {
				slog.Error("scheduled refresh failed", "error", err)
				continue
			}
			if !res.Accepted {
				slog.Debug("scheduled refresh skipped", "reason", res.Reason, "cooldown_remaining", res.CooldownRemaining)
			}
		}
	}
}

// Close cancels any in-flight run and waits for it to stop.
func (c *RefreshCoordinator) Close() {
	c.cancel()
	c.Wait()
}
