package application_test

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
	"github.com/ericfisherdev/reviewpulse/internal/domain/port/driven"
)

// --- GitHub client ---

type fakeGitHub struct {
	summaries []model.PullRequestSummary
	searchErr error // yielded after all summaries

	owners    map[string]*model.Owner
	repos     map[string]*model.Repository // keyed by owner/name
	reviews   map[int][]model.Review
	comments  map[int][]model.ReviewComment
	requested map[int][]string
	merged    map[int]bool
	unknown   []string // logins FetchUserDetails cannot resolve

	reviewCalls      atomic.Int32
	mergeStatusCalls atomic.Int32
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		owners: map[string]*model.Owner{
			"acme": {GitHubID: 900, Login: "acme", Kind: model.OwnerKindOrganization},
		},
		repos: map[string]*model.Repository{
			"acme/web": {GitHubID: 1200, Name: "web", OwnerLogin: "acme"},
		},
		reviews:   map[int][]model.Review{},
		comments:  map[int][]model.ReviewComment{},
		requested: map[int][]string{},
		merged:    map[int]bool{},
	}
}

func (f *fakeGitHub) SearchPullRequests(_ context.Context, _ string, _, _ time.Time) iter.Seq2[model.PullRequestSummary, error] {
	return func(yield func(model.PullRequestSummary, error) bool) {
		for _, s := range f.summaries {
			if !yield(s, nil) {
				return
			}
		}
		if f.searchErr != nil {
			yield(model.PullRequestSummary{}, f.searchErr)
		}
	}
}

func (f *fakeGitHub) FetchMergeStatus(_ context.Context, _, _ string, number int) bool {
	f.mergeStatusCalls.Add(1)
	return f.merged[number]
}

func (f *fakeGitHub) FetchOwnerDetails(_ context.Context, login string) *model.Owner {
	o, ok := f.owners[login]
	if !ok {
		return nil
	}
	cp := *o
	return &cp
}

func (f *fakeGitHub) FetchRepositoryDetails(_ context.Context, owner, name string) *model.Repository {
	r, ok := f.repos[owner+"/"+name]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

func (f *fakeGitHub) FetchUserDetails(_ context.Context, login string) *model.UserProfile {
	if slices.Contains(f.unknown, login) {
		return nil
	}
	return &model.UserProfile{GitHubID: 4242, Login: strings.ToLower(login), Name: "Profile " + login}
}

func (f *fakeGitHub) FetchReviews(_ context.Context, _, _ string, number int) []model.Review {
	f.reviewCalls.Add(1)
	return slices.Clone(f.reviews[number])
}

func (f *fakeGitHub) FetchReviewComments(_ context.Context, _, _ string, number int) []model.ReviewComment {
	return slices.Clone(f.comments[number])
}

func (f *fakeGitHub) FetchRequestedReviewers(_ context.Context, _, _ string, number int) []string {
	return slices.Clone(f.requested[number])
}

// --- Stores ---

type memUserStore struct {
	mu      sync.Mutex
	users   []model.User
	listErr error
}

func (m *memUserStore) GetByLogin(_ context.Context, login string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Login == login {
			cp := u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get user %s: %w", login, driven.ErrUserNotFound)
}

func (m *memUserStore) ListAll(_ context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return slices.Clone(m.users), nil
}

func (m *memUserStore) Upsert(_ context.Context, user model.User) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = int64(len(m.users) + 1)
	m.users = append(m.users, user)
	return user, nil
}

func usersNamed(logins ...string) *memUserStore {
	s := &memUserStore{}
	for i, l := range logins {
		s.users = append(s.users, model.User{ID: int64(i + 1), Login: l})
	}
	return s
}

type memOwnerStore struct {
	owners []model.Owner
}

func (m *memOwnerStore) GetByLogin(_ context.Context, login string) (*model.Owner, error) {
	for _, o := range m.owners {
		if o.Login == login {
			cp := o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memOwnerStore) Ensure(_ context.Context, owner model.Owner) (model.Owner, error) {
	for _, o := range m.owners {
		if o.Login == owner.Login {
			return o, nil
		}
	}
	owner.ID = int64(len(m.owners) + 1)
	m.owners = append(m.owners, owner)
	return owner, nil
}

func (m *memOwnerStore) Count(_ context.Context) (int, error) {
	return len(m.owners), nil
}

type memRepoStore struct {
	repos []model.Repository
}

func (m *memRepoStore) GetByName(_ context.Context, ownerID int64, name string) (*model.Repository, error) {
	for _, r := range m.repos {
		if r.OwnerID == ownerID && r.Name == name {
			cp := r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepoStore) GetByID(_ context.Context, id int64) (*model.Repository, error) {
	for _, r := range m.repos {
		if r.ID == id {
			cp := r
			return &cp, nil
		}
	}
	return nil, driven.ErrRepoNotFound
}

func (m *memRepoStore) Ensure(_ context.Context, repo model.Repository) (model.Repository, error) {
	for _, r := range m.repos {
		if r.OwnerID == repo.OwnerID && r.Name == repo.Name {
			return r, nil
		}
	}
	repo.ID = int64(len(m.repos) + 1)
	m.repos = append(m.repos, repo)
	return repo, nil
}

func (m *memRepoStore) SetFlagged(_ context.Context, id int64, flagged bool) error {
	for i := range m.repos {
		if m.repos[i].ID == id {
			m.repos[i].Flagged = flagged
			return nil
		}
	}
	return driven.ErrRepoNotFound
}

func (m *memRepoStore) ListAll(_ context.Context) ([]model.Repository, error) {
	return slices.Clone(m.repos), nil
}

type memPRStore struct {
	prs       []model.PullRequest
	createErr error
	listCalls int
	updates   int
}

func (m *memPRStore) GetByGitHubID(_ context.Context, githubID int64) (*model.PullRequest, error) {
	for _, pr := range m.prs {
		if pr.GitHubID == githubID {
			cp := pr
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memPRStore) GetByID(_ context.Context, id int64) (*model.PullRequest, error) {
	for _, pr := range m.prs {
		if pr.ID == id {
			cp := pr
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get pull request %d: %w", id, driven.ErrPRNotFound)
}

func (m *memPRStore) Create(_ context.Context, pr model.PullRequest) (int64, bool, error) {
	if m.createErr != nil {
		return 0, false, m.createErr
	}
	for _, existing := range m.prs {
		if existing.GitHubID == pr.GitHubID {
			return existing.ID, false, nil
		}
	}
	pr.ID = int64(len(m.prs) + 1)
	m.prs = append(m.prs, pr)
	return pr.ID, true, nil
}

func (m *memPRStore) UpdateSyncFields(_ context.Context, pr model.PullRequest) error {
	for i := range m.prs {
		if m.prs[i].ID == pr.ID {
			title, body := m.prs[i].Title, m.prs[i].Body
			m.prs[i] = pr
			m.prs[i].Title, m.prs[i].Body = title, body
			m.updates++
			return nil
		}
	}
	return driven.ErrPRNotFound
}

func (m *memPRStore) ListAll(_ context.Context) ([]model.PullRequest, error) {
	m.listCalls++
	return slices.Clone(m.prs), nil
}

func (m *memPRStore) ListByStatus(_ context.Context, status model.ReviewStatus) ([]model.PullRequest, error) {
	var out []model.PullRequest
	for _, pr := range m.prs {
		if pr.ReviewStatus == status {
			out = append(out, pr)
		}
	}
	return out, nil
}

// --- Metrics cache ---

type memCache struct {
	mu            sync.Mutex
	entries       map[string][]byte
	invalidations int
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *memCache) Set(_ context.Context, key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

func (c *memCache) Invalidate(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string][]byte{}
	c.invalidations++
}

func (c *memCache) invalidationCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidations
}

// --- Clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
