package publish

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/dmitrijs2005/mediaflow/internal/dbx"
	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/media"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/publishes"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/repomanager"
)

// -------- test fakes --------

type fakePublishesRepo struct {
	publishes.Repository
	mu       sync.Mutex
	uploads  map[string]*models.PublishUpload
	statuses []models.PublishStatus
	// onUpdate runs after each successful update, outside the lock.
	onUpdate func(u *models.PublishUpload)
}

func newFakePublishesRepo() *fakePublishesRepo {
	return &fakePublishesRepo{uploads: map[string]*models.PublishUpload{}}
}

func clone(u *models.PublishUpload) *models.PublishUpload {
	c := *u
	return &c
}

func (f *fakePublishesRepo) Create(ctx context.Context, u *models.PublishUpload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[u.ID] = clone(u)
	f.statuses = append(f.statuses, u.Status)
	return nil
}

func (f *fakePublishesRepo) Get(ctx context.Context, id string) (*models.PublishUpload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.uploads[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(u), nil
}

func (f *fakePublishesRepo) Update(ctx context.Context, u *models.PublishUpload) error {
	f.mu.Lock()
	prev, ok := f.uploads[u.ID]
	if !ok {
		f.mu.Unlock()
		return common.ErrorNotFound
	}
	if prev.Status != u.Status {
		f.statuses = append(f.statuses, u.Status)
	}
	f.uploads[u.ID] = clone(u)
	hook := f.onUpdate
	f.mu.Unlock()
	if hook != nil {
		hook(clone(u))
	}
	return nil
}

func (f *fakePublishesRepo) ListActive(ctx context.Context) ([]*models.PublishUpload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PublishUpload
	for _, u := range f.uploads {
		switch u.Status {
		case models.PublishPending, models.PublishUploading, models.PublishProcessing, models.PublishPosting:
			out = append(out, clone(u))
		}
	}
	return out, nil
}

func (f *fakePublishesRepo) stored(id string) *models.PublishUpload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return clone(f.uploads[id])
}

func (f *fakePublishesRepo) history() []models.PublishStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.PublishStatus(nil), f.statuses...)
}

type fakeMediaRepo struct {
	media.Repository
	clip    *models.Clip
	exports []*models.MediaExport
	allowed bool
}

func (f *fakeMediaRepo) GetClip(ctx context.Context, id string) (*models.Clip, error) {
	if f.clip == nil || f.clip.ID != id {
		return nil, common.ErrorNotFound
	}
	return f.clip, nil
}

func (f *fakeMediaRepo) FindClipByPost(ctx context.Context, postID string) (*models.Clip, error) {
	if f.clip == nil || f.clip.PostID != postID {
		return nil, common.ErrorNotFound
	}
	return f.clip, nil
}

func (f *fakeMediaRepo) CanAccessPodcast(ctx context.Context, podcastID, userID string) (bool, error) {
	return f.allowed, nil
}

func (f *fakeMediaRepo) ListExports(ctx context.Context, clipID string) ([]*models.MediaExport, error) {
	return f.exports, nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	p *fakePublishesRepo
	m *fakeMediaRepo
}

func (m *fakeRepoManager) Publishes(db dbx.DBTX) publishes.Repository { return m.p }
func (m *fakeRepoManager) Media(db dbx.DBTX) media.Repository         { return m.m }

type fakeAuth struct {
	mu     sync.Mutex
	err    error
	issued int
}

func (f *fakeAuth) Token(ctx context.Context, userID string, p models.Platform, force bool) (*models.OAuthToken, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.issued++
	n := f.issued
	f.mu.Unlock()
	return &models.OAuthToken{UserID: userID, Platform: p, AccessToken: fmt.Sprintf("tok-%d", n)}, nil
}

func (f *fakeAuth) Do(ctx context.Context, userID string, p models.Platform, fn func(ctx context.Context, t *models.OAuthToken) error) error {
	t, err := f.Token(ctx, userID, p, false)
	if err != nil {
		return err
	}
	return fn(ctx, t)
}

// scriptedDriver replays canned poll results and records the calls it saw.
type scriptedDriver struct {
	mu          sync.Mutex
	platform    models.Platform
	posting     bool
	polls       []pollStep
	acquireErr  error
	transferErr error
	postErr     error
	// pollAfter is what Transfer asks the first poll to wait.
	pollAfter time.Duration
	// segments is how many tokens Transfer asks for, one per platform call.
	segments int
	tokens   []string
	calls    []string
	// beforePost runs at the start of FinalizePost.
	beforePost func()
}

type pollStep struct {
	poll Poll
	err  error
}

func (d *scriptedDriver) record(c string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, c)
}

func (d *scriptedDriver) seen() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *scriptedDriver) Platform() models.Platform { return d.platform }
func (d *scriptedDriver) HasPosting() bool          { return d.posting }

func (d *scriptedDriver) AcquireTarget(ctx context.Context, job *Job) error {
	d.record("acquire")
	if d.acquireErr != nil {
		return d.acquireErr
	}
	job.Upload.UploadTarget = "target-1"
	return job.Save(ctx)
}

func (d *scriptedDriver) Transfer(ctx context.Context, job *Job) error {
	d.record("transfer")
	if d.transferErr != nil {
		return d.transferErr
	}
	for i := 0; i < d.segments; i++ {
		tok, err := job.AccessToken(ctx)
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.tokens = append(d.tokens, tok)
		d.mu.Unlock()
	}
	job.Upload.UploadProgress = 50
	if err := job.Save(ctx); err != nil {
		return err
	}
	job.Upload.PlatformMediaID = "media-1"
	job.PollAfter = d.pollAfter
	return nil
}

func (d *scriptedDriver) PollProcessing(ctx context.Context, job *Job) (Poll, error) {
	d.record("poll")
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.polls) == 0 {
		return Poll{Done: true, Progress: 100}, nil
	}
	step := d.polls[0]
	d.polls = d.polls[1:]
	return step.poll, step.err
}

func (d *scriptedDriver) FinalizePost(ctx context.Context, job *Job) error {
	d.record("post")
	if d.beforePost != nil {
		d.beforePost()
	}
	if d.postErr != nil {
		return d.postErr
	}
	job.Upload.PublishedID = "post-1"
	job.Upload.PlatformURL = "https://example.com/post-1"
	return nil
}

// -------- helpers --------

func newSQLMockDB(t *testing.T) *sql.DB {
	t.Helper()
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// sourceServer answers HEAD with a fixed Content-Length.
func sourceServer(t *testing.T, size int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type runnerFixture struct {
	runner  *Runner
	repo    *fakePublishesRepo
	media   *fakeMediaRepo
	auth    *fakeAuth
	driver  *scriptedDriver
	source  *httptest.Server
	sleeps  []time.Duration
	sleepMu sync.Mutex
}

func newRunnerFixture(t *testing.T, d *scriptedDriver) *runnerFixture {
	t.Helper()
	f := &runnerFixture{
		repo:   newFakePublishesRepo(),
		media:  &fakeMediaRepo{allowed: true},
		auth:   &fakeAuth{},
		driver: d,
		source: sourceServer(t, 4096),
	}
	f.runner = NewRunner(newSQLMockDB(t), &fakeRepoManager{p: f.repo, m: f.media}, []Driver{d}, f.auth, f.source.Client(), 5*time.Second, logging.NewNopLogger())
	f.runner.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleepMu.Lock()
		f.sleeps = append(f.sleeps, d)
		f.sleepMu.Unlock()
		return ctx.Err()
	}
	return f
}

func (f *runnerFixture) seed(mut func(u *models.PublishUpload)) *models.PublishUpload {
	u := &models.PublishUpload{
		ID:        "pu1",
		Platform:  f.driver.platform,
		UserID:    "u1",
		ClipID:    "c1",
		SourceURL: f.source.URL + "/clip.mp4",
		Status:    models.PublishPending,
		Phase:     models.PhaseAcquire,
	}
	if mut != nil {
		mut(u)
	}
	_ = f.repo.Create(context.Background(), u)
	return u
}
