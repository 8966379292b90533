package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/dmitrijs2005/mediaflow/internal/dbx"
	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"github.com/dmitrijs2005/mediaflow/internal/server/blobstore"
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/media"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/transfers"
)

// -------- test fakes --------

type fakeTransfersRepo struct {
	transfers.Repository
	mu       sync.Mutex
	sessions map[string]*models.TransferSession
	updates  int
	getErr   error
	updErr   error
}

func newFakeTransfersRepo() *fakeTransfersRepo {
	return &fakeTransfersRepo{sessions: map[string]*models.TransferSession{}}
}

func cloneSession(s *models.TransferSession) *models.TransferSession {
	c := *s
	c.CompletedParts = append([]models.CompletedPart(nil), s.CompletedParts...)
	return &c
}

func (f *fakeTransfersRepo) Create(ctx context.Context, s *models.TransferSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = cloneSession(s)
	return nil
}

func (f *fakeTransfersRepo) Get(ctx context.Context, id string) (*models.TransferSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneSession(s), nil
}

func (f *fakeTransfersRepo) Update(ctx context.Context, s *models.TransferSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updErr != nil {
		return f.updErr
	}
	if _, ok := f.sessions[s.ID]; !ok {
		return common.ErrorNotFound
	}
	f.updates++
	f.sessions[s.ID] = cloneSession(s)
	return nil
}

func (f *fakeTransfersRepo) FindLatestUploading(ctx context.Context, podcastID, userID string) (*models.TransferSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.TransferSession
	for _, s := range f.sessions {
		if s.PodcastID != podcastID || s.CreatedBy != userID || s.Status != models.TransferUploading {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, common.ErrorNotFound
	}
	return cloneSession(latest), nil
}

func (f *fakeTransfersRepo) stored(id string) *models.TransferSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneSession(f.sessions[id])
}

type fakeMediaRepo struct {
	media.Repository
	mu          sync.Mutex
	allowed     bool
	accessErr   error
	episodeURLs map[string]string
	episodeErr  error
	sources     map[string]*models.Source
	statuses    []models.SourceStatus
	known       []string
	knownArgs   []string
	updated     chan struct{}
}

func newFakeMediaRepo() *fakeMediaRepo {
	return &fakeMediaRepo{
		allowed:     true,
		episodeURLs: map[string]string{},
		sources:     map[string]*models.Source{},
	}
}

func (f *fakeMediaRepo) CanAccessPodcast(ctx context.Context, podcastID, userID string) (bool, error) {
	return f.allowed, f.accessErr
}

func (f *fakeMediaRepo) SetEpisodeMediaURL(ctx context.Context, episodeID, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.episodeErr != nil {
		return f.episodeErr
	}
	f.episodeURLs[episodeID] = url
	return nil
}

func (f *fakeMediaRepo) CreateSource(ctx context.Context, s *models.Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *s
	f.sources[s.ID] = &c
	return nil
}

func (f *fakeMediaRepo) GetSource(ctx context.Context, id string) (*models.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sources[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *s
	return &c, nil
}

func (f *fakeMediaRepo) UpdateSourceStatus(ctx context.Context, id string, status models.SourceStatus, errMsg string) error {
	f.mu.Lock()
	s, ok := f.sources[id]
	if ok {
		s.Status = status
		s.ErrorMessage = errMsg
		f.statuses = append(f.statuses, status)
	}
	ch := f.updated
	f.mu.Unlock()
	if !ok {
		return common.ErrorNotFound
	}
	if ch != nil {
		ch <- struct{}{}
	}
	return nil
}

func (f *fakeMediaRepo) KnownFingerprints(ctx context.Context, podcastID string, fingerprints []string) ([]string, error) {
	f.knownArgs = fingerprints
	return f.known, nil
}

type fakeStore struct {
	blobstore.Store
	mu          sync.Mutex
	uploadCalls int
	aborted     bool
	gotParts    []models.CompletedPart
	createErr   error
	uploadErr   error
	completeErr error
	url         string
}

func (f *fakeStore) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	return "upload-1", nil
}

func (f *fakeStore) UploadPart(ctx context.Context, key, uploadID string, partNumber int, body []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploadCalls++
	return etagFor(partNumber), nil
}

func (f *fakeStore) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []models.CompletedPart) (string, error) {
	f.gotParts = parts
	if f.completeErr != nil {
		return "", f.completeErr
	}
	if f.url != "" {
		return f.url, nil
	}
	return "https://cdn.example.com/" + key, nil
}

func (f *fakeStore) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	f.aborted = true
	return nil
}

func etagFor(n int) string {
	return "etag-" + string(rune('a'+n%26))
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	t *fakeTransfersRepo
	m *fakeMediaRepo
}

func (m *fakeRepoManager) Transfers(db dbx.DBTX) transfers.Repository { return m.t }
func (m *fakeRepoManager) Media(db dbx.DBTX) media.Repository         { return m.m }

// -------- helpers --------

var errBoom = errors.New("boom")

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func nopLogger() logging.Logger {
	return logging.NewNopLogger()
}
