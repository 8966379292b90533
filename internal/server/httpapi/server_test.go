package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"github.com/dmitrijs2005/mediaflow/internal/server/auth"
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
	"github.com/dmitrijs2005/mediaflow/internal/server/publish"
	"github.com/dmitrijs2005/mediaflow/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

// -------- fakes --------

type fakeTransfers struct {
	TransferAPI
	initIn    services.InitTransferInput
	partBody  []byte
	partErr   error
	complete  error
	resumable *services.TransferStatus
	aborted   string
}

func (f *fakeTransfers) Init(ctx context.Context, userID string, in services.InitTransferInput) (*services.InitTransferResult, error) {
	f.initIn = in
	return &services.InitTransferResult{SessionID: "s1", ChunkSize: 5 * common.MiB, TotalParts: 24, ExpiresAt: time.Unix(0, 0).UTC()}, nil
}

func (f *fakeTransfers) UploadPart(ctx context.Context, userID, id string, n int, body []byte) (*services.PartResult, error) {
	if f.partErr != nil {
		return nil, f.partErr
	}
	f.partBody = body
	return &services.PartResult{PartNumber: n, ETag: "etag-" + id, UploadedBytes: int64(len(body)), Progress: 50}, nil
}

func (f *fakeTransfers) Complete(ctx context.Context, userID, id string) (*services.CompleteResult, error) {
	if f.complete != nil {
		return nil, f.complete
	}
	return &services.CompleteResult{URL: "https://cdn/x.wav", Size: 10}, nil
}

func (f *fakeTransfers) FindResumable(ctx context.Context, userID, podcastID string) (*services.TransferStatus, error) {
	return f.resumable, nil
}

func (f *fakeTransfers) Abort(ctx context.Context, userID, id string) error {
	f.aborted = id
	return nil
}

type fakeSources struct {
	SourceAPI
	known []string
}

func (f *fakeSources) CheckDuplicates(ctx context.Context, userID, podcastID string, fps []string) ([]string, error) {
	return f.known, nil
}

func (f *fakeSources) Create(ctx context.Context, userID string, in services.CreateSourceInput) (*models.Source, error) {
	return &models.Source{ID: "src-1", PodcastID: in.PodcastID, Filename: in.Filename, Status: models.SourceUploaded, CreatedBy: userID}, nil
}

func (f *fakeSources) Process(ctx context.Context, userID, id string) (models.SourceStatus, error) {
	return models.SourceProcessing, nil
}

type fakePublisher struct {
	PublishAPI
	initErr  error
	in       publish.InitInput
	platform models.Platform
	user     string
}

func (f *fakePublisher) Init(ctx context.Context, userID string, p models.Platform, in publish.InitInput) (*models.PublishUpload, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	f.in, f.platform, f.user = in, p, userID
	return &models.PublishUpload{ID: "pu1", Platform: p, Status: models.PublishPending}, nil
}

func (f *fakePublisher) Status(ctx context.Context, userID string, p models.Platform, id string) (*models.PublishUpload, error) {
	return &models.PublishUpload{ID: id, Platform: p, Status: models.PublishProcessing, Phase: models.PhaseProcessing, UploadProgress: 100, ProcessingProgress: 40}, nil
}

func (f *fakePublisher) Cancel(ctx context.Context, userID string, p models.Platform, id string) error {
	return nil
}

type fakeDB struct{ err error }

func (f fakeDB) PingContext(ctx context.Context) error { return f.err }

// -------- helpers --------

type fixture struct {
	handler   http.Handler
	transfers *fakeTransfers
	sources   *fakeSources
	publisher *fakePublisher
	token     string
}

func newFixture(t *testing.T, db Pinger) *fixture {
	t.Helper()
	f := &fixture{transfers: &fakeTransfers{}, sources: &fakeSources{}, publisher: &fakePublisher{}}
	s := NewServer(":0", logging.NewNopLogger(), f.transfers, f.sources, f.publisher, db, secret, 16)
	f.handler = s.Handler()
	tok, err := auth.Sign("u1", secret, time.Hour)
	require.NoError(t, err)
	f.token = tok
	return f
}

func (f *fixture) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

// -------- tests --------

func TestHealth(t *testing.T) {
	f := newFixture(t, fakeDB{})
	f.token = ""
	rec := f.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	f = newFixture(t, fakeDB{err: errors.New("down")})
	rec = f.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuth(t *testing.T) {
	f := newFixture(t, fakeDB{})

	f.token = ""
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/uploads/s1/status", nil).Code)

	f.token = "garbage"
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/uploads/s1/status", nil).Code)

	expired, err := auth.Sign("u1", secret, -time.Minute)
	require.NoError(t, err)
	f.token = expired
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/uploads/s1/status", nil).Code)
}

func TestInitUpload(t *testing.T) {
	f := newFixture(t, fakeDB{})

	rec := f.do(http.MethodPost, "/api/v1/uploads/init", []byte(`{"podcastId":"p1","filename":"ep.wav","contentType":"audio/wav","totalBytes":125829120}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, "s1", m["sessionId"])
	assert.EqualValues(t, 24, m["totalParts"])
	assert.Equal(t, int64(125829120), f.transfers.initIn.TotalBytes)
	assert.Equal(t, "p1", f.transfers.initIn.PodcastID)

	rec = f.do(http.MethodPost, "/api/v1/uploads/init", []byte(`{bad`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadPart(t *testing.T) {
	f := newFixture(t, fakeDB{})

	rec := f.do(http.MethodPost, "/api/v1/uploads/s1/part/3", []byte("chunk"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("chunk"), f.transfers.partBody)
	m := decode(t, rec)
	assert.EqualValues(t, 3, m["partNumber"])
	assert.Equal(t, "etag-s1", m["etag"])
	assert.Equal(t, false, m["skipped"])

	rec = f.do(http.MethodPost, "/api/v1/uploads/s1/part/3", bytes.Repeat([]byte("x"), 17))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "body above the part limit")
}

func TestUploadPart_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("session s1: %w", common.ErrExpired), http.StatusGone},
		{common.ErrInvalidState, http.StatusBadRequest},
		{common.ErrorNotFound, http.StatusNotFound},
		{common.ErrAccessDenied, http.StatusForbidden},
		{errors.New("s3 exploded"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			f := newFixture(t, fakeDB{})
			f.transfers.partErr = tt.err

			rec := f.do(http.MethodPost, "/api/v1/uploads/s1/part/1", []byte("a"))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestCompleteUpload(t *testing.T) {
	f := newFixture(t, fakeDB{})

	rec := f.do(http.MethodPost, "/api/v1/uploads/s1/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://cdn/x.wav", decode(t, rec)["url"])

	f.transfers.complete = common.ErrIncomplete
	rec = f.do(http.MethodPost, "/api/v1/uploads/s1/complete", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "upload incomplete", decode(t, rec)["error"])
}

func TestResumableUpload(t *testing.T) {
	f := newFixture(t, fakeDB{})

	rec := f.do(http.MethodGet, "/api/v1/uploads/resume?podcastId=p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"hasResumable": false}, decode(t, rec))

	f.transfers.resumable = &services.TransferStatus{SessionID: "s9", Filename: "ep.wav", TotalBytes: 100, TotalParts: 4, CompletedParts: []int{1, 2}}
	rec = f.do(http.MethodGet, "/api/v1/uploads/resume?podcastId=p1", nil)
	m := decode(t, rec)
	assert.Equal(t, true, m["hasResumable"])
	assert.Equal(t, "s9", m["sessionId"])
	assert.Equal(t, []any{1.0, 2.0}, m["completedParts"])

	rec = f.do(http.MethodGet, "/api/v1/uploads/resume", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAbortUpload(t *testing.T) {
	f := newFixture(t, fakeDB{})

	rec := f.do(http.MethodDelete, "/api/v1/uploads/s1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "s1", f.transfers.aborted)
}

func TestSources(t *testing.T) {
	f := newFixture(t, fakeDB{})
	f.sources.known = []string{"fp2"}

	rec := f.do(http.MethodPost, "/api/v1/sources/duplicates", []byte(`{"podcastId":"p1","fingerprints":["fp1","fp2"]}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"fp2"}, decode(t, rec)["known"])

	rec = f.do(http.MethodPost, "/api/v1/sources", []byte(`{"podcastId":"p1","filename":"ep.wav","url":"https://cdn/ep.wav","sizeBytes":10}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "src-1", decode(t, rec)["sourceId"])

	rec = f.do(http.MethodPost, "/api/v1/sources/src-1/process", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "processing", decode(t, rec)["status"])
}

func TestInitPublish(t *testing.T) {
	f := newFixture(t, fakeDB{})

	rec := f.do(http.MethodPost, "/api/v1/youtube/upload/init", []byte(`{"postId":"post-1","title":"Ep 1","privacy":"unlisted"}`))
	require.Equal(t, http.StatusAccepted, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, "pu1", m["uploadId"])
	assert.Equal(t, "pending", m["status"])
	assert.Equal(t, models.PlatformYouTube, f.publisher.platform)
	assert.Equal(t, "u1", f.publisher.user)
	assert.Equal(t, "Ep 1", f.publisher.in.Metadata.Title)

	f.publisher.initErr = common.ErrNotConnected
	rec = f.do(http.MethodPost, "/api/v1/twitter/upload/init", []byte(`{"postId":"post-1"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPublishStatusAndCancel(t *testing.T) {
	f := newFixture(t, fakeDB{})

	rec := f.do(http.MethodGet, "/api/v1/instagram/upload/pu1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, "processing", m["status"])
	assert.EqualValues(t, 40, m["processingProgress"])

	rec = f.do(http.MethodDelete, "/api/v1/instagram/upload/pu1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(common.ErrSizeLimitExceeded))
	assert.Equal(t, http.StatusBadRequest, statusFor(common.ErrSizeUnknown))
	assert.Equal(t, http.StatusConflict, statusFor(common.ErrAuthExpired))
	assert.Equal(t, http.StatusUnauthorized, statusFor(common.ErrInvalidToken))
	assert.Equal(t, http.StatusInternalServerError, statusFor(common.ErrPlatformProcessingFailed))
}
