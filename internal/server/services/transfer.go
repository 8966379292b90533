// Package services contains server-side business logic. This file implements
// TransferService, the coordinator of chunked uploads: it opens multipart
// uploads on the blob store, accepts parts idempotently, enforces session
// state and expiry, and finalizes the object.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/chunking"
	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/dmitrijs2005/mediaflow/internal/dbx"
	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"github.com/dmitrijs2005/mediaflow/internal/server/blobstore"
	"github.com/dmitrijs2005/mediaflow/internal/server/config"
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// InitTransferInput describes the file a client is about to upload.
type InitTransferInput struct {
	PodcastID   string
	EpisodeID   *string
	Filename    string
	ContentType string
	TotalBytes  int64
}

// InitTransferResult is returned to the client after a session is opened.
type InitTransferResult struct {
	SessionID  string
	ChunkSize  int64
	TotalParts int
	ExpiresAt  time.Time
}

// PartResult describes the outcome of one UploadPart call. Skipped is set
// when the part had already been accepted and the stored tag is returned.
type PartResult struct {
	PartNumber    int
	ETag          string
	UploadedBytes int64
	Progress      float64
	Skipped       bool
}

// CompleteResult carries the final object location.
type CompleteResult struct {
	URL  string
	Size int64
}

// TransferStatus is the read-only projection of a session.
type TransferStatus struct {
	SessionID      string
	Status         models.TransferStatus
	Filename       string
	TotalBytes     int64
	ChunkSize      int64
	TotalParts     int
	CompletedParts []int
	UploadedBytes  int64
	Progress       float64
	ExpiresAt      time.Time
	URL            string
	ErrorMessage   string
}

// TransferService coordinates chunked transfers. Sessions are read, modified
// and written back without row versioning, so at most one request per
// session id is expected in flight.
type TransferService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       blobstore.Store
	logger      logging.Logger
	maxBytes    int64
	ttl         time.Duration
	now         func() time.Time
}

// NewTransferService constructs a TransferService using repositories, the
// blob store, and server config.
func NewTransferService(db *sql.DB, m repomanager.RepositoryManager, store blobstore.Store, cfg *config.Config, l logging.Logger) *TransferService {
	return &TransferService{
		db:          db,
		repomanager: m,
		store:       store,
		logger:      l.With("module", "transfers"),
		maxBytes:    cfg.MaxUploadBytes,
		ttl:         cfg.SessionTTL,
		now:         time.Now,
	}
}

// StorageKey builds the object key of a session.
func StorageKey(podcastID, sessionID, filename string) string {
	return fmt.Sprintf("podcasts/%s/uploads/%s/%s", podcastID, sessionID, SanitizeFilename(filename))
}

// SanitizeFilename keeps the base name and replaces every character outside
// [A-Za-z0-9._-] with an underscore.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}

// Init opens a multipart upload and persists a new session in uploading
// status with a fixed lifetime.
func (s *TransferService) Init(ctx context.Context, userID string, in InitTransferInput) (*InitTransferResult, error) {
	if in.Filename == "" || in.TotalBytes <= 0 || in.PodcastID == "" {
		return nil, common.ErrInvalidArgument
	}
	if in.TotalBytes > s.maxBytes {
		return nil, common.ErrSizeLimitExceeded
	}

	ok, err := s.repomanager.Media(s.db).CanAccessPodcast(ctx, in.PodcastID, userID)
	if err != nil {
		return nil, fmt.Errorf("error checking podcast access: %w", err)
	}
	if !ok {
		return nil, common.ErrAccessDenied
	}

	plan := chunking.NewPlan(in.TotalBytes)
	id := uuid.NewString()
	key := StorageKey(in.PodcastID, id, in.Filename)

	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploadID, err := s.store.CreateMultipartUpload(ctx, key, contentType)
	if err != nil {
		return nil, fmt.Errorf("error creating multipart upload: %w", err)
	}

	now := s.now()
	session := &models.TransferSession{
		ID:              id,
		PodcastID:       in.PodcastID,
		EpisodeID:       in.EpisodeID,
		CreatedBy:       userID,
		StorageUploadID: uploadID,
		StorageKey:      key,
		DestinationPath: path.Dir(key),
		Filename:        in.Filename,
		ContentType:     contentType,
		TotalBytes:      in.TotalBytes,
		ChunkSize:       plan.ChunkSize,
		TotalParts:      plan.TotalParts,
		CompletedParts:  []models.CompletedPart{},
		Status:          models.TransferUploading,
		ExpiresAt:       now.Add(s.ttl),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repomanager.Transfers(s.db).Create(ctx, session); err != nil {
		if abortErr := s.store.AbortMultipartUpload(ctx, key, uploadID); abortErr != nil {
			s.logger.Warn(ctx, "abort after failed create", "session_id", id, "error", abortErr)
		}
		return nil, fmt.Errorf("error creating transfer session: %w", err)
	}

	s.logger.Info(ctx, "transfer session created",
		"session_id", id, "podcast_id", in.PodcastID, "total_bytes", in.TotalBytes,
		"chunk_size", plan.ChunkSize, "total_parts", plan.TotalParts)

	return &InitTransferResult{
		SessionID:  id,
		ChunkSize:  plan.ChunkSize,
		TotalParts: plan.TotalParts,
		ExpiresAt:  session.ExpiresAt,
	}, nil
}

// load fetches a session and checks ownership.
func (s *TransferService) load(ctx context.Context, userID, id string) (*models.TransferSession, error) {
	session, err := s.repomanager.Transfers(s.db).Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error loading transfer session: %w", err)
	}
	if session.CreatedBy != userID {
		return nil, common.ErrAccessDenied
	}
	return session, nil
}

// expire flips an overdue session to expired and persists it.
func (s *TransferService) expire(ctx context.Context, session *models.TransferSession) error {
	session.Status = models.TransferExpired
	session.UpdatedAt = s.now()
	if err := s.repomanager.Transfers(s.db).Update(ctx, session); err != nil {
		return fmt.Errorf("error expiring transfer session: %w", err)
	}
	s.logger.Info(ctx, "transfer session expired", "session_id", session.ID)
	return common.ErrExpired
}

// checkWritable rejects sessions that may not accept parts or completion.
func (s *TransferService) checkWritable(ctx context.Context, session *models.TransferSession) error {
	if session.Status == models.TransferExpired {
		return common.ErrExpired
	}
	if session.Status != models.TransferUploading {
		return common.ErrInvalidState
	}
	if session.IsExpired(s.now()) {
		return s.expire(ctx, session)
	}
	return nil
}

// UploadPart forwards one part to the blob store and records it. A part
// number that is already recorded is answered with its stored tag and
// leaves the session untouched.
func (s *TransferService) UploadPart(ctx context.Context, userID, id string, partNumber int, body []byte) (*PartResult, error) {
	session, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkWritable(ctx, session); err != nil {
		return nil, err
	}

	plan := chunking.Plan{TotalBytes: session.TotalBytes, ChunkSize: session.ChunkSize, TotalParts: session.TotalParts}
	if partNumber < 1 || partNumber > session.TotalParts {
		return nil, fmt.Errorf("%w: part %d outside 1..%d", common.ErrInvalidArgument, partNumber, session.TotalParts)
	}
	// every part but the last is exactly ChunkSize; the last holds the rest
	if want := plan.PartSize(partNumber); int64(len(body)) != want {
		return nil, fmt.Errorf("%w: part %d has %d bytes, want %d", common.ErrInvalidArgument, partNumber, len(body), want)
	}

	if p, ok := session.FindPart(partNumber); ok {
		s.logger.Debug(ctx, "part replayed", "session_id", id, "part", partNumber)
		return &PartResult{
			PartNumber:    partNumber,
			ETag:          p.ETag,
			UploadedBytes: session.UploadedBytes,
			Progress:      session.Progress(),
			Skipped:       true,
		}, nil
	}

	etag, err := s.store.UploadPart(ctx, session.StorageKey, session.StorageUploadID, partNumber, body)
	if err != nil {
		return nil, fmt.Errorf("error uploading part %d: %w", partNumber, err)
	}

	session.CompletedParts = append(session.CompletedParts, models.CompletedPart{
		PartNumber: partNumber,
		ETag:       etag,
		Size:       int64(len(body)),
	})
	session.UploadedBytes += int64(len(body))
	session.UpdatedAt = s.now()

	if err := s.repomanager.Transfers(s.db).Update(ctx, session); err != nil {
		return nil, fmt.Errorf("error saving part %d: %w", partNumber, err)
	}

	s.logger.Debug(ctx, "part stored", "session_id", id, "part", partNumber, "uploaded_bytes", session.UploadedBytes)

	return &PartResult{
		PartNumber:    partNumber,
		ETag:          etag,
		UploadedBytes: session.UploadedBytes,
		Progress:      session.Progress(),
	}, nil
}

// Complete assembles the object once every part is recorded and propagates
// the URL to the episode. Completing an already completed session returns
// the stored result.
func (s *TransferService) Complete(ctx context.Context, userID, id string) (*CompleteResult, error) {
	session, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if session.Status == models.TransferCompleted {
		return &CompleteResult{URL: session.URL, Size: session.TotalBytes}, nil
	}
	// a session left in completing by a crash is finalized again; the
	// blob store answers a repeated complete for the same parts
	if session.Status == models.TransferCompleting {
		s.logger.Warn(ctx, "retrying interrupted completion", "session_id", id)
	} else if err := s.checkWritable(ctx, session); err != nil {
		return nil, err
	}
	if len(session.CompletedParts) < session.TotalParts {
		return nil, fmt.Errorf("%w: %d of %d parts", common.ErrIncomplete, len(session.CompletedParts), session.TotalParts)
	}

	repo := s.repomanager.Transfers(s.db)

	session.Status = models.TransferCompleting
	session.UpdatedAt = s.now()
	if err := repo.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("error marking session completing: %w", err)
	}

	url, err := s.store.CompleteMultipartUpload(ctx, session.StorageKey, session.StorageUploadID, session.SortedParts())
	if err != nil {
		return nil, s.fail(ctx, session, fmt.Errorf("error completing multipart upload: %w", err))
	}

	session.Status = models.TransferCompleted
	session.URL = url
	session.UpdatedAt = s.now()

	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Transfers(tx).Update(ctx, session); err != nil {
			return err
		}
		if session.EpisodeID != nil && *session.EpisodeID != "" {
			return s.repomanager.Media(tx).SetEpisodeMediaURL(ctx, *session.EpisodeID, url)
		}
		return nil
	}); err != nil {
		session.URL = ""
		return nil, s.fail(ctx, session, fmt.Errorf("error finalizing transfer session: %w", err))
	}

	s.logger.Info(ctx, "transfer completed", "session_id", id, "url", url, "size", session.TotalBytes)

	return &CompleteResult{URL: url, Size: session.TotalBytes}, nil
}

// fail records cause on the session and returns it.
func (s *TransferService) fail(ctx context.Context, session *models.TransferSession, cause error) error {
	session.Status = models.TransferFailed
	session.ErrorMessage = cause.Error()
	session.UpdatedAt = s.now()
	if err := s.repomanager.Transfers(s.db).Update(ctx, session); err != nil {
		s.logger.Error(ctx, "failed to record transfer failure", "session_id", session.ID, "error", err)
	}
	s.logger.Error(ctx, "transfer failed", "session_id", session.ID, "error", cause)
	return cause
}

// Status returns the progress of a session.
func (s *TransferService) Status(ctx context.Context, userID, id string) (*TransferStatus, error) {
	session, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return projectStatus(session), nil
}

func projectStatus(session *models.TransferSession) *TransferStatus {
	parts := session.SortedParts()
	numbers := make([]int, 0, len(parts))
	for _, p := range parts {
		numbers = append(numbers, p.PartNumber)
	}
	return &TransferStatus{
		SessionID:      session.ID,
		Status:         session.Status,
		Filename:       session.Filename,
		TotalBytes:     session.TotalBytes,
		ChunkSize:      session.ChunkSize,
		TotalParts:     session.TotalParts,
		CompletedParts: numbers,
		UploadedBytes:  session.UploadedBytes,
		Progress:       session.Progress(),
		ExpiresAt:      session.ExpiresAt,
		URL:            session.URL,
		ErrorMessage:   session.ErrorMessage,
	}
}

// FindResumable returns the newest uploading session of userID for
// podcastID, or nil when there is none. Overdue sessions are expired on the
// way and never returned.
func (s *TransferService) FindResumable(ctx context.Context, userID, podcastID string) (*TransferStatus, error) {
	session, err := s.repomanager.Transfers(s.db).FindLatestUploading(ctx, podcastID, userID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error searching resumable session: %w", err)
	}

	if session.IsExpired(s.now()) {
		if err := s.expire(ctx, session); !errors.Is(err, common.ErrExpired) {
			return nil, err
		}
		return nil, nil
	}

	return projectStatus(session), nil
}

// Abort discards an unfinished session and its multipart upload.
func (s *TransferService) Abort(ctx context.Context, userID, id string) error {
	session, err := s.load(ctx, userID, id)
	if err != nil {
		return err
	}

	switch session.Status {
	case models.TransferCompleted, models.TransferCompleting:
		return common.ErrInvalidState
	case models.TransferFailed:
		return nil
	}

	if err := s.store.AbortMultipartUpload(ctx, session.StorageKey, session.StorageUploadID); err != nil {
		return fmt.Errorf("error aborting multipart upload: %w", err)
	}

	session.Status = models.TransferFailed
	session.ErrorMessage = "aborted"
	session.UpdatedAt = s.now()
	if err := s.repomanager.Transfers(s.db).Update(ctx, session); err != nil {
		return fmt.Errorf("error saving aborted session: %w", err)
	}

	s.logger.Info(ctx, "transfer aborted", "session_id", id)
	return nil
}
