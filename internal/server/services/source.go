package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"github.com/dmitrijs2005/mediaflow/internal/netx"
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const processTimeout = 5 * time.Minute

// probeSize is replaced in tests.
var probeSize = netx.ProbeSize

// CreateSourceInput references a completed transfer.
type CreateSourceInput struct {
	PodcastID   string
	EpisodeID   *string
	Filename    string
	URL         string
	SizeBytes   int64
	Fingerprint string
}

// SourceService manages the domain records created after a transfer
// completes: duplicate detection, creation and post-processing.
type SourceService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	client      *http.Client
	logger      logging.Logger
	wg          sync.WaitGroup
}

// NewSourceService constructs a SourceService. client is used to verify the
// stored object during processing.
func NewSourceService(db *sql.DB, m repomanager.RepositoryManager, client *http.Client, l logging.Logger) *SourceService {
	return &SourceService{
		db:          db,
		repomanager: m,
		client:      client,
		logger:      l.With("module", "sources"),
	}
}

func (s *SourceService) authorize(ctx context.Context, userID, podcastID string) error {
	ok, err := s.repomanager.Media(s.db).CanAccessPodcast(ctx, podcastID, userID)
	if err != nil {
		return fmt.Errorf("error checking podcast access: %w", err)
	}
	if !ok {
		return common.ErrAccessDenied
	}
	return nil
}

// CheckDuplicates returns the fingerprints already recorded for podcastID.
func (s *SourceService) CheckDuplicates(ctx context.Context, userID, podcastID string, fingerprints []string) ([]string, error) {
	if podcastID == "" {
		return nil, common.ErrInvalidArgument
	}
	if err := s.authorize(ctx, userID, podcastID); err != nil {
		return nil, err
	}
	if len(fingerprints) == 0 {
		return []string{}, nil
	}

	known, err := s.repomanager.Media(s.db).KnownFingerprints(ctx, podcastID, fingerprints)
	if err != nil {
		return nil, fmt.Errorf("error checking fingerprints: %w", err)
	}
	return known, nil
}

// Create records an uploaded source in uploaded status.
func (s *SourceService) Create(ctx context.Context, userID string, in CreateSourceInput) (*models.Source, error) {
	if in.PodcastID == "" || in.URL == "" || in.Filename == "" {
		return nil, common.ErrInvalidArgument
	}
	if err := s.authorize(ctx, userID, in.PodcastID); err != nil {
		return nil, err
	}

	now := time.Now()
	src := &models.Source{
		ID:          uuid.NewString(),
		PodcastID:   in.PodcastID,
		EpisodeID:   in.EpisodeID,
		CreatedBy:   userID,
		Filename:    in.Filename,
		URL:         in.URL,
		SizeBytes:   in.SizeBytes,
		Fingerprint: in.Fingerprint,
		Status:      models.SourceUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repomanager.Media(s.db).CreateSource(ctx, src); err != nil {
		return nil, fmt.Errorf("error creating source: %w", err)
	}

	s.logger.Info(ctx, "source created", "source_id", src.ID, "podcast_id", src.PodcastID)
	return src, nil
}

// Get returns a source the user may see.
func (s *SourceService) Get(ctx context.Context, userID, id string) (*models.Source, error) {
	src, err := s.repomanager.Media(s.db).GetSource(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error loading source: %w", err)
	}
	if err := s.authorize(ctx, userID, src.PodcastID); err != nil {
		return nil, err
	}
	return src, nil
}

// Process moves the source to processing and verifies the stored object in
// the background. It returns without waiting; the outcome is written to the
// record as ready or failed.
func (s *SourceService) Process(ctx context.Context, userID, id string) (models.SourceStatus, error) {
	src, err := s.Get(ctx, userID, id)
	if err != nil {
		return "", err
	}

	switch src.Status {
	case models.SourceProcessing, models.SourceReady:
		return src.Status, nil
	}

	if err := s.repomanager.Media(s.db).UpdateSourceStatus(ctx, id, models.SourceProcessing, ""); err != nil {
		return "", fmt.Errorf("error updating source status: %w", err)
	}

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), processTimeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.process(bg, src)
	}()

	return models.SourceProcessing, nil
}

func (s *SourceService) process(ctx context.Context, src *models.Source) {
	repo := s.repomanager.Media(s.db)

	size, err := probeSize(ctx, s.client, src.URL, 0)
	if err == nil && src.SizeBytes > 0 && size != src.SizeBytes {
		err = fmt.Errorf("stored object has %d bytes, expected %d", size, src.SizeBytes)
	}

	if err != nil {
		s.logger.Error(ctx, "source processing failed", "source_id", src.ID, "error", err)
		if uerr := repo.UpdateSourceStatus(ctx, src.ID, models.SourceFailed, err.Error()); uerr != nil {
			s.logger.Error(ctx, "failed to record source failure", "source_id", src.ID, "error", uerr)
		}
		return
	}

	if err := repo.UpdateSourceStatus(ctx, src.ID, models.SourceReady, ""); err != nil {
		s.logger.Error(ctx, "failed to mark source ready", "source_id", src.ID, "error", err)
		return
	}
	s.logger.Info(ctx, "source ready", "source_id", src.ID, "size", size)
}

// Wait blocks until background processing has finished.
func (s *SourceService) Wait() {
	s.wg.Wait()
}
