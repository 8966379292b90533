package publish

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// InitInput selects what to publish and how to describe it.
type InitInput struct {
	PostID   string
	ClipID   string
	Format   string
	Metadata models.PublishMetadata
}

// ErrShuttingDown is the cancellation cause of runs interrupted by Shutdown.
// Their records keep status and phase so ResumeInFlight picks them up.
var ErrShuttingDown = errors.New("server shutting down")

// Service is the request-facing side of publishing. Runs it starts are
// detached from the request, bounded by the publish timeout and stopped by
// Shutdown.
type Service struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	runner      *Runner
	auth        Authorizer
	timeout     time.Duration
	logger      logging.Logger
	wg          sync.WaitGroup
	baseCtx     context.Context
	stop        context.CancelCauseFunc
}

func NewService(ctx context.Context, db *sql.DB, m repomanager.RepositoryManager, runner *Runner, auth Authorizer, timeout time.Duration, l logging.Logger) *Service {
	if timeout <= 0 {
		timeout = time.Hour
	}
	base, stop := context.WithCancelCause(context.WithoutCancel(ctx))
	return &Service{
		db:          db,
		repomanager: m,
		runner:      runner,
		auth:        auth,
		timeout:     timeout,
		logger:      l.With("module", "publish"),
		baseCtx:     base,
		stop:        stop,
	}
}

// spawn starts a background run for id.
func (s *Service) spawn(id string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.baseCtx, s.timeout)
		defer cancel()
		s.runner.Run(ctx, id)
	}()
}

// Init creates a pending attempt for the clip of a post and starts driving
// it. It returns as soon as the record exists.
func (s *Service) Init(ctx context.Context, userID string, platform models.Platform, in InitInput) (*models.PublishUpload, error) {
	if !platform.Valid() {
		return nil, fmt.Errorf("%w: platform %q", common.ErrorNotFound, platform)
	}
	if in.PostID == "" && in.ClipID == "" {
		return nil, fmt.Errorf("%w: postId or clipId required", common.ErrInvalidArgument)
	}

	mediaRepo := s.repomanager.Media(s.db)

	var (
		clip *models.Clip
		err  error
	)
	if in.ClipID != "" {
		clip, err = mediaRepo.GetClip(ctx, in.ClipID)
	} else {
		clip, err = mediaRepo.FindClipByPost(ctx, in.PostID)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading clip: %w", err)
	}

	ok, err := mediaRepo.CanAccessPodcast(ctx, clip.PodcastID, userID)
	if err != nil {
		return nil, fmt.Errorf("error checking podcast access: %w", err)
	}
	if !ok {
		return nil, common.ErrAccessDenied
	}

	if _, err := s.auth.Token(ctx, userID, platform, false); err != nil {
		return nil, err
	}

	exports, err := mediaRepo.ListExports(ctx, clip.ID)
	if err != nil {
		return nil, fmt.Errorf("error listing exports: %w", err)
	}
	export := SelectExport(exports, in.Format)
	if export == nil {
		return nil, fmt.Errorf("no rendered media for clip %s: %w", clip.ID, common.ErrorNotFound)
	}

	now := time.Now()
	u := &models.PublishUpload{
		ID:          uuid.NewString(),
		Platform:    platform,
		UserID:      userID,
		PostID:      in.PostID,
		ClipID:      clip.ID,
		Format:      in.Format,
		Metadata:    in.Metadata,
		SourceURL:   export.URL,
		SourceBytes: export.SizeBytes,
		Status:      models.PublishPending,
		Phase:       models.PhaseAcquire,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if u.PostID == "" {
		u.PostID = clip.PostID
	}

	if err := s.repomanager.Publishes(s.db).Create(ctx, u); err != nil {
		return nil, fmt.Errorf("error creating publish attempt: %w", err)
	}

	s.logger.Info(ctx, "publish attempt created", "upload_id", u.ID, "platform", platform, "clip_id", clip.ID)
	s.spawn(u.ID)
	return u, nil
}

func (s *Service) load(ctx context.Context, userID string, platform models.Platform, id string) (*models.PublishUpload, error) {
	u, err := s.repomanager.Publishes(s.db).Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error loading publish attempt: %w", err)
	}
	if u.Platform != platform {
		return nil, common.ErrorNotFound
	}
	if u.UserID != userID {
		return nil, common.ErrAccessDenied
	}
	return u, nil
}

// Status returns the attempt as last persisted.
func (s *Service) Status(ctx context.Context, userID string, platform models.Platform, id string) (*models.PublishUpload, error) {
	return s.load(ctx, userID, platform, id)
}

// Retry moves a failed attempt back to pending and starts a new run.
func (s *Service) Retry(ctx context.Context, userID string, platform models.Platform, id string) (*models.PublishUpload, error) {
	u, err := s.load(ctx, userID, platform, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(u.Status, models.PublishPending) {
		return nil, fmt.Errorf("%w: cannot retry a %s attempt", common.ErrInvalidState, u.Status)
	}

	ResetForRetry(u)
	u.UpdatedAt = time.Now()
	if err := s.repomanager.Publishes(s.db).Update(ctx, u); err != nil {
		return nil, fmt.Errorf("error saving retried attempt: %w", err)
	}

	s.logger.Info(ctx, "publish attempt retried", "upload_id", id, "phase", u.Phase, "retry_count", u.RetryCount)
	s.spawn(u.ID)
	return u, nil
}

// Cancel fails an unfinished attempt with CancelMessage. A platform call in
// flight is not interrupted; the run notices at its next step and stops.
func (s *Service) Cancel(ctx context.Context, userID string, platform models.Platform, id string) error {
	u, err := s.load(ctx, userID, platform, id)
	if err != nil {
		return err
	}

	switch u.Status {
	case models.PublishFailed:
		return nil
	case models.PublishCompleted:
		return fmt.Errorf("%w: attempt already completed", common.ErrInvalidState)
	}

	u.Status = models.PublishFailed
	u.ErrorMessage = CancelMessage
	u.UpdatedAt = time.Now()
	if err := s.repomanager.Publishes(s.db).Update(ctx, u); err != nil {
		return fmt.Errorf("error cancelling publish attempt: %w", err)
	}

	s.logger.Info(ctx, "publish attempt cancelled", "upload_id", id)
	return nil
}

// ResumeInFlight restarts runs for attempts a previous process left
// unfinished.
func (s *Service) ResumeInFlight(ctx context.Context) (int, error) {
	active, err := s.repomanager.Publishes(s.db).ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("error listing active publish attempts: %w", err)
	}
	for _, u := range active {
		s.logger.Info(ctx, "resuming publish attempt", "upload_id", u.ID, "platform", u.Platform, "phase", u.Phase)
		s.spawn(u.ID)
	}
	return len(active), nil
}

// Wait blocks until every background run has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown interrupts every run and waits for them to return. Runs started
// afterwards stop immediately.
func (s *Service) Shutdown() {
	s.stop(ErrShuttingDown)
	s.wg.Wait()
}
