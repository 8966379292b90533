package publish

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"github.com/dmitrijs2005/mediaflow/internal/netx"
	"github.com/dmitrijs2005/mediaflow/internal/retryx"
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/repomanager"
)

// errCancelled stops a run whose attempt was cancelled while it worked.
var errCancelled = errors.New("attempt cancelled")

// Authorizer hands out platform credentials and replays a call once after
// the platform rejected the token.
type Authorizer interface {
	Token(ctx context.Context, userID string, platform models.Platform, force bool) (*models.OAuthToken, error)
	Do(ctx context.Context, userID string, platform models.Platform, fn func(ctx context.Context, t *models.OAuthToken) error) error
}

// Runner drives one attempt from wherever its record says it stopped until
// it completes or fails. Every observed transition is persisted.
type Runner struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	drivers      map[models.Platform]Driver
	auth         Authorizer
	client       *http.Client
	pollInterval time.Duration
	logger       logging.Logger
	sleep        retryx.Sleeper
	now          func() time.Time
}

func NewRunner(db *sql.DB, m repomanager.RepositoryManager, drivers []Driver, auth Authorizer, client *http.Client, pollInterval time.Duration, l logging.Logger) *Runner {
	byPlatform := make(map[models.Platform]Driver, len(drivers))
	for _, d := range drivers {
		byPlatform[d.Platform()] = d
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Runner{
		db:           db,
		repomanager:  m,
		drivers:      byPlatform,
		auth:         auth,
		client:       client,
		pollInterval: pollInterval,
		logger:       l.With("module", "publish"),
		sleep:        retryx.SleepContext,
		now:          time.Now,
	}
}

// Run drives the attempt id. Failures are written to the record, not
// returned.
func (r *Runner) Run(ctx context.Context, id string) {
	u, err := r.repomanager.Publishes(r.db).Get(ctx, id)
	if err != nil {
		r.logger.Error(ctx, "failed to load publish attempt", "upload_id", id, "error", err)
		return
	}
	if u.IsTerminal() {
		return
	}

	l := r.logger.With("upload_id", id, "platform", u.Platform)
	l.Info(ctx, "publish run started", "status", u.Status, "phase", u.Phase)

	d, ok := r.drivers[u.Platform]
	if !ok {
		r.fail(ctx, u, fmt.Errorf("no driver for platform %q", u.Platform))
		return
	}

	err = r.drive(ctx, d, u, l)
	switch {
	case err == nil:
		l.Info(ctx, "publish completed", "published_id", u.PublishedID, "url", u.PlatformURL)
	case errors.Is(err, errCancelled):
		l.Info(ctx, "publish run stopped, attempt was cancelled")
	case errors.Is(context.Cause(ctx), ErrShuttingDown):
		l.Info(ctx, "publish run interrupted by shutdown, will resume", "phase", u.Phase, "error", err)
	default:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("publish timed out: %w", err)
		}
		l.Error(ctx, "publish failed", "phase", u.Phase, "error", err)
		r.fail(ctx, u, err)
	}
}

func (r *Runner) drive(ctx context.Context, d Driver, u *models.PublishUpload, l logging.Logger) error {
	if err := r.resolveSource(ctx, u); err != nil {
		return err
	}

	// the platform's suggested wait before the first status check
	var firstPoll time.Duration

	for {
		if err := r.checkCancelled(ctx, u); err != nil {
			return err
		}

		switch u.Phase {
		case models.PhaseAcquire:
			if err := r.enter(ctx, u, models.PublishUploading); err != nil {
				return err
			}
			if u.UploadTarget == "" {
				if err := r.call(ctx, u, d.AcquireTarget); err != nil {
					return fmt.Errorf("acquire target: %w", err)
				}
			}
			u.Phase = models.PhaseTransfer
			if err := r.save(ctx, u); err != nil {
				return err
			}

		case models.PhaseTransfer:
			if err := r.enter(ctx, u, models.PublishUploading); err != nil {
				return err
			}
			err := r.call(ctx, u, func(ctx context.Context, job *Job) error {
				err := d.Transfer(ctx, job)
				firstPoll = job.PollAfter
				return err
			})
			if err != nil {
				return fmt.Errorf("transfer: %w", err)
			}
			u.UploadProgress = 100
			u.Phase = models.PhaseProcessing
			if err := r.enter(ctx, u, models.PublishProcessing); err != nil {
				return err
			}

		case models.PhaseProcessing:
			if err := r.enter(ctx, u, models.PublishProcessing); err != nil {
				return err
			}
			if err := r.poll(ctx, d, u, firstPoll, l); err != nil {
				return fmt.Errorf("processing: %w", err)
			}
			u.ProcessingProgress = 100
			if d.HasPosting() {
				u.Phase = models.PhasePosting
				if err := r.enter(ctx, u, models.PublishPosting); err != nil {
					return err
				}
			} else {
				u.Phase = models.PhaseDone
				if err := r.save(ctx, u); err != nil {
					return err
				}
			}

		case models.PhasePosting:
			if err := r.enter(ctx, u, models.PublishPosting); err != nil {
				return err
			}
			if err := r.call(ctx, u, d.FinalizePost); err != nil {
				return fmt.Errorf("post: %w", err)
			}
			u.Phase = models.PhaseDone
			if err := r.save(ctx, u); err != nil {
				return err
			}

		case models.PhaseDone:
			now := r.now()
			u.CompletedAt = &now
			return r.enter(ctx, u, models.PublishCompleted)

		default:
			return fmt.Errorf("unknown phase %q", u.Phase)
		}
	}
}

// resolveSource fills the source URL from the clip exports when missing and
// determines the byte length the transfer phase needs.
func (r *Runner) resolveSource(ctx context.Context, u *models.PublishUpload) error {
	changed := false

	if u.SourceURL == "" {
		exports, err := r.repomanager.Media(r.db).ListExports(ctx, u.ClipID)
		if err != nil {
			return fmt.Errorf("error listing exports: %w", err)
		}
		e := SelectExport(exports, u.Format)
		if e == nil {
			return fmt.Errorf("no rendered media for clip %s: %w", u.ClipID, common.ErrorNotFound)
		}
		u.SourceURL = e.URL
		u.SourceBytes = e.SizeBytes
		changed = true
	}

	if u.Phase == models.PhaseAcquire || u.Phase == models.PhaseTransfer || u.SourceBytes <= 0 {
		size, err := netx.ProbeSize(ctx, r.client, u.SourceURL, u.SourceBytes)
		if err != nil {
			return err
		}
		if size != u.SourceBytes {
			u.SourceBytes = size
			changed = true
		}
	}

	if changed {
		return r.save(ctx, u)
	}
	return nil
}

func (r *Runner) poll(ctx context.Context, d Driver, u *models.PublishUpload, wait time.Duration, l logging.Logger) error {
	if wait > 0 {
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
		if err := r.checkCancelled(ctx, u); err != nil {
			return err
		}
	}

	for {
		var p Poll
		err := r.call(ctx, u, func(ctx context.Context, job *Job) error {
			var perr error
			p, perr = d.PollProcessing(ctx, job)
			return perr
		})

		if err != nil {
			if permanent(err) {
				return err
			}
			l.Warn(ctx, "processing poll failed, will retry", "error", err)
		} else {
			if p.Progress > u.ProcessingProgress && p.Progress <= 100 {
				u.ProcessingProgress = p.Progress
				if err := r.save(ctx, u); err != nil {
					return err
				}
			}
			if p.Done {
				return nil
			}
			l.Debug(ctx, "still processing", "progress", p.Progress)
		}

		interval := r.pollInterval
		if p.After > 0 {
			interval = p.After
		}
		if err := r.sleep(ctx, interval); err != nil {
			return err
		}
		if err := r.checkCancelled(ctx, u); err != nil {
			return err
		}
	}
}

func permanent(err error) bool {
	switch {
	case errors.Is(err, common.ErrPlatformProcessingFailed),
		errors.Is(err, common.ErrNotConnected),
		errors.Is(err, common.ErrAuthExpired),
		errors.Is(err, errCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return !netx.IsTransient(err)
}

// call runs one driver step with fresh credentials. The step may refresh
// them again between its own platform calls through Job.AccessToken.
func (r *Runner) call(ctx context.Context, u *models.PublishUpload, step func(ctx context.Context, job *Job) error) error {
	return r.auth.Do(ctx, u.UserID, u.Platform, func(ctx context.Context, t *models.OAuthToken) error {
		return step(ctx, &Job{
			Upload: u,
			Token:  t,
			Save:   func(ctx context.Context) error { return r.save(ctx, u) },
			Refresh: func(ctx context.Context) (*models.OAuthToken, error) {
				return r.auth.Token(ctx, u.UserID, u.Platform, false)
			},
		})
	})
}

// enter moves u to status and persists it.
func (r *Runner) enter(ctx context.Context, u *models.PublishUpload, status models.PublishStatus) error {
	if u.Status == status {
		return r.save(ctx, u)
	}
	if !CanTransition(u.Status, status) {
		return fmt.Errorf("%w: %s → %s", common.ErrInvalidState, u.Status, status)
	}
	u.Status = status
	return r.save(ctx, u)
}

// checkCancelled re-reads the record and reports errCancelled when someone
// failed it behind the run's back.
func (r *Runner) checkCancelled(ctx context.Context, u *models.PublishUpload) error {
	fresh, err := r.repomanager.Publishes(r.db).Get(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("error reloading publish attempt: %w", err)
	}
	if fresh.Status == models.PublishFailed && u.Status != models.PublishFailed {
		return errCancelled
	}
	return nil
}

func (r *Runner) save(ctx context.Context, u *models.PublishUpload) error {
	if err := r.checkCancelled(ctx, u); err != nil {
		return err
	}
	u.UpdatedAt = r.now()
	if err := r.repomanager.Publishes(r.db).Update(ctx, u); err != nil {
		return fmt.Errorf("error saving publish attempt: %w", err)
	}
	return nil
}

// fail records cause on the attempt unless it was cancelled meanwhile.
func (r *Runner) fail(ctx context.Context, u *models.PublishUpload, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := r.checkCancelled(ctx, u); errors.Is(err, errCancelled) {
		return
	}
	u.Status = models.PublishFailed
	u.ErrorMessage = cause.Error()
	u.RetryCount++
	u.UpdatedAt = r.now()
	if err := r.repomanager.Publishes(r.db).Update(ctx, u); err != nil {
		r.logger.Error(ctx, "failed to record publish failure", "upload_id", u.ID, "error", err)
	}
}
