package publish

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_WithPostingPhase(t *testing.T) {
	d := &scriptedDriver{
		platform: models.PlatformTwitter,
		posting:  true,
		polls: []pollStep{
			{poll: Poll{Progress: 30, After: 2 * time.Second}},
			{poll: Poll{Done: true, Progress: 100}},
		},
	}
	f := newRunnerFixture(t, d)
	f.seed(nil)

	f.runner.Run(context.Background(), "pu1")

	got := f.repo.stored("pu1")
	assert.Equal(t, models.PublishCompleted, got.Status)
	assert.Equal(t, models.PhaseDone, got.Phase)
	assert.Equal(t, "target-1", got.UploadTarget)
	assert.Equal(t, "media-1", got.PlatformMediaID)
	assert.Equal(t, "post-1", got.PublishedID)
	assert.Equal(t, 100, got.UploadProgress)
	assert.Equal(t, 100, got.ProcessingProgress)
	assert.Equal(t, int64(4096), got.SourceBytes)
	assert.NotNil(t, got.CompletedAt)

	assert.Equal(t, []models.PublishStatus{
		models.PublishPending,
		models.PublishUploading,
		models.PublishProcessing,
		models.PublishPosting,
		models.PublishCompleted,
	}, f.repo.history())
	assert.Equal(t, []string{"acquire", "transfer", "poll", "poll", "post"}, d.seen())
	assert.Equal(t, []time.Duration{2 * time.Second}, f.sleeps, "platform suggested interval is honored")
}

func TestRun_TransferRechecksTokenAndDelaysFirstPoll(t *testing.T) {
	d := &scriptedDriver{
		platform:  models.PlatformTwitter,
		posting:   true,
		segments:  3,
		pollAfter: 7 * time.Second,
		polls: []pollStep{
			{poll: Poll{Progress: 60}},
			{poll: Poll{Done: true, Progress: 100}},
		},
	}
	f := newRunnerFixture(t, d)
	f.seed(nil)

	f.runner.Run(context.Background(), "pu1")

	assert.Equal(t, models.PublishCompleted, f.repo.stored("pu1").Status)
	// tok-1 guards acquire, tok-2 opens the transfer phase, then one per segment
	assert.Equal(t, []string{"tok-3", "tok-4", "tok-5"}, d.tokens)
	assert.Equal(t, []time.Duration{7 * time.Second, 5 * time.Second}, f.sleeps)
}

func TestRun_WithoutPostingPhase(t *testing.T) {
	d := &scriptedDriver{platform: models.PlatformYouTube}
	f := newRunnerFixture(t, d)
	f.seed(nil)

	f.runner.Run(context.Background(), "pu1")

	assert.Equal(t, models.PublishCompleted, f.repo.stored("pu1").Status)
	assert.NotContains(t, f.repo.history(), models.PublishPosting)
	assert.Equal(t, []string{"acquire", "transfer", "poll"}, d.seen())
}

func TestRun_ProcessingFailureNeverPosts(t *testing.T) {
	d := &scriptedDriver{
		platform: models.PlatformTwitter,
		posting:  true,
		polls: []pollStep{
			{poll: Poll{Progress: 10}},
			{err: fmt.Errorf("InvalidMedia: %w", common.ErrPlatformProcessingFailed)},
		},
	}
	f := newRunnerFixture(t, d)
	f.seed(nil)

	f.runner.Run(context.Background(), "pu1")

	got := f.repo.stored("pu1")
	assert.Equal(t, models.PublishFailed, got.Status)
	assert.Equal(t, models.PhaseProcessing, got.Phase)
	assert.Contains(t, got.ErrorMessage, "InvalidMedia")
	assert.Equal(t, 1, got.RetryCount)
	assert.NotContains(t, f.repo.history(), models.PublishPosting)
	assert.NotContains(t, d.seen(), "post")
}

func TestRun_TransientPollErrorsAreRetried(t *testing.T) {
	d := &scriptedDriver{
		platform: models.PlatformYouTube,
		polls: []pollStep{
			{err: fmt.Errorf("dial: %w", common.ErrTransientNetwork)},
			{poll: Poll{Progress: 40}},
			{poll: Poll{Done: true}},
		},
	}
	f := newRunnerFixture(t, d)
	f.seed(nil)

	f.runner.Run(context.Background(), "pu1")

	assert.Equal(t, models.PublishCompleted, f.repo.stored("pu1").Status)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, f.sleeps)
}

func TestRun_AcquireFailureIncrementsRetryCount(t *testing.T) {
	d := &scriptedDriver{platform: models.PlatformInstagram, acquireErr: errors.New("quota")}
	f := newRunnerFixture(t, d)
	f.seed(func(u *models.PublishUpload) { u.RetryCount = 2 })

	f.runner.Run(context.Background(), "pu1")

	got := f.repo.stored("pu1")
	assert.Equal(t, models.PublishFailed, got.Status)
	assert.Equal(t, 3, got.RetryCount)
	assert.Contains(t, got.ErrorMessage, "quota")
}

func TestRun_NotConnectedFails(t *testing.T) {
	d := &scriptedDriver{platform: models.PlatformYouTube}
	f := newRunnerFixture(t, d)
	f.auth.err = common.ErrNotConnected
	f.seed(nil)

	f.runner.Run(context.Background(), "pu1")

	got := f.repo.stored("pu1")
	assert.Equal(t, models.PublishFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, common.ErrNotConnected.Error())
}

func TestRun_ResumesAtProcessingWithoutReacquiring(t *testing.T) {
	d := &scriptedDriver{platform: models.PlatformYouTube}
	f := newRunnerFixture(t, d)
	f.seed(func(u *models.PublishUpload) {
		u.Status = models.PublishProcessing
		u.Phase = models.PhaseProcessing
		u.UploadTarget = "target-0"
		u.PlatformMediaID = "media-0"
		u.SourceBytes = 4096
		u.UploadProgress = 100
	})

	f.runner.Run(context.Background(), "pu1")

	got := f.repo.stored("pu1")
	assert.Equal(t, models.PublishCompleted, got.Status)
	assert.Equal(t, "target-0", got.UploadTarget)
	assert.Equal(t, []string{"poll"}, d.seen())
}

func TestRun_KeepsExistingTargetOnAcquire(t *testing.T) {
	d := &scriptedDriver{platform: models.PlatformYouTube}
	f := newRunnerFixture(t, d)
	f.seed(func(u *models.PublishUpload) {
		u.Status = models.PublishUploading
		u.UploadTarget = "target-0"
	})

	f.runner.Run(context.Background(), "pu1")

	assert.Equal(t, "target-0", f.repo.stored("pu1").UploadTarget)
	assert.Equal(t, []string{"transfer", "poll"}, d.seen())
}

func TestRun_StopsWhenCancelled(t *testing.T) {
	d := &scriptedDriver{platform: models.PlatformTwitter, posting: true}
	f := newRunnerFixture(t, d)
	f.seed(nil)

	d.polls = []pollStep{{poll: Poll{Progress: 10}}}
	f.runner.sleep = func(ctx context.Context, _ time.Duration) error {
		cur := f.repo.stored("pu1")
		cur.Status = models.PublishFailed
		cur.ErrorMessage = CancelMessage
		return f.repo.Update(ctx, cur)
	}

	f.runner.Run(context.Background(), "pu1")

	got := f.repo.stored("pu1")
	assert.Equal(t, models.PublishFailed, got.Status)
	assert.Equal(t, CancelMessage, got.ErrorMessage)
	assert.Zero(t, got.RetryCount)
	assert.NotContains(t, d.seen(), "post")
}

func TestRun_ResolvesSourceFromExports(t *testing.T) {
	d := &scriptedDriver{platform: models.PlatformYouTube}
	f := newRunnerFixture(t, d)
	f.media.exports = []*models.MediaExport{
		{ID: "e2", Format: "9x16", URL: f.source.URL + "/vertical.mp4"},
		{ID: "e1", Format: "16x9", URL: f.source.URL + "/wide.mp4"},
	}
	f.seed(func(u *models.PublishUpload) {
		u.SourceURL = ""
		u.Format = "16x9"
	})

	f.runner.Run(context.Background(), "pu1")

	got := f.repo.stored("pu1")
	assert.Equal(t, f.source.URL+"/wide.mp4", got.SourceURL)
	assert.Equal(t, models.PublishCompleted, got.Status)
}

func TestRun_TimeoutIsRecorded(t *testing.T) {
	d := &scriptedDriver{platform: models.PlatformYouTube, polls: []pollStep{{poll: Poll{}}}}
	f := newRunnerFixture(t, d)
	f.seed(nil)

	f.runner.sleep = func(context.Context, time.Duration) error {
		return context.DeadlineExceeded
	}

	f.runner.Run(context.Background(), "pu1")

	got := f.repo.stored("pu1")
	require.Equal(t, models.PublishFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "deadline")
}

func TestRun_TerminalRecordIsLeftAlone(t *testing.T) {
	d := &scriptedDriver{platform: models.PlatformYouTube}
	f := newRunnerFixture(t, d)
	f.seed(func(u *models.PublishUpload) { u.Status = models.PublishCompleted })

	f.runner.Run(context.Background(), "pu1")

	assert.Empty(t, d.seen())
}
