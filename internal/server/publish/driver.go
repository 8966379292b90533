package publish

import (
	"context"
	"io"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/server/models"
)

// Job is what a driver works on during one phase.
type Job struct {
	Upload *models.PublishUpload
	// Token is the credential checked when the phase started.
	Token *models.OAuthToken
	// Save persists Upload after the driver changed progress or identifiers.
	// It fails when the attempt was cancelled meanwhile.
	Save func(ctx context.Context) error
	// Refresh returns a valid credential, renewing it when it is about to
	// expire. Nil keeps Token.
	Refresh func(ctx context.Context) (*models.OAuthToken, error)
	// PollAfter, set by Transfer, delays the first processing poll.
	PollAfter time.Duration
}

// AccessToken returns the access token to send with the next platform
// call. Drivers that make several calls in one phase ask before each.
func (j *Job) AccessToken(ctx context.Context) (string, error) {
	if j.Refresh != nil {
		t, err := j.Refresh(ctx)
		if err != nil {
			return "", err
		}
		j.Token = t
	}
	return j.Token.AccessToken, nil
}

// Poll is one observation of platform side processing.
type Poll struct {
	Done     bool
	Progress int
	// After is the interval the platform asked for before the next poll.
	After time.Duration
}

// Driver speaks one platform's upload protocol. Every method may be called
// again for the same attempt after a restart and must pick up from the
// identifiers already on the record.
type Driver interface {
	Platform() models.Platform

	// AcquireTarget obtains the first platform identifier and stores it in
	// Upload.UploadTarget.
	AcquireTarget(ctx context.Context, job *Job) error

	// Transfer moves the source bytes to the platform.
	Transfer(ctx context.Context, job *Job) error

	// PollProcessing observes platform processing once. A terminal platform
	// failure is reported as common.ErrPlatformProcessingFailed.
	PollProcessing(ctx context.Context, job *Job) (Poll, error)

	// HasPosting reports whether a separate post must be created after
	// processing.
	HasPosting() bool

	// FinalizePost creates the post and records PublishedID and PlatformURL.
	FinalizePost(ctx context.Context, job *Job) error
}

// ProgressReader counts bytes read and reports the share of total in whole
// percent whenever it grows by at least step points, and once on reaching
// 100.
type ProgressReader struct {
	r        io.Reader
	read     int64
	total    int64
	step     int
	reported int
	report   func(pct int)
}

// NewProgressReader wraps r; offset bytes count as already transferred.
func NewProgressReader(r io.Reader, offset, total int64, step int, report func(pct int)) *ProgressReader {
	p := &ProgressReader{r: r, read: offset, total: total, step: step, report: report}
	p.reported = p.percent()
	return p
}

func (p *ProgressReader) percent() int {
	if p.total <= 0 {
		return 0
	}
	pct := int(p.read * 100 / p.total)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if pct := p.percent(); pct-p.reported >= p.step || (pct == 100 && p.reported < 100) {
		p.reported = pct
		p.report(pct)
	}
	return n, err
}
