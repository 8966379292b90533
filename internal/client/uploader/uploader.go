// Package uploader sends one local file to the server in parts, resuming an
// unfinished session for the same file when the server has one.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/chunking"
	"github.com/dmitrijs2005/mediaflow/internal/client/api"
	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"github.com/dmitrijs2005/mediaflow/internal/retryx"
	"github.com/docker/go-units"
)

type State string

const (
	StateIdle         State = "idle"
	StateChecking     State = "checking"
	StateInitializing State = "initializing"
	StateUploading    State = "uploading"
	StateCompleting   State = "completing"
	StateComplete     State = "complete"
	StateError        State = "error"
	StateCancelled    State = "cancelled"
)

// ErrCancelled is returned by Upload after Cancel was observed.
var ErrCancelled = errors.New("upload cancelled")

// API is the part of the server surface the uploader talks to.
type API interface {
	FindResumable(ctx context.Context, podcastID string) (*api.Resumable, error)
	InitUpload(ctx context.Context, in api.InitUploadRequest) (*api.Session, error)
	UploadPart(ctx context.Context, sessionID string, partNumber int, data []byte) (*api.Part, error)
	CompleteUpload(ctx context.Context, sessionID string) (*api.Completed, error)
}

// Progress is reported after every part.
type Progress struct {
	UploadedBytes  int64
	TotalBytes     int64
	CompletedParts int
	TotalParts     int
	// BytesPerSecond counts only bytes sent by this run.
	BytesPerSecond float64
	// ETA is zero while the throughput is unknown.
	ETA time.Duration
}

type Options struct {
	PodcastID   string
	EpisodeID   *string
	ContentType string
	OnState     func(s State, err error)
	OnProgress  func(p Progress)
}

type Result struct {
	SessionID string
	URL       string
	Size      int64
	Resumed   bool
}

// Uploader is single use: one Upload call per instance.
type Uploader struct {
	api    API
	opts   Options
	logger logging.Logger

	mu    sync.Mutex
	state State

	cancelled atomic.Bool

	attempts  int
	baseDelay time.Duration
	sleep     retryx.Sleeper
	now       func() time.Time
}

func New(a API, opts Options, l logging.Logger) *Uploader {
	if opts.ContentType == "" {
		opts.ContentType = "application/octet-stream"
	}
	return &Uploader{
		api:       a,
		opts:      opts,
		logger:    l.With("module", "uploader"),
		state:     StateIdle,
		attempts:  retryx.DefaultAttempts,
		baseDelay: retryx.DefaultBaseDelay,
		sleep:     retryx.SleepContext,
		now:       time.Now,
	}
}

func (u *Uploader) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Cancel asks the upload to stop before its next part. A part already on
// the wire finishes.
func (u *Uploader) Cancel() {
	u.cancelled.Store(true)
}

func (u *Uploader) setState(s State, err error) {
	u.mu.Lock()
	u.state = s
	u.mu.Unlock()
	if u.opts.OnState != nil {
		u.opts.OnState(s, err)
	}
}

// Upload sends the file at path.
func (u *Uploader) Upload(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		u.setState(StateError, err)
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		u.setState(StateError, err)
		return nil, err
	}

	return u.UploadReader(ctx, f, filepath.Base(path), info.Size())
}

// UploadReader sends size bytes of r under filename.
func (u *Uploader) UploadReader(ctx context.Context, r io.ReaderAt, filename string, size int64) (*Result, error) {
	res, err := u.run(ctx, r, filename, size)
	switch {
	case err == nil:
		u.setState(StateComplete, nil)
	case errors.Is(err, ErrCancelled):
		u.setState(StateCancelled, nil)
	default:
		u.setState(StateError, err)
	}
	return res, err
}

func (u *Uploader) run(ctx context.Context, r io.ReaderAt, filename string, size int64) (*Result, error) {
	l := u.logger.With("file", filename, "size", units.BytesSize(float64(size)))

	u.setState(StateChecking, nil)
	plan, startPart, uploaded, sessionID, resumed := u.resume(ctx, filename, size, l)

	if sessionID == "" {
		u.setState(StateInitializing, nil)
		s, err := u.api.InitUpload(ctx, api.InitUploadRequest{
			PodcastID:   u.opts.PodcastID,
			EpisodeID:   u.opts.EpisodeID,
			Filename:    filename,
			ContentType: u.opts.ContentType,
			TotalBytes:  size,
		})
		if err != nil {
			return nil, fmt.Errorf("init upload: %w", err)
		}
		sessionID = s.SessionID
		plan = chunking.Plan{TotalBytes: size, ChunkSize: s.ChunkSize, TotalParts: s.TotalParts}
		startPart = 1
		l.Info(ctx, "upload session created", "session_id", sessionID, "parts", plan.TotalParts)
	}

	u.setState(StateUploading, nil)

	started := u.now()
	var sent int64
	buf := make([]byte, plan.ChunkSize)

	for n := startPart; n <= plan.TotalParts; n++ {
		if u.cancelled.Load() {
			l.Info(ctx, "upload cancelled", "session_id", sessionID, "next_part", n)
			return nil, ErrCancelled
		}

		start, end, _ := plan.PartRange(n)
		data := buf[:end-start]
		read, err := r.ReadAt(data, start)
		switch {
		case read == len(data):
		case err == nil, errors.Is(err, io.EOF):
			// the file shrank after the session was planned
			return nil, fmt.Errorf("read part %d: source ends at %d of %d bytes: %w", n, start+int64(read), size, io.ErrUnexpectedEOF)
		default:
			return nil, fmt.Errorf("read part %d: %w", n, err)
		}

		var part *api.Part
		err = retryx.Do(ctx, retryx.Policy{
			Attempts:  u.attempts,
			BaseDelay: u.baseDelay,
			Retriable: func(err error) bool { return !api.IsPermanent(err) },
			OnRetry: func(attempt int, delay time.Duration, err error) {
				l.Warn(ctx, "part upload failed, retrying", "part", n, "attempt", attempt, "delay", delay, "error", err)
			},
			Sleep: u.sleep,
		}, func(ctx context.Context) error {
			var perr error
			part, perr = u.api.UploadPart(ctx, sessionID, n, data)
			return perr
		})
		if err != nil {
			return nil, fmt.Errorf("upload part %d: %w", n, err)
		}

		if !part.Skipped {
			sent += int64(len(data))
		}
		uploaded += int64(len(data))
		if part.UploadedBytes > 0 {
			uploaded = part.UploadedBytes
		}
		u.report(uploaded, size, n, plan.TotalParts, sent, started)
	}

	if u.cancelled.Load() {
		return nil, ErrCancelled
	}

	u.setState(StateCompleting, nil)
	res, err := u.api.CompleteUpload(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("complete upload: %w", err)
	}

	l.Info(ctx, "upload complete", "session_id", sessionID, "url", res.URL, "resumed", resumed)
	return &Result{SessionID: sessionID, URL: res.URL, Size: res.Size, Resumed: resumed}, nil
}

// resume looks for an unfinished session of the same file. A session is
// adopted only when both the name and the size match.
func (u *Uploader) resume(ctx context.Context, filename string, size int64, l logging.Logger) (chunking.Plan, int, int64, string, bool) {
	r, err := u.api.FindResumable(ctx, u.opts.PodcastID)
	if err != nil {
		l.Warn(ctx, "resumable lookup failed, starting a new session", "error", err)
		return chunking.Plan{}, 0, 0, "", false
	}
	if r == nil || !r.HasResumable || r.Filename != filename || r.TotalBytes != size || r.ChunkSize <= 0 {
		return chunking.Plan{}, 0, 0, "", false
	}

	plan := chunking.Plan{TotalBytes: size, ChunkSize: r.ChunkSize, TotalParts: r.TotalParts}
	next := len(r.CompletedParts) + 1
	l.Info(ctx, "resuming upload session", "session_id", r.SessionID, "next_part", next, "parts", plan.TotalParts)
	return plan, next, r.UploadedBytes, r.SessionID, true
}

func (u *Uploader) report(uploaded, total int64, done, parts int, sent int64, started time.Time) {
	if u.opts.OnProgress == nil {
		return
	}

	p := Progress{
		UploadedBytes:  uploaded,
		TotalBytes:     total,
		CompletedParts: done,
		TotalParts:     parts,
	}
	if elapsed := u.now().Sub(started).Seconds(); elapsed > 0 {
		p.BytesPerSecond = float64(sent) / elapsed
	}
	if p.BytesPerSecond > 0 {
		remaining := float64(total - uploaded)
		p.ETA = time.Duration(remaining / p.BytesPerSecond * float64(time.Second))
	}
	u.opts.OnProgress(p)
}
