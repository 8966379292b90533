// Package scheduler uploads several files with a small fixed number of
// concurrent workers pulling from one queue.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmitrijs2005/mediaflow/internal/client/api"
	"github.com/dmitrijs2005/mediaflow/internal/client/uploader"
	"github.com/dmitrijs2005/mediaflow/internal/fingerprint"
	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"golang.org/x/sync/errgroup"
)

const DefaultMaxConcurrent = 2

type State string

const (
	StateQueued    State = "queued"
	StateDuplicate State = "duplicate"
	StateUploading State = "uploading"
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// API is the server surface used by the scheduler and the uploaders it
// starts.
type API interface {
	uploader.API
	CheckDuplicates(ctx context.Context, podcastID string, fingerprints []string) ([]string, error)
	CreateSource(ctx context.Context, in api.CreateSourceRequest) (*api.Source, error)
	ProcessSource(ctx context.Context, sourceID string) (string, error)
}

type FileResult struct {
	Path        string
	Fingerprint string
	State       State
	SourceID    string
	URL         string
	// ProcessingStatus is what the server reported when post-processing was
	// triggered.
	ProcessingStatus string
	Err              error
}

// Event reports a change for the file at Index.
type Event struct {
	Index    int
	Path     string
	State    State
	Progress *uploader.Progress
	Err      error
}

type Options struct {
	PodcastID      string
	EpisodeID      *string
	MaxConcurrent  int
	SkipDuplicates bool
	OnEvent        func(e Event)
}

type task struct {
	index int
	path  string
}

type Scheduler struct {
	api    API
	opts   Options
	logger logging.Logger

	mu        sync.Mutex
	queue     []task
	cancelled bool

	fingerprintFile func(path string) (string, error)
}

func New(a API, opts Options, l logging.Logger) *Scheduler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Scheduler{
		api:             a,
		opts:            opts,
		logger:          l.With("module", "scheduler"),
		fingerprintFile: fingerprint.File,
	}
}

// Cancel drops every queued file. Files already uploading run to the end.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	s.queue = nil
}

func (s *Scheduler) emit(e Event) {
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(e)
	}
}

// Run uploads paths and returns one result per path, in input order. When
// ctx ends mid-batch the files not yet started are reported cancelled and
// ctx's error is returned along with the results. Results are nil only when
// the batch could not be started at all.
func (s *Scheduler) Run(ctx context.Context, paths []string) ([]FileResult, error) {
	results := make([]FileResult, len(paths))
	for i, p := range paths {
		results[i] = FileResult{Path: p, State: StateQueued}
	}
	if len(paths) == 0 {
		return results, nil
	}

	if err := s.fingerprintAll(ctx, results); err != nil {
		return nil, err
	}

	s.mu.Lock()
	for i := range results {
		if results[i].State == StateQueued {
			s.queue = append(s.queue, task{index: i, path: results[i].Path})
		}
	}
	pending := len(s.queue)
	s.mu.Unlock()

	workers := s.opts.MaxConcurrent
	if pending < workers {
		workers = pending
	}
	s.logger.Info(ctx, "starting batch upload", "files", len(paths), "queued", pending, "workers", workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				t, ok := s.next()
				if !ok {
					return nil
				}
				results[t.index] = s.process(gctx, t, results[t.index])
			}
		})
	}
	err := g.Wait()
	if err != nil {
		s.logger.Warn(ctx, "batch interrupted", "error", err)
	}

	// anything still marked queued was drained by Cancel
	for i := range results {
		if results[i].State == StateQueued {
			results[i].State = StateCancelled
			s.emit(Event{Index: i, Path: results[i].Path, State: StateCancelled})
		}
	}

	return results, err
}

func (s *Scheduler) next() (task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled || len(s.queue) == 0 {
		return task{}, false
	}
	t := s.queue[0]
	s.queue = s.queue[1:]
	return t, true
}

// fingerprintAll fingerprints every file and, when asked to, marks the ones
// the server already has as duplicates. A failed duplicate check is logged
// and the files are uploaded anyway.
func (s *Scheduler) fingerprintAll(ctx context.Context, results []FileResult) error {
	fps := make([]string, 0, len(results))
	for i := range results {
		fp, err := s.fingerprintFile(results[i].Path)
		if err != nil {
			results[i].State = StateFailed
			results[i].Err = fmt.Errorf("fingerprint: %w", err)
			s.emit(Event{Index: i, Path: results[i].Path, State: StateFailed, Err: results[i].Err})
			continue
		}
		results[i].Fingerprint = fp
		fps = append(fps, fp)
	}

	if !s.opts.SkipDuplicates || len(fps) == 0 {
		return nil
	}

	known, err := s.api.CheckDuplicates(ctx, s.opts.PodcastID, fps)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		s.logger.Warn(ctx, "duplicate check failed, uploading everything", "error", err)
		return nil
	}

	seen := make(map[string]struct{}, len(known))
	for _, fp := range known {
		seen[fp] = struct{}{}
	}
	for i := range results {
		if results[i].State != StateQueued {
			continue
		}
		if _, ok := seen[results[i].Fingerprint]; ok {
			results[i].State = StateDuplicate
			s.emit(Event{Index: i, Path: results[i].Path, State: StateDuplicate})
		}
	}
	return nil
}

func (s *Scheduler) process(ctx context.Context, t task, res FileResult) FileResult {
	l := s.logger.With("file", t.path)

	u := uploader.New(s.api, uploader.Options{
		PodcastID: s.opts.PodcastID,
		EpisodeID: s.opts.EpisodeID,
		OnProgress: func(p uploader.Progress) {
			s.emit(Event{Index: t.index, Path: t.path, State: StateUploading, Progress: &p})
		},
	}, s.logger)

	res.State = StateUploading
	s.emit(Event{Index: t.index, Path: t.path, State: StateUploading})

	up, err := u.Upload(ctx, t.path)
	if err != nil {
		return s.failed(ctx, l, t, res, err)
	}
	res.URL = up.URL

	size := up.Size
	if size == 0 {
		if info, err := os.Stat(t.path); err == nil {
			size = info.Size()
		}
	}

	src, err := s.api.CreateSource(ctx, api.CreateSourceRequest{
		PodcastID:   s.opts.PodcastID,
		EpisodeID:   s.opts.EpisodeID,
		Filename:    filepath.Base(t.path),
		URL:         up.URL,
		SizeBytes:   size,
		Fingerprint: res.Fingerprint,
	})
	if err != nil {
		return s.failed(ctx, l, t, res, fmt.Errorf("create source: %w", err))
	}
	res.SourceID = src.SourceID

	// post-processing runs on the server; only the trigger is awaited
	status, err := s.api.ProcessSource(ctx, src.SourceID)
	if err != nil {
		l.Warn(ctx, "failed to start post-processing", "source_id", src.SourceID, "error", err)
	}
	res.ProcessingStatus = status

	res.State = StateDone
	s.emit(Event{Index: t.index, Path: t.path, State: StateDone})
	l.Info(ctx, "file uploaded", "source_id", src.SourceID, "url", up.URL)
	return res
}

func (s *Scheduler) failed(ctx context.Context, l logging.Logger, t task, res FileResult, err error) FileResult {
	if errors.Is(err, uploader.ErrCancelled) {
		res.State = StateCancelled
	} else {
		res.State = StateFailed
		res.Err = err
		l.Error(ctx, "file upload failed", "error", err)
	}
	s.emit(Event{Index: t.index, Path: t.path, State: res.State, Err: res.Err})
	return res
}
