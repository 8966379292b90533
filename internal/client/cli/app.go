package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/mediaflow/internal/client/api"
	"github.com/dmitrijs2005/mediaflow/internal/client/config"
	"github.com/dmitrijs2005/mediaflow/internal/client/scheduler"
	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"github.com/docker/go-units"
)

// Client is the server surface the commands use.
type Client interface {
	scheduler.API
	UploadStatus(ctx context.Context, sessionID string) (*api.SessionStatus, error)
	AbortUpload(ctx context.Context, sessionID string) error
}

type App struct {
	config *config.Config
	client Client
	logger logging.Logger
	out    io.Writer
	tty    bool

	mu sync.Mutex
	// cancel is set while an upload batch runs.
	cancel func()
}

// NewApp builds the API client from c, prompting for the token when none is
// configured.
func NewApp(c *config.Config) (*App, error) {
	if c.AccessToken == "" {
		token, err := GetToken(os.Stderr)
		if err != nil {
			return nil, err
		}
		c.AccessToken = token
	}

	logger := logging.NewJSONLogger(os.Stderr, false)
	client := api.New(c.ServerURL, c.AccessToken, c.RequestTimeout, logger)

	return &App{
		config: c,
		client: client,
		logger: logger,
		out:    os.Stdout,
		tty:    isTerminal(int(os.Stdout.Fd())),
	}, nil
}

// Run executes the command named by args and returns the exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.usage()
		return 2
	}

	var err error
	switch args[0] {
	case "help":
		a.usage()
		return 0
	case "upload":
		return a.upload(ctx, args[1:])
	case "status":
		err = a.status(ctx, args[1:])
	case "resume":
		err = a.resume(ctx)
	case "abort":
		err = a.abort(ctx, args[1:])
	default:
		return a.upload(ctx, args)
	}

	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return 1
	}
	return 0
}

// Cancel stops queueing new files of a running upload batch.
func (a *App) Cancel() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (a *App) usage() {
	fmt.Fprintln(a.out, "Usage: uploader [-a url] -p podcast [-e episode] [-n workers] [-s] [upload] file...")
	fmt.Fprintln(a.out, "       uploader -p podcast resume")
	fmt.Fprintln(a.out, "       uploader status|abort <session>")
}

func (a *App) upload(ctx context.Context, paths []string) int {
	if len(paths) == 0 {
		a.usage()
		return 2
	}
	if a.config.PodcastID == "" {
		fmt.Fprintln(a.out, "error: podcast id is required (-p)")
		return 2
	}

	var episodeID *string
	if a.config.EpisodeID != "" {
		episodeID = &a.config.EpisodeID
	}

	p := &printer{w: a.out, tty: a.tty}
	s := scheduler.New(a.client, scheduler.Options{
		PodcastID:      a.config.PodcastID,
		EpisodeID:      episodeID,
		MaxConcurrent:  a.config.MaxConcurrent,
		SkipDuplicates: a.config.SkipDuplicates,
		OnEvent:        p.event,
	}, a.logger)
	a.mu.Lock()
	a.cancel = s.Cancel
	a.mu.Unlock()

	results, err := s.Run(ctx, paths)
	if results == nil && err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return 1
	}
	failed := summary(a.out, results)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return 1
	}
	if failed > 0 {
		return 1
	}
	return 0
}

var errSessionRequired = errors.New("session id is required")

func (a *App) status(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errSessionRequired
	}
	st, err := a.client.UploadStatus(ctx, args[0])
	if err != nil {
		return err
	}
	a.printStatus(st)
	return nil
}

func (a *App) resume(ctx context.Context) error {
	if a.config.PodcastID == "" {
		return errors.New("podcast id is required (-p)")
	}
	r, err := a.client.FindResumable(ctx, a.config.PodcastID)
	if err != nil {
		return err
	}
	if !r.HasResumable {
		fmt.Fprintln(a.out, "no unfinished upload")
		return nil
	}
	a.printStatus(&r.SessionStatus)
	return nil
}

func (a *App) abort(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errSessionRequired
	}
	if err := a.client.AbortUpload(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "session %s aborted\n", args[0])
	return nil
}

func (a *App) printStatus(st *api.SessionStatus) {
	fmt.Fprintf(a.out, "session:  %s\n", st.SessionID)
	if st.Status != "" {
		fmt.Fprintf(a.out, "status:   %s\n", st.Status)
	}
	fmt.Fprintf(a.out, "file:     %s (%s)\n", st.Filename, units.BytesSize(float64(st.TotalBytes)))
	fmt.Fprintf(a.out, "parts:    %d/%d (%.1f%%)\n", len(st.CompletedParts), st.TotalParts, st.Progress)
	if !st.ExpiresAt.IsZero() {
		fmt.Fprintf(a.out, "expires:  %s\n", st.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
	}
	if st.URL != "" {
		fmt.Fprintf(a.out, "url:      %s\n", st.URL)
	}
	if st.ErrorMessage != "" {
		fmt.Fprintf(a.out, "error:    %s\n", st.ErrorMessage)
	}
}
