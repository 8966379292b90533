package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/client/scheduler"
	"github.com/docker/go-units"
)

// printer renders scheduler events. On a terminal progress overwrites one
// line; otherwise only state changes are printed.
type printer struct {
	mu  sync.Mutex
	w   io.Writer
	tty bool
}

func (p *printer) event(e scheduler.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e.Progress != nil {
		if !p.tty {
			return
		}
		pr := e.Progress
		fmt.Fprintf(p.w, "\r%s: %d/%d parts, %s of %s, %s/s, eta %s\x1b[K",
			e.Path, pr.CompletedParts, pr.TotalParts,
			units.BytesSize(float64(pr.UploadedBytes)), units.BytesSize(float64(pr.TotalBytes)),
			units.BytesSize(pr.BytesPerSecond), pr.ETA.Round(time.Second))
		return
	}

	if p.tty {
		fmt.Fprint(p.w, "\r\x1b[K")
	}
	if e.Err != nil {
		fmt.Fprintf(p.w, "%s: %s: %v\n", e.Path, e.State, e.Err)
		return
	}
	fmt.Fprintf(p.w, "%s: %s\n", e.Path, e.State)
}

// summary prints one line per file and returns how many did not make it.
func summary(w io.Writer, results []scheduler.FileResult) int {
	failed := 0
	for _, r := range results {
		switch r.State {
		case scheduler.StateDone:
			fmt.Fprintf(w, "%s: uploaded (%s) source=%s processing=%s\n", r.Path, r.URL, r.SourceID, r.ProcessingStatus)
		case scheduler.StateDuplicate:
			fmt.Fprintf(w, "%s: skipped, already uploaded\n", r.Path)
		case scheduler.StateCancelled:
			fmt.Fprintf(w, "%s: cancelled\n", r.Path)
			failed++
		default:
			fmt.Fprintf(w, "%s: failed: %v\n", r.Path, r.Err)
			failed++
		}
	}
	return failed
}
