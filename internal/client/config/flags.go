package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/flagx"
)

// flags that take a value; everything else on the command line is a path
// or a subcommand and is left for the cli package.
var valueFlags = []string{"-a", "-p", "-e", "-n", "-t"}

// parseFlags overlays command-line flags onto cfg and panics on bad input,
// the same as the config file loader.
//
//	-a string   base URL of the server
//	-p string   podcast id
//	-e string   episode id
//	-n int      concurrent uploads
//	-s bool     skip duplicates
//	-t int      request timeout in seconds
func parseFlags(cfg *Config) {
	if err := parseArgs(cfg, os.Args[1:]); err != nil {
		panic(err)
	}
}

func parseArgs(cfg *Config, argv []string) error {
	args := flagx.FilterArgs(argv, valueFlags)
	// -s is a bool; handing it to FilterArgs would swallow the next path
	for _, a := range argv {
		if a == "-s" || strings.HasPrefix(a, "-s=") {
			args = append(args, a)
		}
	}

	fs := flag.NewFlagSet("uploader", flag.ContinueOnError)
	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the mediaflow server")
	fs.StringVar(&cfg.PodcastID, "p", cfg.PodcastID, "podcast id")
	fs.StringVar(&cfg.EpisodeID, "e", cfg.EpisodeID, "episode id")
	fs.IntVar(&cfg.MaxConcurrent, "n", cfg.MaxConcurrent, "number of concurrent uploads")
	fs.BoolVar(&cfg.SkipDuplicates, "s", cfg.SkipDuplicates, "skip files the server already has")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if cfg.MaxConcurrent < 1 {
		return fmt.Errorf("-n must be at least 1, got %d", cfg.MaxConcurrent)
	}
	if *timeout < 1 {
		return fmt.Errorf("-t must be at least 1 second, got %d", *timeout)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
	return nil
}
