package config

import "time"

// DefaultMaxConcurrent is the number of files uploaded at once.
const DefaultMaxConcurrent = 2

// Config holds runtime settings for the uploader.
//
// Fields:
//   - ServerURL: base URL of the mediaflow HTTP API (without /api/v1).
//   - AccessToken: bearer token sent with every request.
//   - PodcastID / EpisodeID: owner of the uploaded sources.
//   - MaxConcurrent: worker count of the scheduler.
//   - SkipDuplicates: drop files whose fingerprint the server already knows.
//   - RequestTimeout: timeout of one HTTP request, part uploads included.
type Config struct {
	ServerURL      string
	AccessToken    string
	PodcastID      string
	EpisodeID      string
	MaxConcurrent  int
	SkipDuplicates bool
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.MaxConcurrent = DefaultMaxConcurrent
	c.SkipDuplicates = true
	c.RequestTimeout = 5 * time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the environment, JSON (if present) and command-line flags (if present).
// Later sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
