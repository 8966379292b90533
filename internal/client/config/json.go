package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/flagx"
	"github.com/dmitrijs2005/mediaflow/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Zero values
// and a missing skip_duplicates leave the runtime Config untouched.
type JsonConfig struct {
	ServerURL      string         `json:"server_url"`
	AccessToken    string         `json:"access_token"`
	PodcastID      string         `json:"podcast_id"`
	EpisodeID      string         `json:"episode_id"`
	MaxConcurrent  int            `json:"max_concurrent"`
	SkipDuplicates *bool          `json:"skip_duplicates"`
	RequestTimeout timex.Duration `json:"request_timeout"`
}

// parseJson overlays Config with values loaded from a JSON file whose path
// comes from -c or -config. Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.AccessToken != "" {
		cfg.AccessToken = jc.AccessToken
	}
	if jc.PodcastID != "" {
		cfg.PodcastID = jc.PodcastID
	}
	if jc.EpisodeID != "" {
		cfg.EpisodeID = jc.EpisodeID
	}
	if jc.MaxConcurrent > 0 {
		cfg.MaxConcurrent = jc.MaxConcurrent
	}
	if jc.SkipDuplicates != nil {
		cfg.SkipDuplicates = *jc.SkipDuplicates
	}
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = time.Duration(jc.RequestTimeout.Duration)
	}
}
