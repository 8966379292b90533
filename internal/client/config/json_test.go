package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"server_url":      "https://media.example:9000",
		"podcast_id":      "pod-7",
		"max_concurrent":  3,
		"skip_duplicates": false,
		"request_timeout": "45s",
	})

	t.Run("loads from flags", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{SkipDuplicates: true}
		parseJson(cfg)

		assert.Equal(t, "https://media.example:9000", cfg.ServerURL)
		assert.Equal(t, "pod-7", cfg.PodcastID)
		assert.Equal(t, 3, cfg.MaxConcurrent)
		assert.False(t, cfg.SkipDuplicates)
		assert.Equal(t, 45*time.Second, cfg.RequestTimeout)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{ServerURL: "http://defaults:1234", MaxConcurrent: 2}
		parseJson(cfg)

		assert.Equal(t, "http://defaults:1234", cfg.ServerURL)
		assert.Equal(t, 2, cfg.MaxConcurrent)
	})

	t.Run("missing fields keep current values", func(t *testing.T) {
		partial := writeTempJSON(t, dir, "partial.json", map[string]any{"episode_id": "ep-3"})
		os.Args = []string{"testbin", "-c", partial}

		cfg := &Config{ServerURL: "http://keep", SkipDuplicates: true}
		parseJson(cfg)

		assert.Equal(t, "http://keep", cfg.ServerURL)
		assert.Equal(t, "ep-3", cfg.EpisodeID)
		assert.True(t, cfg.SkipDuplicates)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
