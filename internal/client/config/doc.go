// Package config loads runtime configuration for the mediaflow uploader.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Environment: MEDIAFLOW_SERVER_URL and MEDIAFLOW_TOKEN.
//  3. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the mediaflow server
//	-p string   podcast id the files belong to
//	-e string   episode id the first file is attached to
//	-n int      number of concurrent file uploads
//	-s bool     skip files the server already knows
//	-t int      request timeout (seconds)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for timeouts, so values can be either
// strings like "30s" or integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "podcast_id": "…",
//	  "max_concurrent": 2,
//	  "skip_duplicates": true,
//	  "request_timeout": "2m"
//	}
//
// The access token is never read from flags so it stays out of process
// listings; use MEDIAFLOW_TOKEN, the JSON file or the interactive prompt.
package config
