package config

import "os"

func parseEnv(cfg *Config) {
	if v := os.Getenv("MEDIAFLOW_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("MEDIAFLOW_TOKEN"); v != "" {
		cfg.AccessToken = v
	}
}
