package config

import "os"

// parseEnv reads platform credentials from the environment. Secrets are kept
// out of flags so they do not show up in process listings.
//
//	YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET
//	TWITTER_CLIENT_ID, TWITTER_CLIENT_SECRET
//	INSTAGRAM_CLIENT_ID, INSTAGRAM_CLIENT_SECRET
//	MEDIAFLOW_SECRET_KEY, MEDIAFLOW_DATABASE_DSN
func parseEnv(config *Config) {
	setFromEnv(&config.YouTube.ClientID, "YOUTUBE_CLIENT_ID")
	setFromEnv(&config.YouTube.ClientSecret, "YOUTUBE_CLIENT_SECRET")
	setFromEnv(&config.Twitter.ClientID, "TWITTER_CLIENT_ID")
	setFromEnv(&config.Twitter.ClientSecret, "TWITTER_CLIENT_SECRET")
	setFromEnv(&config.Instagram.ClientID, "INSTAGRAM_CLIENT_ID")
	setFromEnv(&config.Instagram.ClientSecret, "INSTAGRAM_CLIENT_SECRET")
	setFromEnv(&config.SecretKey, "MEDIAFLOW_SECRET_KEY")
	setFromEnv(&config.DatabaseDSN, "MEDIAFLOW_DATABASE_DSN")
}

func setFromEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
