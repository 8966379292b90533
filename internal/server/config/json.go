package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/mediaflow/internal/flagx"
	"github.com/dmitrijs2005/mediaflow/internal/timex"
)

// JsonPlatform is the JSON form of Platform.
type JsonPlatform struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	APIBaseURL   string `json:"api_base_url"`
	UploadURL    string `json:"upload_url"`
	TokenURL     string `json:"token_url"`
}

// JsonConfig is the DTO read from the JSON config file. Durations accept
// strings such as "24h" or integer nanoseconds; the upload limit accepts
// human sizes such as "50GiB".
type JsonConfig struct {
	EndpointAddrHTTP      string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC      string         `json:"endpoint_addr_grpc"`
	DatabaseDSN           string         `json:"database_dsn"`
	SecretKey             string         `json:"secret_key"`
	S3RootUser            string         `json:"s3_root_user"`
	S3RootPassword        string         `json:"s3_root_password"`
	S3Bucket              string         `json:"s3_bucket"`
	S3Region              string         `json:"s3_region"`
	S3BaseEndpoint        string         `json:"s3_base_endpoint"`
	S3PublicURL           string         `json:"s3_public_url"`
	MaxUploadSize         string         `json:"max_upload_size"`
	SessionTTL            timex.Duration `json:"session_ttl"`
	PublishTimeout        timex.Duration `json:"publish_timeout"`
	PollInterval          timex.Duration `json:"poll_interval"`
	TokenRefreshThreshold timex.Duration `json:"token_refresh_threshold"`
	Debug                 *bool          `json:"debug"`
	YouTube               JsonPlatform   `json:"youtube"`
	Twitter               JsonPlatform   `json:"twitter"`
	Instagram             JsonPlatform   `json:"instagram"`
}

// parseJson overlays values from the JSON file named by -c/-config onto
// config. Only keys present with a non-zero value override what is already
// set. An unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	overlay(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	overlay(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	overlay(&config.DatabaseDSN, c.DatabaseDSN)
	overlay(&config.SecretKey, c.SecretKey)
	overlay(&config.S3RootUser, c.S3RootUser)
	overlay(&config.S3RootPassword, c.S3RootPassword)
	overlay(&config.S3Bucket, c.S3Bucket)
	overlay(&config.S3Region, c.S3Region)
	overlay(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	overlay(&config.S3PublicURL, c.S3PublicURL)

	if c.MaxUploadSize != "" {
		n, err := flagx.ParseByteSize(c.MaxUploadSize)
		if err != nil {
			panic(err)
		}
		config.MaxUploadBytes = n
	}
	if c.SessionTTL.Duration > 0 {
		config.SessionTTL = c.SessionTTL.Duration
	}
	if c.PublishTimeout.Duration > 0 {
		config.PublishTimeout = c.PublishTimeout.Duration
	}
	if c.PollInterval.Duration > 0 {
		config.PollInterval = c.PollInterval.Duration
	}
	if c.TokenRefreshThreshold.Duration > 0 {
		config.TokenRefreshThreshold = c.TokenRefreshThreshold.Duration
	}
	if c.Debug != nil {
		config.Debug = *c.Debug
	}

	overlayPlatform(&config.YouTube, c.YouTube)
	overlayPlatform(&config.Twitter, c.Twitter)
	overlayPlatform(&config.Instagram, c.Instagram)
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overlayPlatform(dst *Platform, p JsonPlatform) {
	overlay(&dst.ClientID, p.ClientID)
	overlay(&dst.ClientSecret, p.ClientSecret)
	overlay(&dst.APIBaseURL, p.APIBaseURL)
	overlay(&dst.UploadURL, p.UploadURL)
	overlay(&dst.TokenURL, p.TokenURL)
}
