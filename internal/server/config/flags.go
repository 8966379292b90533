package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-r string   gRPC health bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-w string   public URL prefix of stored objects
//	-m size     maximum upload size (e.g., "50GiB")
//	-t int      transfer session lifetime, minutes
//	-o int      publish run timeout, minutes
//	-i duration platform processing poll interval (e.g., "10s")
//	-v          debug logging
//
// Session lifetime and publish timeout are integer minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-r", "-d", "-s", "-u", "-p", "-b", "-g", "-e", "-w", "-m", "-t", "-o", "-i", "-v"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "r", config.EndpointAddrGRPC, "gRPC health address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.S3PublicURL, "w", config.S3PublicURL, "public URL prefix of stored objects")

	maxUpload := flagx.ByteSize(config.MaxUploadBytes)
	fs.Var(&maxUpload, "m", "maximum upload size")

	sessionTTL := fs.Int("t", int(config.SessionTTL.Minutes()), "transfer session lifetime (in minutes)")
	publishTimeout := fs.Int("o", int(config.PublishTimeout.Minutes()), "publish run timeout (in minutes)")

	fs.DurationVar(&config.PollInterval, "i", config.PollInterval, "platform processing poll interval")

	fs.BoolVar(&config.Debug, "v", config.Debug, "debug logging")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.MaxUploadBytes = int64(maxUpload)
	config.SessionTTL = time.Duration(*sessionTTL) * time.Minute
	config.PublishTimeout = time.Duration(*publishTimeout) * time.Minute
}
