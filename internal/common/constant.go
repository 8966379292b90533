package common

// Bearer authentication as sent by the uploader and checked by the API.
const (
	AuthorizationHeaderName = "Authorization"
	BearerPrefix            = "Bearer "
)

// MiB is the binary megabyte chunk and fingerprint sizes are expressed in.
const MiB = 1 << 20
