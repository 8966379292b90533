// Package common defines shared constants and sentinel errors used across
// client and server layers of mediaflow. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrAccessDenied   = errors.New("access denied")

	// Validation errors.
	ErrInvalidArgument = errors.New("invalid argument")

	// Transfer session lifecycle errors.
	ErrInvalidState      = errors.New("invalid state")
	ErrExpired           = errors.New("upload session expired")
	ErrIncomplete        = errors.New("upload incomplete")
	ErrSizeLimitExceeded = errors.New("size limit exceeded")
	ErrSizeUnknown       = errors.New("source size unknown")
	ErrTransientNetwork  = errors.New("transient network error")

	// Publish errors.
	ErrPlatformProcessingFailed = errors.New("platform processing failed")

	// Platform credential errors.
	ErrNotConnected = errors.New("platform account not connected")
	ErrAuthExpired  = errors.New("platform authorization expired")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")
)
