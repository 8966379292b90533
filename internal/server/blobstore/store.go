// Package blobstore is the multipart object storage collaborator of the
// chunked transfer coordinator.
package blobstore

import (
	"context"

	"github.com/dmitrijs2005/mediaflow/internal/server/models"
)

// Store creates, feeds and finalizes multipart uploads.
type Store interface {
	// CreateMultipartUpload opens a multipart upload for key and returns its
	// upload id.
	CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error)

	// UploadPart stores one part and returns the tag the store assigned to it.
	UploadPart(ctx context.Context, key, uploadID string, partNumber int, body []byte) (string, error)

	// CompleteMultipartUpload assembles the parts, which must be sorted by
	// part number, and returns the public URL of the object.
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []models.CompletedPart) (string, error)

	// AbortMultipartUpload discards an unfinished upload.
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error

	// IsReady reports whether the bucket is reachable.
	IsReady(ctx context.Context) error
}
