// Package models defines server-side data models persisted in the database.
package models

import (
	"sort"
	"time"
)

// TransferStatus is the lifecycle state of a chunked transfer session.
type TransferStatus string

const (
	TransferUploading  TransferStatus = "uploading"
	TransferCompleting TransferStatus = "completing"
	TransferCompleted  TransferStatus = "completed"
	TransferFailed     TransferStatus = "failed"
	TransferExpired    TransferStatus = "expired"
)

// CompletedPart records one part accepted by the blob store.
type CompletedPart struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
	Size       int64  `json:"size"`
}

// TransferSession is the durable record of one chunked upload.
//
// CompletedParts only grows and holds each part number at most once.
type TransferSession struct {
	ID              string
	PodcastID       string
	EpisodeID       *string
	CreatedBy       string
	StorageUploadID string
	StorageKey      string
	DestinationPath string
	Filename        string
	ContentType     string
	TotalBytes      int64
	ChunkSize       int64
	TotalParts      int
	CompletedParts  []CompletedPart
	UploadedBytes   int64
	Status          TransferStatus
	ErrorMessage    string
	URL             string
	ExpiresAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FindPart returns the recorded part with the given number.
func (s *TransferSession) FindPart(n int) (CompletedPart, bool) {
	for _, p := range s.CompletedParts {
		if p.PartNumber == n {
			return p, true
		}
	}
	return CompletedPart{}, false
}

// IsExpired reports whether now is past the session expiry.
func (s *TransferSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Progress is the share of parts completed, 0..100.
func (s *TransferSession) Progress() float64 {
	if s.TotalParts == 0 {
		return 0
	}
	p := float64(len(s.CompletedParts)) / float64(s.TotalParts) * 100
	if p > 100 {
		p = 100
	}
	return p
}

// SortedParts returns a copy of the completed parts ordered by part number.
func (s *TransferSession) SortedParts() []CompletedPart {
	parts := make([]CompletedPart, len(s.CompletedParts))
	copy(parts, s.CompletedParts)
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return parts
}
