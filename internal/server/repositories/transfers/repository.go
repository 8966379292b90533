// Package transfers declares the repository contract for chunked transfer
// sessions.
package transfers

import (
	"context"

	"github.com/dmitrijs2005/mediaflow/internal/server/models"
)

// Repository persists TransferSession records.
type Repository interface {
	// Create inserts a new session.
	Create(ctx context.Context, s *models.TransferSession) error

	// Get loads a session by id. Implementations return common.ErrorNotFound
	// when it does not exist.
	Get(ctx context.Context, id string) (*models.TransferSession, error)

	// Update writes the mutable progress fields of a session.
	Update(ctx context.Context, s *models.TransferSession) error

	// FindLatestUploading returns the newest session in uploading status
	// created by userID for podcastID, or common.ErrorNotFound.
	FindLatestUploading(ctx context.Context, podcastID, userID string) (*models.TransferSession, error)
}
