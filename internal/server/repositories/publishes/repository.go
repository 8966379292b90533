// Package publishes declares the repository contract for publish attempts.
package publishes

import (
	"context"

	"github.com/dmitrijs2005/mediaflow/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, u *models.PublishUpload) error
	Get(ctx context.Context, id string) (*models.PublishUpload, error)
	// Update persists every mutable field of the record.
	Update(ctx context.Context, u *models.PublishUpload) error
	// ListActive returns records whose run has not finished: pending,
	// uploading, processing or posting.
	ListActive(ctx context.Context) ([]*models.PublishUpload, error)
}
