// Package tokens declares the repository contract for platform OAuth
// credentials.
package tokens

import (
	"context"

	"github.com/dmitrijs2005/mediaflow/internal/server/models"
)

// Repository reads and writes OAuth tokens keyed by (user, platform).
// Token values are stored as given; callers encrypt them beforehand.
type Repository interface {
	// Get returns the token for the pair or common.ErrorNotFound.
	Get(ctx context.Context, userID string, platform models.Platform) (*models.OAuthToken, error)

	// Save inserts or replaces the token for the pair.
	Save(ctx context.Context, t *models.OAuthToken) error

	// Delete removes the token for the pair. Deleting a missing token is not
	// an error.
	Delete(ctx context.Context, userID string, platform models.Platform) error
}
