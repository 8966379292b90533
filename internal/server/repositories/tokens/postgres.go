// Package tokens provides a PostgreSQL-backed repository for the OAuth
// credentials used by the platform drivers.
package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/dmitrijs2005/mediaflow/internal/dbx"
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string, platform models.Platform) (*models.OAuthToken, error) {
	query := `
		SELECT access_token, refresh_token, expires_at, account_id, account_name, updated_at
		FROM oauth_tokens
		WHERE user_id = $1 AND platform = $2
	`
	t := &models.OAuthToken{UserID: userID, Platform: platform}
	err := r.db.QueryRowContext(ctx, query, userID, string(platform)).
		Scan(&t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.AccountID, &t.AccountName, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Save(ctx context.Context, t *models.OAuthToken) error {
	query := `
		INSERT INTO oauth_tokens (user_id, platform, access_token, refresh_token, expires_at, account_id, account_name, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, platform) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    expires_at = EXCLUDED.expires_at,
		    account_id = EXCLUDED.account_id,
		    account_name = EXCLUDED.account_name,
		    updated_at = EXCLUDED.updated_at
	`
	t.UpdatedAt = time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, query, t.UserID, string(t.Platform), t.AccessToken, t.RefreshToken,
		t.ExpiresAt, t.AccountID, t.AccountName, t.UpdatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID string, platform models.Platform) error {
	query := `
		DELETE FROM oauth_tokens
		WHERE user_id = $1 AND platform = $2
	`
	if _, err := r.db.ExecContext(ctx, query, userID, string(platform)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
