package oauth

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/mediaflow/internal/cryptox"
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/tokens"
)

// TokenStore reads and writes plaintext tokens.
type TokenStore interface {
	Get(ctx context.Context, userID string, platform models.Platform) (*models.OAuthToken, error)
	Save(ctx context.Context, t *models.OAuthToken) error
}

// CipherStore keeps access and refresh tokens sealed at rest.
type CipherStore struct {
	repo   tokens.Repository
	cipher *cryptox.Cipher
}

func NewCipherStore(repo tokens.Repository, c *cryptox.Cipher) *CipherStore {
	return &CipherStore{repo: repo, cipher: c}
}

func (s *CipherStore) Get(ctx context.Context, userID string, platform models.Platform) (*models.OAuthToken, error) {
	t, err := s.repo.Get(ctx, userID, platform)
	if err != nil {
		return nil, err
	}

	access, err := s.cipher.Open(t.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("error opening access token: %w", err)
	}
	refresh, err := s.cipher.Open(t.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("error opening refresh token: %w", err)
	}

	out := *t
	out.AccessToken = access
	out.RefreshToken = refresh
	return &out, nil
}

func (s *CipherStore) Save(ctx context.Context, t *models.OAuthToken) error {
	access, err := s.cipher.Seal(t.AccessToken)
	if err != nil {
		return fmt.Errorf("error sealing access token: %w", err)
	}
	refresh, err := s.cipher.Seal(t.RefreshToken)
	if err != nil {
		return fmt.Errorf("error sealing refresh token: %w", err)
	}

	sealed := *t
	sealed.AccessToken = access
	sealed.RefreshToken = refresh
	return s.repo.Save(ctx, &sealed)
}
