// Package oauth keeps platform credentials fresh. The Guard refreshes a
// token shortly before it expires, or on demand after the platform rejected
// it, and persists the result before the caller proceeds.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"github.com/dmitrijs2005/mediaflow/internal/netx"
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
)

// DefaultThreshold is how close to expiry a token gets refreshed.
const DefaultThreshold = 10 * time.Minute

// Refreshed is the outcome of a refresh grant. An empty RefreshToken keeps
// the stored one.
type Refreshed struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Refresher exchanges a token for a fresh one at the platform.
type Refresher interface {
	Refresh(ctx context.Context, t *models.OAuthToken) (*Refreshed, error)
}

// Guard hands out usable access tokens.
type Guard struct {
	store      TokenStore
	refreshers map[models.Platform]Refresher
	threshold  time.Duration
	logger     logging.Logger
	now        func() time.Time
}

func NewGuard(store TokenStore, refreshers map[models.Platform]Refresher, threshold time.Duration, l logging.Logger) *Guard {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Guard{
		store:      store,
		refreshers: refreshers,
		threshold:  threshold,
		logger:     l.With("module", "oauth"),
		now:        time.Now,
	}
}

// Token returns the credential of userID for platform, refreshing it first
// when it expires within the threshold or when force is set. A missing token
// or a failed refresh yields common.ErrNotConnected.
func (g *Guard) Token(ctx context.Context, userID string, platform models.Platform, force bool) (*models.OAuthToken, error) {
	t, err := g.store.Get(ctx, userID, platform)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("%s: %w", platform, common.ErrNotConnected)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading %s token: %w", platform, err)
	}

	if !force && t.ExpiresAt.Sub(g.now()) >= g.threshold {
		return t, nil
	}

	r, ok := g.refreshers[platform]
	if !ok {
		return nil, fmt.Errorf("%s: no refresher: %w", platform, common.ErrNotConnected)
	}

	res, err := r.Refresh(ctx, t)
	if err != nil {
		g.logger.Warn(ctx, "token refresh failed", "platform", platform, "user_id", userID, "error", err)
		return nil, fmt.Errorf("%s: %v: %w", platform, err, common.ErrNotConnected)
	}

	t.AccessToken = res.AccessToken
	if res.RefreshToken != "" {
		t.RefreshToken = res.RefreshToken
	}
	t.ExpiresAt = g.now().Add(res.ExpiresIn)
	t.UpdatedAt = g.now()

	if err := g.store.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("error saving refreshed %s token: %w", platform, err)
	}

	g.logger.Info(ctx, "token refreshed", "platform", platform, "user_id", userID, "forced", force)
	return t, nil
}

// Do runs fn with a fresh token. When fn fails with HTTP 401 the token is
// refreshed regardless of its expiry and fn is replayed once; a second 401
// yields common.ErrAuthExpired.
func (g *Guard) Do(ctx context.Context, userID string, platform models.Platform, fn func(ctx context.Context, t *models.OAuthToken) error) error {
	t, err := g.Token(ctx, userID, platform, false)
	if err != nil {
		return err
	}

	err = fn(ctx, t)
	if !netx.IsStatus(err, http.StatusUnauthorized) {
		return err
	}

	g.logger.Info(ctx, "platform rejected token, refreshing", "platform", platform, "user_id", userID)

	t, err = g.Token(ctx, userID, platform, true)
	if err != nil {
		return err
	}

	err = fn(ctx, t)
	if netx.IsStatus(err, http.StatusUnauthorized) {
		return fmt.Errorf("%s: %v: %w", platform, err, common.ErrAuthExpired)
	}
	return err
}
