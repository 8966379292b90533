package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/netx"
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
	"github.com/hashicorp/go-retryablehttp"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (r *tokenResponse) refreshed() (*Refreshed, error) {
	if r.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access token")
	}
	return &Refreshed{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresIn:    time.Duration(r.ExpiresIn) * time.Second,
	}, nil
}

func doToken(client *retryablehttp.Client, req *retryablehttp.Request) (*Refreshed, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, netx.UnwrapError(resp)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("error decoding token response: %w", err)
	}
	return tr.refreshed()
}

// GoogleRefresher uses the refresh_token grant of the Google OAuth2 endpoint.
type GoogleRefresher struct {
	Client       *retryablehttp.Client
	TokenURL     string
	ClientID     string
	ClientSecret string
}

func (g *GoogleRefresher) Refresh(ctx context.Context, t *models.OAuthToken) (*Refreshed, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {t.RefreshToken},
		"client_id":     {g.ClientID},
		"client_secret": {g.ClientSecret},
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, g.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return doToken(g.Client, req)
}

// TwitterRefresher uses the refresh_token grant of the X OAuth2 endpoint with
// client credentials in basic auth. X rotates the refresh token.
type TwitterRefresher struct {
	Client       *retryablehttp.Client
	TokenURL     string
	ClientID     string
	ClientSecret string
}

func (x *TwitterRefresher) Refresh(ctx context.Context, t *models.OAuthToken) (*Refreshed, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {t.RefreshToken},
		"client_id":     {x.ClientID},
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, x.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(x.ClientID, x.ClientSecret)
	return doToken(x.Client, req)
}

// InstagramRefresher extends a long-lived Instagram token. The access token
// itself is the refresh credential.
type InstagramRefresher struct {
	Client   *retryablehttp.Client
	TokenURL string
}

func (i *InstagramRefresher) Refresh(ctx context.Context, t *models.OAuthToken) (*Refreshed, error) {
	q := url.Values{
		"grant_type":   {"ig_refresh_token"},
		"access_token": {t.AccessToken},
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, i.TokenURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return doToken(i.Client, req)
}
