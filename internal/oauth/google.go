package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/enhub-AU/enquiry-partner/internal/config"
)

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// Full mail scope is required for IMAP XOAUTH2 access.
var scopes = strings.Join([]string{
	"https://mail.google.com/",
	"https://www.googleapis.com/auth/userinfo.email",
}, " ")

// IGoogleOAuth defines the Google OAuth operations used for mailbox linking.
type IGoogleOAuth interface {
	AuthURL(state string) (string, error)
	ExchangeCode(ctx context.Context, code string) (accessToken, refreshToken string, err error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, error)
	FetchEmail(ctx context.Context, accessToken string) (string, error)
}

// googleOAuth implements IGoogleOAuth over plain HTTP.
type googleOAuth struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewGoogleOAuth creates a Google OAuth helper.
func NewGoogleOAuth(cfg *config.Config) IGoogleOAuth {
	return &googleOAuth{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *googleOAuth) redirectURI() string {
	return strings.TrimRight(g.cfg.AppBaseURL, "/") + "/v1/auth/google-email/callback"
}

func (g *googleOAuth) credentials() (string, string, error) {
	if g.cfg.GoogleClientID == "" || g.cfg.GoogleClientSecret == "" {
		return "", "", errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set")
	}
	return g.cfg.GoogleClientID, g.cfg.GoogleClientSecret, nil
}

// AuthURL builds the consent URL. offline access + forced consent so Google
// returns a refresh token.
func (g *googleOAuth) AuthURL(state string) (string, error) {
	clientID, _, err := g.credentials()
	if err != nil {
		return "", err
	}
	params := url.Values{
		"client_id":     {clientID},
		"redirect_uri":  {g.redirectURI()},
		"response_type": {"code"},
		"scope":         {scopes},
		"access_type":   {"offline"},
		"prompt":        {"consent"},
		"state":         {state},
	}
	return googleAuthURL + "?" + params.Encode(), nil
}

// ExchangeCode trades an authorization code for tokens.
func (g *googleOAuth) ExchangeCode(ctx context.Context, code string) (string, string, error) {
	clientID, clientSecret, err := g.credentials()
	if err != nil {
		return "", "", err
	}
	form := url.Values{
		"code":          {code},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"redirect_uri":  {g.redirectURI()},
		"grant_type":    {"authorization_code"},
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := g.postForm(ctx, form, &payload); err != nil {
		return "", "", fmt.Errorf("token exchange failed: %w", err)
	}
	if payload.RefreshToken == "" {
		return "", "", errors.New("no refresh_token returned, user may need to re-consent")
	}
	return payload.AccessToken, payload.RefreshToken, nil
}

// RefreshAccessToken exchanges a stored refresh token for a fresh access token.
func (g *googleOAuth) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	clientID, clientSecret, err := g.credentials()
	if err != nil {
		return "", err
	}
	form := url.Values{
		"refresh_token": {refreshToken},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"grant_type":    {"refresh_token"},
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := g.postForm(ctx, form, &payload); err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("token refresh returned no access token")
	}
	return payload.AccessToken, nil
}

// FetchEmail returns the authenticated user's email address.
func (g *googleOAuth) FetchEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserinfoURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch Google user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("google userinfo returned status %d", resp.StatusCode)
	}

	var payload struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to parse Google user info: %w", err)
	}
	return payload.Email, nil
}

func (g *googleOAuth) postForm(ctx context.Context, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}
