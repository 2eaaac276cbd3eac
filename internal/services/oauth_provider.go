package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/inkwell/backend/internal/config"
	"github.com/inkwell/backend/pkg/logger"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleProfile is the identity claim the OAuth collaborator hands us. Only
// verified emails participate in admin provisioning.
type GoogleProfile struct {
	ProviderUserID string
	Email          string
	Name           string
	VerifiedEmail  bool
}

type OAuthProviderService struct {
	Cfg *config.Config
}

func NewOAuthProviderService(cfg *config.Config) *OAuthProviderService {
	return &OAuthProviderService{Cfg: cfg}
}

func (s *OAuthProviderService) GoogleConfig() (*oauth2.Config, error) {
	if !s.Cfg.OAuth.Google.Enabled {
		return nil, errors.New("google oauth is not enabled")
	}
	return &oauth2.Config{
		ClientID:     s.Cfg.OAuth.Google.ClientID,
		ClientSecret: s.Cfg.OAuth.Google.ClientSecret,
		RedirectURL:  s.Cfg.OAuth.Google.RedirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}, nil
}

func (s *OAuthProviderService) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	oauthCfg, err := s.GoogleConfig()
	if err != nil {
		return nil, err
	}

	token, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		logger.Warn("oauth_exchange_failed", map[string]interface{}{
			"provider": "google",
			"error":    err.Error(),
		})
		return nil, errors.New("failed to exchange code for token")
	}

	return token, nil
}

func (s *OAuthProviderService) GetUserInfo(ctx context.Context, token *oauth2.Token) (*GoogleProfile, error) {
	oauthCfg, err := s.GoogleConfig()
	if err != nil {
		return nil, err
	}
	client := oauthCfg.Client(ctx, token)

	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("google api returned status %d: %s", resp.StatusCode, string(body))
	}

	var data struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		Name          string `json:"name"`
		VerifiedEmail bool   `json:"verified_email"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	return &GoogleProfile{
		ProviderUserID: data.ID,
		Email:          data.Email,
		Name:           data.Name,
		VerifiedEmail:  data.VerifiedEmail,
	}, nil
}
