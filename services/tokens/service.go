package tokens

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"golang.org/x/oauth2"

	"github.com/customeros/mailvault/config"
	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/tracing"
)

// OAuth provider names accepted on accounts.
const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
	ProviderCustom    = "custom"
)

// expiryMargin keeps a cached token out of use shortly before it expires, so
// a token handed to a session does not die mid-handshake.
const expiryMargin = 2 * time.Minute

// Service exchanges stored refresh tokens for live access tokens. Tokens are
// cached per account until close to expiry; Invalidate drops the cache entry
// after a server-side rejection.
type Service struct {
	cfg     *config.OAuthConfig
	secrets interfaces.SecretStore
	log     logger.Logger

	mu    sync.Mutex
	cache map[string]*oauth2.Token
}

func NewTokenProvider(cfg *config.OAuthConfig, secrets interfaces.SecretStore, log logger.Logger) interfaces.TokenProvider {
	return &Service{
		cfg:     cfg,
		secrets: secrets,
		log:     log,
		cache:   make(map[string]*oauth2.Token),
	}
}

func (s *Service) AccessToken(ctx context.Context, account *models.Account) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TokenProvider.AccessToken")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)

	if token := s.cached(account.ID); token != nil {
		return token.AccessToken, nil
	}

	conf, err := s.oauthConfig(account.OAuthProvider)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	refreshToken, err := s.secrets.RefreshToken(account.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", fmt.Errorf("refresh token unavailable: %w", err)
	}

	// a token carrying only the refresh token forces the refresh grant
	source := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		tracing.TraceErr(span, err)
		return "", fmt.Errorf("failed to refresh access token: %w", err)
	}

	// some providers rotate the refresh token on every grant
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		if err := s.secrets.SetRefreshToken(account.ID, token.RefreshToken); err != nil {
			s.log.Warnf("[%s] failed to store rotated refresh token: %v", account.Email, err)
		}
	}

	s.store(account.ID, token)
	log.Printf("[%s] refreshed access token, expires %s", account.Email, token.Expiry.Format(time.RFC3339))
	return token.AccessToken, nil
}

func (s *Service) Invalidate(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, accountID)
}

func (s *Service) cached(accountID string) *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.cache[accountID]
	if !ok {
		return nil
	}
	if token.Expiry.IsZero() || time.Until(token.Expiry) > expiryMargin {
		return token
	}
	delete(s.cache, accountID)
	return nil
}

func (s *Service) store(accountID string, token *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[accountID] = token
}

func (s *Service) oauthConfig(provider string) (*oauth2.Config, error) {
	switch provider {
	case ProviderGoogle:
		return &oauth2.Config{
			ClientID:     s.cfg.GoogleClientID,
			ClientSecret: s.cfg.GoogleClientSecret,
			Scopes:       []string{"https://mail.google.com/"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.google.com/o/oauth2/auth",
				TokenURL: "https://oauth2.googleapis.com/token",
			},
		}, nil
	case ProviderMicrosoft:
		return &oauth2.Config{
			ClientID:     s.cfg.MicrosoftClientID,
			ClientSecret: s.cfg.MicrosoftClientSecret,
			Scopes:       []string{"https://outlook.office365.com/IMAP.AccessAsUser.All", "offline_access"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
				TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token",
			},
		}, nil
	case ProviderCustom:
		if s.cfg.CustomTokenURL == "" {
			return nil, errors.New("custom oauth token url is not configured")
		}
		return &oauth2.Config{
			ClientID:     s.cfg.CustomClientID,
			ClientSecret: s.cfg.CustomClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  s.cfg.CustomTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown oauth provider: %s", provider)
	}
}
