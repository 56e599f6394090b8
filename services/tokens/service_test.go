package tokens

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/customeros/mailvault/config"
	mverrors "github.com/customeros/mailvault/internal/errors"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/services/secrets"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

// tokenEndpoint records what the oauth2 client sends and replies with a
// canned grant response. Handlers run on the server goroutine, so tests read
// the recorded values only after AccessToken returns.
type tokenEndpoint struct {
	mu           sync.Mutex
	hits         int
	form         url.Values
	accessToken  string
	refreshToken string
	expiresIn    int
	status       int
}

func (e *tokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	e.mu.Lock()
	e.hits++
	e.form = r.Form
	e.mu.Unlock()

	if e.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(e.status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": "invalid_grant"})
		return
	}

	payload := map[string]interface{}{
		"access_token": e.accessToken,
		"token_type":   "Bearer",
		"expires_in":   e.expiresIn,
	}
	if e.refreshToken != "" {
		payload["refresh_token"] = e.refreshToken
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func (e *tokenEndpoint) hitCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hits
}

func (e *tokenEndpoint) sentForm() url.Values {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.form
}

func newTokenService(t *testing.T, endpoint *tokenEndpoint) (*Service, *secrets.MemoryStore) {
	server := httptest.NewServer(endpoint)
	t.Cleanup(server.Close)

	cfg := &config.OAuthConfig{
		CustomTokenURL:     server.URL + "/token",
		CustomClientID:     "client-1",
		CustomClientSecret: "hunter2",
	}
	store := secrets.NewMemoryStore()
	provider := NewTokenProvider(cfg, store, getLogger())
	return provider.(*Service), store
}

func customAccount() *models.Account {
	return &models.Account{
		ID:            "acc_1",
		Email:         "user@example.com",
		OAuthProvider: ProviderCustom,
	}
}

func TestAccessTokenRefreshGrant(t *testing.T) {
	// Arrange
	endpoint := &tokenEndpoint{accessToken: "token-1", expiresIn: 3600}
	service, store := newTokenService(t, endpoint)
	require.NoError(t, store.SetRefreshToken("acc_1", "refresh-1"))

	// Act
	accessToken, err := service.AccessToken(context.Background(), customAccount())

	// Assert
	require.NoError(t, err)
	require.Equal(t, "token-1", accessToken)
	require.Equal(t, 1, endpoint.hitCount())
	form := endpoint.sentForm()
	require.Equal(t, "refresh_token", form.Get("grant_type"))
	require.Equal(t, "refresh-1", form.Get("refresh_token"))
	require.Equal(t, "client-1", form.Get("client_id"))
}

func TestAccessTokenCachesUntilExpiry(t *testing.T) {
	// Arrange
	endpoint := &tokenEndpoint{accessToken: "token-1", expiresIn: 3600}
	service, store := newTokenService(t, endpoint)
	require.NoError(t, store.SetRefreshToken("acc_1", "refresh-1"))

	// Act
	first, err := service.AccessToken(context.Background(), customAccount())
	require.NoError(t, err)
	second, err := service.AccessToken(context.Background(), customAccount())

	// Assert
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, endpoint.hitCount())
}

func TestAccessTokenExpiringSoonRefreshes(t *testing.T) {
	// Arrange: the grant expires inside the safety margin, so the cache
	// entry is unusable on the second call.
	endpoint := &tokenEndpoint{accessToken: "token-1", expiresIn: 60}
	service, store := newTokenService(t, endpoint)
	require.NoError(t, store.SetRefreshToken("acc_1", "refresh-1"))

	// Act
	_, err := service.AccessToken(context.Background(), customAccount())
	require.NoError(t, err)
	_, err = service.AccessToken(context.Background(), customAccount())

	// Assert
	require.NoError(t, err)
	require.Equal(t, 2, endpoint.hitCount())
}

func TestAccessTokenRotatesRefreshToken(t *testing.T) {
	// Arrange
	endpoint := &tokenEndpoint{accessToken: "token-1", refreshToken: "refresh-2", expiresIn: 3600}
	service, store := newTokenService(t, endpoint)
	require.NoError(t, store.SetRefreshToken("acc_1", "refresh-1"))

	// Act
	_, err := service.AccessToken(context.Background(), customAccount())

	// Assert
	require.NoError(t, err)
	rotated, err := store.RefreshToken("acc_1")
	require.NoError(t, err)
	require.Equal(t, "refresh-2", rotated)
}

func TestInvalidateForcesRefresh(t *testing.T) {
	// Arrange
	endpoint := &tokenEndpoint{accessToken: "token-1", expiresIn: 3600}
	service, store := newTokenService(t, endpoint)
	require.NoError(t, store.SetRefreshToken("acc_1", "refresh-1"))
	_, err := service.AccessToken(context.Background(), customAccount())
	require.NoError(t, err)

	// Act
	service.Invalidate("acc_1")
	_, err = service.AccessToken(context.Background(), customAccount())

	// Assert
	require.NoError(t, err)
	require.Equal(t, 2, endpoint.hitCount())
}

func TestAccessTokenMissingRefreshToken(t *testing.T) {
	// Arrange
	endpoint := &tokenEndpoint{accessToken: "token-1", expiresIn: 3600}
	service, _ := newTokenService(t, endpoint)

	// Act
	_, err := service.AccessToken(context.Background(), customAccount())

	// Assert
	require.ErrorIs(t, err, mverrors.ErrSecretNotFound)
	require.Equal(t, 0, endpoint.hitCount())
}

func TestAccessTokenGrantRejected(t *testing.T) {
	// Arrange
	endpoint := &tokenEndpoint{status: http.StatusBadRequest}
	service, store := newTokenService(t, endpoint)
	require.NoError(t, store.SetRefreshToken("acc_1", "refresh-1"))

	// Act
	_, err := service.AccessToken(context.Background(), customAccount())

	// Assert
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to refresh access token")
}

func TestAccessTokenUnknownProvider(t *testing.T) {
	// Arrange
	endpoint := &tokenEndpoint{accessToken: "token-1", expiresIn: 3600}
	service, store := newTokenService(t, endpoint)
	require.NoError(t, store.SetRefreshToken("acc_1", "refresh-1"))
	account := customAccount()
	account.OAuthProvider = "yahoo"

	// Act
	_, err := service.AccessToken(context.Background(), account)

	// Assert
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown oauth provider")
	require.Equal(t, 0, endpoint.hitCount())
}

func TestAccessTokenCustomProviderNotConfigured(t *testing.T) {
	// Arrange
	store := secrets.NewMemoryStore()
	require.NoError(t, store.SetRefreshToken("acc_1", "refresh-1"))
	provider := NewTokenProvider(&config.OAuthConfig{}, store, getLogger())

	// Act
	_, err := provider.AccessToken(context.Background(), customAccount())

	// Assert
	require.Error(t, err)
	require.Contains(t, err.Error(), "custom oauth token url is not configured")
}
