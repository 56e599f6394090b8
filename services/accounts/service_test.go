package accounts

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailvault/config"
	"github.com/customeros/mailvault/dto"
	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/database"
	"github.com/customeros/mailvault/internal/enum"
	mverrors "github.com/customeros/mailvault/internal/errors"
	"github.com/customeros/mailvault/internal/imaptest"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/repository"
	"github.com/customeros/mailvault/services/secrets"
	"github.com/customeros/mailvault/services/tokens"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

type testHarness struct {
	service interfaces.AccountsService
	repos   *repository.Repositories
	store   *secrets.MemoryStore
}

func newTestHarness(t *testing.T) *testHarness {
	dbConfig := &config.DatabaseConfig{
		Driver:     database.DriverSqlite,
		SqlitePath: filepath.Join(t.TempDir(), "mailvault.db"),
	}
	db, err := database.NewConnection(dbConfig)
	require.NoError(t, err)
	require.NoError(t, repository.MigrateDB(dbConfig, db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	repos := repository.InitRepositories(db)

	log := getLogger()
	store := secrets.NewMemoryStore()
	cfg := &config.Config{
		BackupConfig: &config.BackupConfig{RateLimitProfile: "aggressive"},
	}
	tokenProvider := tokens.NewTokenProvider(&config.OAuthConfig{}, store, log)
	service := NewAccountsService(cfg, log, repos, store, tokenProvider, nil)
	return &testHarness{service: service, repos: repos, store: store}
}

func passwordInput() *dto.AccountInput {
	return &dto.AccountInput{
		Email:    "user@example.com",
		Host:     "imap.example.com",
		Password: "secret",
	}
}

func logoutStep() imaptest.Step {
	return imaptest.Step{Expect: "LOGOUT", Reply: "* BYE\r\n%TAG% OK LOGOUT completed\r\n"}
}

func TestCreateAccountAppliesDefaults(t *testing.T) {
	// Arrange
	h := newTestHarness(t)

	// Act
	account, err := h.service.CreateAccount(context.Background(), passwordInput())

	// Assert
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.True(t, len(account.ID) > len("acct_"), "expected a generated id, got %q", account.ID)
	assert.Equal(t, "user@example.com", account.Email)
	assert.Equal(t, "imap.example.com", account.Host)
	assert.Equal(t, 993, account.Port)
	assert.True(t, account.TLS)
	assert.Equal(t, "user@example.com", account.Username)
	assert.Equal(t, enum.AuthPassword, account.AuthMethod)
	assert.True(t, account.Enabled)

	password, err := h.store.Password(account.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret", password)

	saved, err := h.repos.AccountRepository.GetAccountByEmail(context.Background(), "user@example.com")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, account.ID, saved.ID)
}

func TestCreateAccountRejectsDuplicate(t *testing.T) {
	// Arrange
	h := newTestHarness(t)
	_, err := h.service.CreateAccount(context.Background(), passwordInput())
	require.NoError(t, err)

	// Act
	_, err = h.service.CreateAccount(context.Background(), passwordInput())

	// Assert
	require.ErrorIs(t, err, mverrors.ErrAccountExists)
}

func TestCreateAccountValidation(t *testing.T) {
	tests := []struct {
		name  string
		input *dto.AccountInput
		want  string
	}{
		{
			name:  "empty input",
			input: &dto.AccountInput{},
			want:  "Email address is not valid",
		},
		{
			name:  "missing host",
			input: &dto.AccountInput{Email: "user@example.com", Password: "secret"},
			want:  "IMAP host is required",
		},
		{
			name:  "missing password",
			input: &dto.AccountInput{Email: "user@example.com", Host: "imap.example.com"},
			want:  "Password is required",
		},
		{
			name: "unknown oauth provider",
			input: &dto.AccountInput{
				Email: "user@example.com", Host: "imap.example.com",
				AuthMethod: "oauth2", OAuthProvider: "yahoo", RefreshToken: "rt",
			},
			want: "OAuth provider must be google, microsoft or custom",
		},
		{
			name: "missing refresh token",
			input: &dto.AccountInput{
				Email: "user@example.com", Host: "imap.example.com",
				AuthMethod: "oauth2", OAuthProvider: "google",
			},
			want: "Refresh token is required",
		},
		{
			name: "unknown auth method",
			input: &dto.AccountInput{
				Email: "user@example.com", Host: "imap.example.com", AuthMethod: "kerberos",
			},
			want: "Auth method must be password or oauth2",
		},
		{
			name: "unknown rate limit profile",
			input: &dto.AccountInput{
				Email: "user@example.com", Host: "imap.example.com",
				Password: "secret", RateLimitProfile: "ludicrous",
			},
			want: "Rate limit profile must be balanced, conservative or aggressive",
		},
		{
			name: "port out of range",
			input: &dto.AccountInput{
				Email: "user@example.com", Host: "imap.example.com",
				Password: "secret", Port: 70000,
			},
			want: "IMAP port is out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			h := newTestHarness(t)

			// Act
			_, err := h.service.CreateAccount(context.Background(), tt.input)

			// Assert
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validation failed")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCreateAccountOAuth(t *testing.T) {
	// Arrange
	h := newTestHarness(t)
	input := &dto.AccountInput{
		Email:         "user@example.com",
		Host:          "imap.gmail.com",
		AuthMethod:    "oauth2",
		OAuthProvider: "google",
		RefreshToken:  "rt-1",
	}

	// Act
	account, err := h.service.CreateAccount(context.Background(), input)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, enum.AuthOAuth2, account.AuthMethod)
	assert.Equal(t, "google", account.OAuthProvider)

	refreshToken, err := h.store.RefreshToken(account.ID)
	require.NoError(t, err)
	assert.Equal(t, "rt-1", refreshToken)
	_, err = h.store.Password(account.ID)
	require.ErrorIs(t, err, mverrors.ErrSecretNotFound)
}

func TestUpdateAccountRotatesPassword(t *testing.T) {
	// Arrange
	h := newTestHarness(t)
	account, err := h.service.CreateAccount(context.Background(), passwordInput())
	require.NoError(t, err)

	// Act
	updated, err := h.service.UpdateAccount(context.Background(), account.ID, &dto.AccountInput{
		Host:     "imap.other.example.com",
		Port:     1993,
		Password: "rotated",
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "imap.other.example.com", updated.Host)
	assert.Equal(t, 1993, updated.Port)
	assert.Equal(t, "user@example.com", updated.Username, "untouched fields survive the update")

	password, err := h.store.Password(account.ID)
	require.NoError(t, err)
	assert.Equal(t, "rotated", password)
}

func TestUpdateAccountRejectsEmailChange(t *testing.T) {
	// Arrange
	h := newTestHarness(t)
	account, err := h.service.CreateAccount(context.Background(), passwordInput())
	require.NoError(t, err)

	// Act
	_, err = h.service.UpdateAccount(context.Background(), account.ID, &dto.AccountInput{
		Email: "other@example.com",
	})

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email address cannot change")
}

func TestUpdateAccountUnknown(t *testing.T) {
	// Arrange
	h := newTestHarness(t)

	// Act
	_, err := h.service.UpdateAccount(context.Background(), "acct_missing", &dto.AccountInput{Host: "x"})

	// Assert
	require.ErrorIs(t, err, mverrors.ErrAccountNotFound)
}

func TestSetEnabledTogglesFlag(t *testing.T) {
	// Arrange
	h := newTestHarness(t)
	account, err := h.service.CreateAccount(context.Background(), passwordInput())
	require.NoError(t, err)

	// Act
	require.NoError(t, h.service.SetEnabled(context.Background(), account.ID, false))

	// Assert
	saved, err := h.service.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.False(t, saved.Enabled)

	require.NoError(t, h.service.SetEnabled(context.Background(), account.ID, true))
	saved, err = h.service.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.True(t, saved.Enabled)
}

func TestDeleteAccountForgetsEverything(t *testing.T) {
	// Arrange
	h := newTestHarness(t)
	ctx := context.Background()
	account, err := h.service.CreateAccount(ctx, passwordInput())
	require.NoError(t, err)
	require.NoError(t, h.repos.BackupRunRepository.CreateRun(ctx, &models.BackupRun{
		AccountID: account.ID,
		Trigger:   models.RunTriggerManual,
		StartedAt: account.CreatedAt,
	}))

	// Act
	require.NoError(t, h.service.DeleteAccount(ctx, account.ID))

	// Assert
	_, err = h.service.GetAccount(ctx, account.ID)
	require.ErrorIs(t, err, mverrors.ErrAccountNotFound)
	_, err = h.store.Password(account.ID)
	require.ErrorIs(t, err, mverrors.ErrSecretNotFound)
	runs, err := h.repos.BackupRunRepository.GetRuns(ctx, account.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	// the address is free for re-enrolment, the archive tree picks up where
	// it left off
	_, err = h.service.CreateAccount(ctx, passwordInput())
	require.NoError(t, err)
}

func TestDeleteAccountUnknown(t *testing.T) {
	// Arrange
	h := newTestHarness(t)

	// Act
	err := h.service.DeleteAccount(context.Background(), "acct_missing")

	// Assert
	require.ErrorIs(t, err, mverrors.ErrAccountNotFound)
}

func TestTestConnectionPasswordAuth(t *testing.T) {
	// Arrange
	server := imaptest.NewServer(t, []imaptest.Step{
		imaptest.LoginStep(),
		logoutStep(),
	})
	h := newTestHarness(t)
	tlsOff := false
	account, err := h.service.CreateAccount(context.Background(), &dto.AccountInput{
		Email:    "user@example.com",
		Host:     server.Host(),
		Port:     server.Port(),
		TLS:      &tlsOff,
		Password: "secret",
	})
	require.NoError(t, err)

	// Act
	err = h.service.TestConnection(context.Background(), account.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, server.CountCommands("LOGIN"))
	assert.Equal(t, 1, server.CountCommands("LOGOUT"))
}

func TestTestConnectionAuthRejected(t *testing.T) {
	// Arrange
	server := imaptest.NewServer(t, []imaptest.Step{
		{Expect: "LOGIN", Reply: "%TAG% NO [AUTHENTICATIONFAILED] Invalid credentials\r\n"},
	})
	h := newTestHarness(t)
	tlsOff := false
	account, err := h.service.CreateAccount(context.Background(), &dto.AccountInput{
		Email:    "user@example.com",
		Host:     server.Host(),
		Port:     server.Port(),
		TLS:      &tlsOff,
		Password: "wrong",
	})
	require.NoError(t, err)

	// Act
	err = h.service.TestConnection(context.Background(), account.ID)

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication failed")
	assert.Equal(t, 0, server.CountCommands("LOGOUT"))
}

func TestTestConnectionUnknownAccount(t *testing.T) {
	// Arrange
	h := newTestHarness(t)

	// Act
	err := h.service.TestConnection(context.Background(), "acct_missing")

	// Assert
	require.ErrorIs(t, err, mverrors.ErrAccountNotFound)
}
