package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/customeros/mailvault/config"
	mverrors "github.com/customeros/mailvault/internal/errors"
)

func TestKeyringStoreRoundTrip(t *testing.T) {
	keyring.MockInit()

	// Arrange
	store := NewKeyringStore()

	// Act
	require.NoError(t, store.SetPassword("acct_1", "hunter2"))
	require.NoError(t, store.SetRefreshToken("acct_1", "refresh-abc"))

	// Assert
	password, err := store.Password("acct_1")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", password)

	token, err := store.RefreshToken("acct_1")
	require.NoError(t, err)
	assert.Equal(t, "refresh-abc", token)
}

func TestKeyringStoreMissingSecret(t *testing.T) {
	keyring.MockInit()

	// Arrange
	store := NewKeyringStore()

	// Act
	_, err := store.Password("acct_unknown")

	// Assert
	assert.ErrorIs(t, err, mverrors.ErrSecretNotFound)
}

func TestKeyringStoreDeleteAccountSecrets(t *testing.T) {
	keyring.MockInit()

	// Arrange
	store := NewKeyringStore()
	require.NoError(t, store.SetPassword("acct_1", "hunter2"))

	// Act: deleting must succeed even though no refresh token was stored
	err := store.DeleteAccountSecrets("acct_1")

	// Assert
	require.NoError(t, err)
	_, err = store.Password("acct_1")
	assert.ErrorIs(t, err, mverrors.ErrSecretNotFound)

	// a second delete is a no-op
	assert.NoError(t, store.DeleteAccountSecrets("acct_1"))
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	// Arrange
	store := NewMemoryStore()

	// Act
	require.NoError(t, store.SetPassword("acct_1", "hunter2"))
	require.NoError(t, store.SetRefreshToken("acct_1", "refresh-abc"))

	// Assert
	password, err := store.Password("acct_1")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", password)

	token, err := store.RefreshToken("acct_1")
	require.NoError(t, err)
	assert.Equal(t, "refresh-abc", token)

	require.NoError(t, store.DeleteAccountSecrets("acct_1"))
	_, err = store.Password("acct_1")
	assert.ErrorIs(t, err, mverrors.ErrSecretNotFound)
	_, err = store.RefreshToken("acct_1")
	assert.ErrorIs(t, err, mverrors.ErrSecretNotFound)
}

func TestNewSecretStorePicksBackend(t *testing.T) {
	// Arrange + Act
	memory := NewSecretStore(&config.SecretsConfig{Backend: "memory"})
	system := NewSecretStore(&config.SecretsConfig{Backend: "keyring"})

	// Assert
	assert.IsType(t, &MemoryStore{}, memory)
	assert.IsType(t, &KeyringStore{}, system)
}
