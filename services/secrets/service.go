package secrets

import (
	"errors"
	"sync"

	"github.com/zalando/go-keyring"

	"github.com/customeros/mailvault/config"
	"github.com/customeros/mailvault/interfaces"
	mverrors "github.com/customeros/mailvault/internal/errors"
)

const (
	servicePasswords = "com.customeros.mailvault"
	serviceTokens    = "com.customeros.mailvault.oauth"
)

// NewSecretStore picks the backend named in the config. The keyring backend
// needs a desktop session or a secret service daemon; headless deployments
// run with the memory backend and re-enter credentials on restart.
func NewSecretStore(cfg *config.SecretsConfig) interfaces.SecretStore {
	if cfg != nil && cfg.Backend == "memory" {
		return NewMemoryStore()
	}
	return NewKeyringStore()
}

// KeyringStore keeps credentials in the operating system keychain, one
// service entry per account.
type KeyringStore struct{}

func NewKeyringStore() interfaces.SecretStore {
	return &KeyringStore{}
}

func (s *KeyringStore) SetPassword(accountID, password string) error {
	return keyring.Set(servicePasswords, accountID, password)
}

func (s *KeyringStore) Password(accountID string) (string, error) {
	return get(servicePasswords, accountID)
}

func (s *KeyringStore) SetRefreshToken(accountID, token string) error {
	return keyring.Set(serviceTokens, accountID, token)
}

func (s *KeyringStore) RefreshToken(accountID string) (string, error) {
	return get(serviceTokens, accountID)
}

func (s *KeyringStore) DeleteAccountSecrets(accountID string) error {
	if err := keyring.Delete(servicePasswords, accountID); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	if err := keyring.Delete(serviceTokens, accountID); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

func get(service, accountID string) (string, error) {
	value, err := keyring.Get(service, accountID)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", mverrors.ErrSecretNotFound
		}
		return "", err
	}
	return value, nil
}

// MemoryStore is the in-process fallback backend. Contents vanish on
// restart.
type MemoryStore struct {
	mu        sync.Mutex
	passwords map[string]string
	tokens    map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		passwords: make(map[string]string),
		tokens:    make(map[string]string),
	}
}

func (s *MemoryStore) SetPassword(accountID, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwords[accountID] = password
	return nil
}

func (s *MemoryStore) Password(accountID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	password, ok := s.passwords[accountID]
	if !ok {
		return "", mverrors.ErrSecretNotFound
	}
	return password, nil
}

func (s *MemoryStore) SetRefreshToken(accountID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[accountID] = token
	return nil
}

func (s *MemoryStore) RefreshToken(accountID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[accountID]
	if !ok {
		return "", mverrors.ErrSecretNotFound
	}
	return token, nil
}

func (s *MemoryStore) DeleteAccountSecrets(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.passwords, accountID)
	delete(s.tokens, accountID)
	return nil
}
