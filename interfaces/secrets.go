package interfaces

// SecretStore keeps account passwords and OAuth refresh tokens out of the
// database. Keyed by the immutable account id.
type SecretStore interface {
	SetPassword(accountID, password string) error
	Password(accountID string) (string, error)
	SetRefreshToken(accountID, token string) error
	RefreshToken(accountID string) (string, error)
	// DeleteAccountSecrets removes both entries, ignoring missing ones.
	DeleteAccountSecrets(accountID string) error
}
