package enum

// AuthMethod selects how a session authenticates against the IMAP server.
type AuthMethod string

const (
	AuthPassword AuthMethod = "password"
	AuthOAuth2   AuthMethod = "oauth2"
)

func (t AuthMethod) String() string {
	return string(t)
}

func GetAuthMethod(s string) AuthMethod {
	switch s {
	case "oauth2":
		return AuthOAuth2
	default:
		return AuthPassword
	}
}
