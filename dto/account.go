package dto

// AccountInput is the enrol/update payload. Credential fields are
// write-only: they go to the secret store and are never echoed back by any
// endpoint.
type AccountInput struct {
	Email            string `json:"email"`
	DisplayName      string `json:"displayName,omitempty"`
	Host             string `json:"host"`
	Port             int    `json:"port,omitempty"`
	TLS              *bool  `json:"tls,omitempty"`
	Username         string `json:"username,omitempty"`
	AuthMethod       string `json:"authMethod,omitempty"`
	OAuthProvider    string `json:"oauthProvider,omitempty"`
	Password         string `json:"password,omitempty"`
	RefreshToken     string `json:"refreshToken,omitempty"`
	RateLimitProfile string `json:"rateLimitProfile,omitempty"`
	Enabled          *bool  `json:"enabled,omitempty"`
}
