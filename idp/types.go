package idp

// Actions are sent in the X-Amz-Target header; the provider exposes a single endpoint.
const (
	targetPrefix        = "AWSCognitoIdentityProviderService."
	ActionInitiateAuth  = "InitiateAuth"
	ActionGlobalSignOut = "GlobalSignOut"

	contentType = "application/x-amz-json-1.1"
)

// AuthFlow selects the credential carried by an InitiateAuth request.
type AuthFlow string

const (
	// PasswordAuthFlow authenticates with USERNAME and PASSWORD.
	PasswordAuthFlow AuthFlow = "USER_PASSWORD_AUTH"

	// RefreshTokenAuthFlow exchanges REFRESH_TOKEN for a new result bundle.
	// The provider may omit RefreshToken in the response, in which case the one sent
	// remains valid.
	RefreshTokenAuthFlow AuthFlow = "REFRESH_TOKEN_AUTH"
)

// AuthenticationResult is the token bundle returned by a successful InitiateAuth.
type AuthenticationResult struct {
	// IdToken carries the identity claims (sub, email) and its own exp.
	IdToken *string `json:"IdToken,omitempty"`

	// AccessToken is forwarded to the provider on GlobalSignOut.
	AccessToken *string `json:"AccessToken,omitempty"`

	// RefreshToken is only present on password authentication or when the provider rotates.
	RefreshToken *string `json:"RefreshToken,omitempty"`

	// ExpiresIn is the declared lifetime of IdToken/AccessToken in seconds.
	ExpiresIn int `json:"ExpiresIn,omitempty"`

	// TokenType is always "Bearer".
	TokenType string `json:"TokenType,omitempty"`
}

// InitiateAuthRequest is the InitiateAuth request body.
type InitiateAuthRequest struct {
	AuthFlow       AuthFlow          `json:"AuthFlow"`
	ClientId       string            `json:"ClientId"`
	AuthParameters map[string]string `json:"AuthParameters"`
}

// InitiateAuthResponse is the InitiateAuth response body. A challenge response carries
// ChallengeName instead of AuthenticationResult.
type InitiateAuthResponse struct {
	AuthenticationResult *AuthenticationResult `json:"AuthenticationResult,omitempty"`
	ChallengeName        string                `json:"ChallengeName,omitempty"`
	Session              string                `json:"Session,omitempty"`
}

// GlobalSignOutRequest is the GlobalSignOut request body.
type GlobalSignOutRequest struct {
	AccessToken string `json:"AccessToken"`
}

// ErrorResponse is the body of a non-2xx response.
type ErrorResponse struct {
	Type    string `json:"__type"`
	Message string `json:"message,omitempty"`
}

// Auth parameter names.
const (
	ParamUsername     = "USERNAME"
	ParamPassword     = "PASSWORD"
	ParamRefreshToken = "REFRESH_TOKEN"
)
