// Package idpfake is an in-process identity provider speaking the same JSON protocol as
// the real one. Tests and the dev server use it to issue signed tokens for local users.
package idpfake

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-invoice-session/idp"
	"github.com/jrsteele09/go-invoice-session/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultIssuer        = "https://idp.invoice.local/pool-1"
	defaultTokenLifetime = time.Hour
	refreshTokenLength   = 32
	targetPrefix         = "AWSCognitoIdentityProviderService."
)

// User is a registered account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Confirmed    bool
}

// Provider implements http.Handler.
type Provider struct {
	mu sync.Mutex

	clientID      string
	issuer        string
	keyID         string
	key           *rsa.PrivateKey
	tokenLifetime time.Duration
	rotateRefresh bool
	latency       time.Duration
	nowFunc       func() time.Time

	users         map[string]*User  // email -> user
	refreshTokens map[string]string // refresh token -> user ID
	calls         map[string]int    // auth flow or action -> count
	outageStatus  int
	malformedIDs  bool
}

type Option func(*Provider)

// WithTokenLifetime sets the declared lifetime of issued ID and access tokens.
func WithTokenLifetime(d time.Duration) Option {
	return func(p *Provider) {
		p.tokenLifetime = d
	}
}

// WithRefreshRotation makes every refresh return a new refresh token and invalidate the old one.
func WithRefreshRotation(rotate bool) Option {
	return func(p *Provider) {
		p.rotateRefresh = rotate
	}
}

// WithLatency delays every response, which widens the window for concurrent callers.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) {
		p.latency = d
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(p *Provider) {
		p.nowFunc = now
	}
}

func WithIssuer(issuer string) Option {
	return func(p *Provider) {
		p.issuer = issuer
	}
}

// WithSigningKey uses key instead of generating a fresh RSA key.
func WithSigningKey(key *rsa.PrivateKey) Option {
	return func(p *Provider) {
		p.key = key
	}
}

// New returns a provider accepting requests for clientID.
func New(clientID string, options ...Option) (*Provider, error) {
	p := &Provider{
		clientID:      clientID,
		issuer:        defaultIssuer,
		keyID:         uuid.New().String(),
		tokenLifetime: defaultTokenLifetime,
		nowFunc:       time.Now,
		users:         make(map[string]*User),
		refreshTokens: make(map[string]string),
		calls:         make(map[string]int),
	}
	for _, opt := range options {
		opt(p)
	}
	if p.key == nil {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		p.key = key
	}
	return p, nil
}

// AddUser registers an account. Unconfirmed accounts are rejected at sign-in with
// UserNotConfirmedException once the password has been checked.
func (p *Provider) AddUser(email, password string, confirmed bool) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	key := strings.ToLower(email)
	if _, exists := p.users[key]; exists {
		return nil, fmt.Errorf("user %s already exists", email)
	}
	u := &User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		Confirmed:    confirmed,
	}
	p.users[key] = u
	return u, nil
}

// RevokeRefreshTokens invalidates every outstanding refresh token.
func (p *Provider) RevokeRefreshTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshTokens = make(map[string]string)
}

// SetOutage makes every request fail with status until called again with 0.
func (p *Provider) SetOutage(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outageStatus = status
}

// IssueMalformedIDTokens makes successful authentications return an ID token that is not a JWT.
func (p *Provider) IssueMalformedIDTokens(malformed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.malformedIDs = malformed
}

// Calls returns how many requests were received for an auth flow
// (idp.PasswordAuthFlow, idp.RefreshTokenAuthFlow) or for idp.ActionGlobalSignOut.
func (p *Provider) Calls(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[name]
}

func (p *Provider) PublicKey() *rsa.PublicKey {
	return &p.key.PublicKey
}

func (p *Provider) Issuer() string {
	return p.issuer
}

func (p *Provider) ClientID() string {
	return p.clientID
}

func (p *Provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, idp.InvalidParameterException, "method not allowed")
		return
	}

	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-r.Context().Done():
			return
		}
	}

	action := strings.TrimPrefix(r.Header.Get("X-Amz-Target"), targetPrefix)
	switch action {
	case idp.ActionInitiateAuth:
		p.handleInitiateAuth(w, r)
	case idp.ActionGlobalSignOut:
		p.handleGlobalSignOut(w, r)
	default:
		writeError(w, http.StatusBadRequest, "UnknownOperationException", fmt.Sprintf("unknown target %q", action))
	}
}

func (p *Provider) handleInitiateAuth(w http.ResponseWriter, r *http.Request) {
	var req idp.InitiateAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, idp.InvalidParameterException, "malformed request body")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[string(req.AuthFlow)]++

	if p.outageStatus != 0 {
		writeError(w, p.outageStatus, idp.InternalErrorException, "service unavailable")
		return
	}
	if req.ClientId != p.clientID {
		writeError(w, http.StatusBadRequest, idp.ResourceNotFoundException, "User pool client does not exist.")
		return
	}

	var (
		result *idp.AuthenticationResult
		err    error
	)
	switch req.AuthFlow {
	case idp.PasswordAuthFlow:
		result, err = p.passwordAuth(req.AuthParameters)
	case idp.RefreshTokenAuthFlow:
		result, err = p.refreshAuth(req.AuthParameters)
	default:
		err = providerError{http.StatusBadRequest, idp.InvalidParameterException, "unsupported auth flow"}
	}
	if err != nil {
		writeProviderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, idp.InitiateAuthResponse{AuthenticationResult: result})
}

func (p *Provider) passwordAuth(params map[string]string) (*idp.AuthenticationResult, error) {
	email, password := params[idp.ParamUsername], params[idp.ParamPassword]
	if email == "" || password == "" {
		return nil, providerError{http.StatusBadRequest, idp.InvalidParameterException, "USERNAME and PASSWORD are required"}
	}

	u, ok := p.users[strings.ToLower(email)]
	if !ok {
		return nil, providerError{http.StatusBadRequest, idp.UserNotFoundException, "User does not exist."}
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, providerError{http.StatusBadRequest, idp.NotAuthorizedException, "Incorrect username or password."}
	}
	if !u.Confirmed {
		return nil, providerError{http.StatusBadRequest, idp.UserNotConfirmedException, "User is not confirmed."}
	}

	refreshToken, err := p.newRefreshToken(u.ID)
	if err != nil {
		return nil, err
	}
	return p.issue(u, utils.Ptr(refreshToken))
}

func (p *Provider) refreshAuth(params map[string]string) (*idp.AuthenticationResult, error) {
	presented := params[idp.ParamRefreshToken]
	userID, ok := p.refreshTokens[presented]
	if presented == "" || !ok {
		return nil, providerError{http.StatusBadRequest, idp.NotAuthorizedException, "Invalid Refresh Token"}
	}

	u := p.userByID(userID)
	if u == nil {
		delete(p.refreshTokens, presented)
		return nil, providerError{http.StatusBadRequest, idp.NotAuthorizedException, "Invalid Refresh Token"}
	}

	var rotated *string
	if p.rotateRefresh {
		delete(p.refreshTokens, presented)
		next, err := p.newRefreshToken(u.ID)
		if err != nil {
			return nil, err
		}
		rotated = utils.Ptr(next)
	}
	return p.issue(u, rotated)
}

func (p *Provider) handleGlobalSignOut(w http.ResponseWriter, r *http.Request) {
	var req idp.GlobalSignOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, idp.InvalidParameterException, "malformed request body")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[idp.ActionGlobalSignOut]++

	if p.outageStatus != 0 {
		writeError(w, p.outageStatus, idp.InternalErrorException, "service unavailable")
		return
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(req.AccessToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return &p.key.PublicKey, nil
	}, jwt.WithTimeFunc(p.nowFunc), jwt.WithIssuer(p.issuer))
	if err != nil {
		writeError(w, http.StatusBadRequest, idp.NotAuthorizedException, "Access Token has been revoked")
		return
	}

	sub, _ := claims["sub"].(string)
	for token, userID := range p.refreshTokens {
		if userID == sub {
			delete(p.refreshTokens, token)
		}
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (p *Provider) issue(u *User, refreshToken *string) (*idp.AuthenticationResult, error) {
	now := p.nowFunc()
	exp := now.Add(p.tokenLifetime)

	idToken, err := p.sign(jwt.MapClaims{
		"iss":       p.issuer,
		"sub":       u.ID,
		"aud":       p.clientID,
		"email":     u.Email,
		"token_use": "id",
		"auth_time": now.Unix(),
		"iat":       now.Unix(),
		"exp":       exp.Unix(),
		"jti":       uuid.New().String(),
	})
	if err != nil {
		return nil, err
	}
	if p.malformedIDs {
		idToken = "not-a-jwt"
	}

	accessToken, err := p.sign(jwt.MapClaims{
		"iss":       p.issuer,
		"sub":       u.ID,
		"client_id": p.clientID,
		"username":  u.Email,
		"token_use": "access",
		"iat":       now.Unix(),
		"exp":       exp.Unix(),
		"jti":       uuid.New().String(),
	})
	if err != nil {
		return nil, err
	}

	return &idp.AuthenticationResult{
		IdToken:      utils.Ptr(idToken),
		AccessToken:  utils.Ptr(accessToken),
		RefreshToken: refreshToken,
		ExpiresIn:    int(p.tokenLifetime.Seconds()),
		TokenType:    "Bearer",
	}, nil
}

func (p *Provider) sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = p.keyID
	signed, err := token.SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (p *Provider) newRefreshToken(userID string) (string, error) {
	tokenBytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)
	p.refreshTokens[token] = userID
	return token, nil
}

func (p *Provider) userByID(id string) *User {
	for _, u := range p.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

type providerError struct {
	status  int
	errType string
	message string
}

func (e providerError) Error() string {
	return e.errType + ": " + e.message
}

func writeProviderError(w http.ResponseWriter, err error) {
	var pe providerError
	if errors.As(err, &pe) {
		writeError(w, pe.status, pe.errType, pe.message)
		return
	}
	writeError(w, http.StatusInternalServerError, idp.InternalErrorException, err.Error())
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, idp.ErrorResponse{Type: errType, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
