package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-invoice-session/internal/errors"
	"github.com/jrsteele09/go-invoice-session/internal/utils"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const maxErrorBody = 64 << 10

// Client talks to the identity provider's JSON endpoint.
type Client struct {
	endpoint   string
	clientID   string
	userAgent  string
	httpClient *http.Client
	logger     zerolog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// NewClient returns a client for the provider at endpoint, authenticating as clientID.
func NewClient(endpoint, clientID string, options ...ClientOption) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("[idp.NewClient] endpoint is required")
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, errors.New("[idp.NewClient] client id is required")
	}

	c := &Client{
		endpoint:  endpoint,
		clientID:  clientID,
		userAgent: "go-invoice-session/1.0",
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return c, nil
}

// InitiatePasswordAuth authenticates a user with email and password.
func (c *Client) InitiatePasswordAuth(ctx context.Context, username, password string) (*AuthenticationResult, error) {
	return c.initiateAuth(ctx, PasswordAuthFlow, map[string]string{
		ParamUsername: username,
		ParamPassword: password,
	})
}

// InitiateRefreshAuth exchanges a refresh credential for a new token bundle.
func (c *Client) InitiateRefreshAuth(ctx context.Context, refreshToken string) (*AuthenticationResult, error) {
	return c.initiateAuth(ctx, RefreshTokenAuthFlow, map[string]string{
		ParamRefreshToken: refreshToken,
	})
}

// GlobalSignOut asks the provider to invalidate every token issued for the access token's user.
func (c *Client) GlobalSignOut(ctx context.Context, accessToken string) error {
	return c.call(ctx, ActionGlobalSignOut, GlobalSignOutRequest{AccessToken: accessToken}, nil)
}

func (c *Client) initiateAuth(ctx context.Context, flow AuthFlow, params map[string]string) (*AuthenticationResult, error) {
	var resp InitiateAuthResponse
	err := c.call(ctx, ActionInitiateAuth, InitiateAuthRequest{
		AuthFlow:       flow,
		ClientId:       c.clientID,
		AuthParameters: params,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.AuthenticationResult == nil {
		return nil, fmt.Errorf("%w: %s returned challenge %q instead of tokens", apperrors.ErrProvider, flow, resp.ChallengeName)
	}
	result := resp.AuthenticationResult
	if utils.Value(result.IdToken) == "" || utils.Value(result.AccessToken) == "" {
		return nil, fmt.Errorf("%w: %s response is missing tokens", apperrors.ErrProvider, flow)
	}
	if result.ExpiresIn <= 0 {
		return nil, fmt.Errorf("%w: %s response declared lifetime %d", apperrors.ErrProvider, flow, result.ExpiresIn)
	}

	c.logger.Debug().
		Str("flow", string(flow)).
		Int("expires_in", result.ExpiresIn).
		Bool("has_refresh_token", utils.Value(result.RefreshToken) != "").
		Msg("authentication result received")
	return result, nil
}

// call posts body under action. A failure to obtain any HTTP response is reported as
// ErrTransient; an explicit error response is returned as *Error.
func (c *Client) call(ctx context.Context, action string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "Client.call json.Marshal")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "Client.call http.NewRequest")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Amz-Target", targetPrefix+action)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("action", action).Msg("identity provider unreachable")
		return fmt.Errorf("%w: %s: %w", apperrors.ErrTransient, action, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().Str("action", action).Int("status_code", resp.StatusCode).Msg("identity provider responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var errResp ErrorResponse
		_ = json.Unmarshal(respBody, &errResp)
		providerErr := newError(resp.StatusCode, errResp)
		c.logger.Info().
			Str("action", action).
			Str("error_type", providerErr.Type).
			Int("status_code", resp.StatusCode).
			Msg("identity provider rejected request")
		return providerErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %w", apperrors.ErrProvider, action, err)
	}
	return nil
}
