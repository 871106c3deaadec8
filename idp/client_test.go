package idp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-invoice-session/idp"
	"github.com/jrsteele09/go-invoice-session/idp/idpfake"
	apperrors "github.com/jrsteele09/go-invoice-session/internal/errors"
	"github.com/jrsteele09/go-invoice-session/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "invoice-web"
	testEmail    = "owner@acme.test"
	testPassword = "correct horse"
)

func setupProvider(t *testing.T, options ...idpfake.Option) (*idpfake.Provider, *idp.Client) {
	t.Helper()

	provider, err := idpfake.New(testClientID, options...)
	require.NoError(t, err)
	_, err = provider.AddUser(testEmail, testPassword, true)
	require.NoError(t, err)

	server := httptest.NewServer(provider)
	t.Cleanup(server.Close)

	client, err := idp.NewClient(server.URL, testClientID)
	require.NoError(t, err)
	return provider, client
}

func TestNewClient_RequiresEndpointAndClientID(t *testing.T) {
	_, err := idp.NewClient("", testClientID)
	require.Error(t, err)

	_, err = idp.NewClient("https://idp.example.com", " ")
	require.Error(t, err)
}

func TestClient_InitiatePasswordAuth(t *testing.T) {
	provider, client := setupProvider(t)

	t.Run("valid credentials", func(t *testing.T) {
		result, err := client.InitiatePasswordAuth(context.Background(), testEmail, testPassword)
		require.NoError(t, err)
		assert.NotEmpty(t, utils.Value(result.IdToken))
		assert.NotEmpty(t, utils.Value(result.AccessToken))
		assert.NotEmpty(t, utils.Value(result.RefreshToken))
		assert.Equal(t, 3600, result.ExpiresIn)
		assert.Equal(t, 1, provider.Calls(string(idp.PasswordAuthFlow)))
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := client.InitiatePasswordAuth(context.Background(), testEmail, "wrong")
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

		var providerErr *idp.Error
		require.ErrorAs(t, err, &providerErr)
		assert.Equal(t, idp.NotAuthorizedException, providerErr.Type)
		assert.Equal(t, http.StatusBadRequest, providerErr.StatusCode)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := client.InitiatePasswordAuth(context.Background(), "nobody@acme.test", testPassword)
		require.ErrorIs(t, err, apperrors.ErrUserNotFound)
	})

	t.Run("unconfirmed user", func(t *testing.T) {
		_, err := provider.AddUser("new@acme.test", testPassword, false)
		require.NoError(t, err)
		_, err = client.InitiatePasswordAuth(context.Background(), "new@acme.test", testPassword)
		require.ErrorIs(t, err, apperrors.ErrUserNotConfirmed)
	})
}

func TestClient_InitiateRefreshAuth(t *testing.T) {
	t.Run("without rotation the refresh token is omitted", func(t *testing.T) {
		_, client := setupProvider(t)
		signIn, err := client.InitiatePasswordAuth(context.Background(), testEmail, testPassword)
		require.NoError(t, err)

		refreshed, err := client.InitiateRefreshAuth(context.Background(), utils.Value(signIn.RefreshToken))
		require.NoError(t, err)
		assert.Nil(t, refreshed.RefreshToken)
		assert.NotEmpty(t, utils.Value(refreshed.IdToken))
	})

	t.Run("with rotation the old token stops working", func(t *testing.T) {
		_, client := setupProvider(t, idpfake.WithRefreshRotation(true))
		signIn, err := client.InitiatePasswordAuth(context.Background(), testEmail, testPassword)
		require.NoError(t, err)

		refreshed, err := client.InitiateRefreshAuth(context.Background(), utils.Value(signIn.RefreshToken))
		require.NoError(t, err)
		require.NotEmpty(t, utils.Value(refreshed.RefreshToken))
		assert.NotEqual(t, utils.Value(signIn.RefreshToken), utils.Value(refreshed.RefreshToken))

		_, err = client.InitiateRefreshAuth(context.Background(), utils.Value(signIn.RefreshToken))
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})

	t.Run("revoked", func(t *testing.T) {
		provider, client := setupProvider(t)
		signIn, err := client.InitiatePasswordAuth(context.Background(), testEmail, testPassword)
		require.NoError(t, err)

		provider.RevokeRefreshTokens()
		_, err = client.InitiateRefreshAuth(context.Background(), utils.Value(signIn.RefreshToken))
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})
}

func TestClient_GlobalSignOut(t *testing.T) {
	provider, client := setupProvider(t)
	signIn, err := client.InitiatePasswordAuth(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	require.NoError(t, client.GlobalSignOut(context.Background(), utils.Value(signIn.AccessToken)))
	assert.Equal(t, 1, provider.Calls(idp.ActionGlobalSignOut))

	_, err = client.InitiateRefreshAuth(context.Background(), utils.Value(signIn.RefreshToken))
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials, "global sign out revokes refresh tokens")

	err = client.GlobalSignOut(context.Background(), "garbage")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestClient_ErrorClassification(t *testing.T) {
	t.Run("no response is transient", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		client, err := idp.NewClient(url, testClientID)
		require.NoError(t, err)
		_, err = client.InitiateRefreshAuth(context.Background(), "rt")
		require.ErrorIs(t, err, apperrors.ErrTransient)
	})

	t.Run("server error is transient", func(t *testing.T) {
		provider, client := setupProvider(t)
		provider.SetOutage(http.StatusServiceUnavailable)
		_, err := client.InitiateRefreshAuth(context.Background(), "rt")
		require.ErrorIs(t, err, apperrors.ErrTransient)
	})

	t.Run("namespaced type", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "AWSCognitoIdentityProviderService.InitiateAuth", r.Header.Get("X-Amz-Target"))
			assert.Equal(t, "application/x-amz-json-1.1", r.Header.Get("Content-Type"))
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"__type":  "com.amazonaws.cognito#UserNotConfirmedException",
				"Message": "User is not confirmed.",
			})
		}))
		t.Cleanup(server.Close)

		client, err := idp.NewClient(server.URL, testClientID)
		require.NoError(t, err)
		_, err = client.InitiatePasswordAuth(context.Background(), testEmail, testPassword)
		require.ErrorIs(t, err, apperrors.ErrUserNotConfirmed)
		assert.Contains(t, err.Error(), "User is not confirmed.")
	})

	t.Run("unknown type is a provider error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"__type":"PasswordResetRequiredException"}`))
		}))
		t.Cleanup(server.Close)

		client, err := idp.NewClient(server.URL, testClientID)
		require.NoError(t, err)
		_, err = client.InitiatePasswordAuth(context.Background(), testEmail, testPassword)
		require.ErrorIs(t, err, apperrors.ErrProvider)
	})

	t.Run("challenge instead of tokens", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ChallengeName":"NEW_PASSWORD_REQUIRED","Session":"abc"}`))
		}))
		t.Cleanup(server.Close)

		client, err := idp.NewClient(server.URL, testClientID)
		require.NoError(t, err)
		_, err = client.InitiatePasswordAuth(context.Background(), testEmail, testPassword)
		require.ErrorIs(t, err, apperrors.ErrProvider)
		assert.Contains(t, err.Error(), "NEW_PASSWORD_REQUIRED")
	})
}
