package main

import (
	"bytes"
	"context"
	"crypto"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jrsteele09/go-invoice-session/apiauth"
	"github.com/jrsteele09/go-invoice-session/apiclient"
	"github.com/jrsteele09/go-invoice-session/idp/idpfake"
	"github.com/jrsteele09/go-invoice-session/internal/devapi"
	"github.com/jrsteele09/go-invoice-session/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "owner@acme.test"
	testPassword = "correct horse"
)

type testEnv struct {
	idpURL   string
	apiURL   string
	storeDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	provider, err := idpfake.New("invoice-web")
	require.NoError(t, err)
	_, err = provider.AddUser(testEmail, testPassword, true)
	require.NoError(t, err)
	idpServer := httptest.NewServer(provider)
	t.Cleanup(idpServer.Close)

	verifier, err := apiauth.NewVerifier(provider.Issuer(), "invoice-web", []crypto.PublicKey{provider.PublicKey()})
	require.NoError(t, err)
	apiServer := httptest.NewServer(devapi.New(verifier, zerolog.Nop()))
	t.Cleanup(apiServer.Close)

	return &testEnv{
		idpURL:   idpServer.URL,
		apiURL:   apiServer.URL,
		storeDir: t.TempDir(),
	}
}

func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args,
		"--env-file", "does-not-exist.env",
		"--idp-endpoint", e.idpURL,
		"--client-id", "invoice-web",
		"--store", "file",
		"--store-path", e.storeDir,
		"--api-url", e.apiURL,
		"--log-level", "disabled",
	))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInvoicectl_SessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, testPassword+"\n", "login", "--email", testEmail)
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as "+testEmail)

	out, err = env.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, testEmail)

	out, err = env.run(t, "", "token")
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	claims, err := session.UnverifiedClaims(token)
	require.NoError(t, err)
	assert.Equal(t, testEmail, claims.Email)

	out, err = env.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "state:         valid")
	assert.Contains(t, out, "refreshable:   true")

	out, err = env.run(t, "", "api", "get", "invoices")
	require.NoError(t, err)
	assert.Contains(t, out, "INV-0001")

	out, err = env.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	_, err = env.run(t, "", "token")
	require.ErrorIs(t, err, errNotSignedIn)

	_, err = env.run(t, "", "whoami")
	require.ErrorIs(t, err, errNotSignedIn)

	out, err = env.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "signed-out")
}

func TestInvoicectl_LoginRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "", "login", "--email", testEmail, "--password", "wrong")
	require.ErrorIs(t, err, session.ErrInvalidCredentials)
	assert.Contains(t, err.Error(), "sign-in rejected")

	_, err = env.run(t, "", "whoami")
	require.ErrorIs(t, err, errNotSignedIn)
}

func TestInvoicectl_APIWhenSignedOut(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "", "api", "get", "business")
	require.ErrorIs(t, err, apiclient.ErrUnauthorized)

	_, err = env.run(t, "", "api", "get", "business", "--require-auth")
	require.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestInvoicectl_WhoamiJSON(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "", "login", "--email", testEmail, "--password", testPassword)
	require.NoError(t, err)

	out, err := env.run(t, "", "whoami", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"email": "`+testEmail+`"`)
}
