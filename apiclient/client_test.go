package apiclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-invoice-session/apiclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type staticTokens struct {
	token string
	err   error
	calls atomic.Int32
}

func (s *staticTokens) Token(context.Context) (string, error) {
	s.calls.Add(1)
	return s.token, s.err
}

// tokenSourceFunc adapts a function to oauth2.TokenSource.
type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) { return f() }

func newAPI(t *testing.T) (*httptest.Server, *atomic.Value) {
	t.Helper()

	var lastAuth atomic.Value
	lastAuth.Store("")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/invoices/{id}", func(w http.ResponseWriter, r *http.Request) {
		lastAuth.Store(r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") != "Bearer good" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"Missing Authorization header"}`))
			return
		}
		if r.PathValue("id") != "inv-1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not_found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(apiclient.Invoice{
			ID:       "inv-1",
			Number:   "INV-0001",
			Status:   apiclient.InvoiceSent,
			Currency: "GBP",
			Total:    12500,
			IssuedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		})
	})
	mux.HandleFunc("GET /api/customers", func(w http.ResponseWriter, r *http.Request) {
		lastAuth.Store(r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]apiclient.Customer{{ID: "c-1", Name: "Acme"}})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &lastAuth
}

func TestNewClient_Validation(t *testing.T) {
	_, err := apiclient.NewClient("", &staticTokens{})
	require.Error(t, err)

	_, err = apiclient.NewClient("http://localhost/api", nil)
	require.Error(t, err)
}

func TestClient_AttachesBearerToken(t *testing.T) {
	server, lastAuth := newAPI(t)
	tokens := &staticTokens{token: "good"}
	client, err := apiclient.NewClient(server.URL+"/api/", tokens)
	require.NoError(t, err)

	inv, err := client.GetInvoice(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "INV-0001", inv.Number)
	assert.Equal(t, int64(12500), inv.Total)
	assert.Equal(t, "Bearer good", lastAuth.Load())
	assert.Equal(t, int32(1), tokens.calls.Load())

	_, err = client.GetInvoice(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), tokens.calls.Load())
}

func TestClient_ProceedsWithoutToken(t *testing.T) {
	server, lastAuth := newAPI(t)
	client, err := apiclient.NewClient(server.URL+"/api", &staticTokens{})
	require.NoError(t, err)

	customers, err := client.ListCustomers(context.Background())
	require.NoError(t, err)
	assert.Len(t, customers, 1)
	assert.Equal(t, "", lastAuth.Load())

	_, err = client.GetInvoice(context.Background(), "inv-1")
	require.ErrorIs(t, err, apiclient.ErrUnauthorized)

	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "unauthorized", apiErr.Code)
	assert.Equal(t, "Missing Authorization header", apiErr.Description)
}

func TestClient_TokenLookupErrorAbortsRequest(t *testing.T) {
	server, lastAuth := newAPI(t)
	lookupErr := errors.New("identity provider unreachable")
	client, err := apiclient.NewClient(server.URL+"/api", &staticTokens{err: lookupErr})
	require.NoError(t, err)

	_, err = client.ListCustomers(context.Background())
	require.ErrorIs(t, err, lookupErr)
	assert.Equal(t, "", lastAuth.Load())
}

func TestClient_NotFound(t *testing.T) {
	server, _ := newAPI(t)
	client, err := apiclient.NewClient(server.URL+"/api", &staticTokens{token: "good"})
	require.NoError(t, err)

	_, err = client.GetInvoice(context.Background(), "missing")
	require.ErrorIs(t, err, apiclient.ErrNotFound)

	_, err = client.GetInvoice(context.Background(), "")
	require.Error(t, err)
}

func TestClient_WithTokenSource(t *testing.T) {
	server, lastAuth := newAPI(t)
	errNoSession := errors.New("not authenticated")

	t.Run("token present", func(t *testing.T) {
		ts := tokenSourceFunc(func() (*oauth2.Token, error) {
			return &oauth2.Token{AccessToken: "good", TokenType: "Bearer"}, nil
		})
		client, err := apiclient.NewClient(server.URL+"/api", nil, apiclient.WithTokenSource(ts))
		require.NoError(t, err)

		_, err = client.GetInvoice(context.Background(), "inv-1")
		require.NoError(t, err)
		assert.Equal(t, "Bearer good", lastAuth.Load())
	})

	t.Run("no token aborts", func(t *testing.T) {
		lastAuth.Store("untouched")
		ts := tokenSourceFunc(func() (*oauth2.Token, error) {
			return nil, errNoSession
		})
		client, err := apiclient.NewClient(server.URL+"/api", nil, apiclient.WithTokenSource(ts))
		require.NoError(t, err)

		_, err = client.ListCustomers(context.Background())
		require.ErrorIs(t, err, errNoSession)
		assert.Equal(t, "untouched", lastAuth.Load())
	})
}

func TestBearerTransport_DoesNotMutateRequest(t *testing.T) {
	server, _ := newAPI(t)
	transport := &apiclient.BearerTransport{Tokens: &staticTokens{token: "good"}}

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/invoices/inv-1", nil)
	require.NoError(t, err)

	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, req.Header.Get("Authorization"))
}
