package apiclient

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

// TokenGetter returns the bearer token to attach, or "" when there is none.
type TokenGetter interface {
	Token(ctx context.Context) (string, error)
}

// BearerTransport asks Tokens for a token before every request and attaches it as an
// Authorization header when one is returned. Without a token the request is sent as is.
type BearerTransport struct {
	Tokens TokenGetter
	Base   http.RoundTripper
}

func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.Tokens.Token(req.Context())
	if err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, errors.Wrap(err, "BearerTransport.RoundTrip token lookup")
	}

	if token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return t.base().RoundTrip(req)
}

func (t *BearerTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
