package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the identity fields read from an ID token.
type Claims struct {
	Subject   string
	Email     string
	Issuer    string
	TokenUse  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// UnverifiedClaims decodes the payload of a JWT WITHOUT checking its signature.
// The result is for display only and must never be used to decide whether a caller is
// authorised; signature verification belongs to the API that receives the token.
func UnverifiedClaims(rawToken string) (*Claims, error) {
	token, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrMalformedToken)
	}

	claims := &Claims{}
	if claims.Subject, err = mapClaims.GetSubject(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	if claims.Issuer, err = mapClaims.GetIssuer(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	claims.Email, _ = mapClaims["email"].(string)
	claims.TokenUse, _ = mapClaims["token_use"].(string)
	return claims, nil
}
