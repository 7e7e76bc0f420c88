package idp

import (
	"fmt"
	"time"

	"github.com/dgellow/grant-intake/internal/identity"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"golang.org/x/oauth2"
)

// signatureAlgorithms accepted when reading token claims.
var signatureAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.HS256, jose.HS384, jose.HS512,
	jose.EdDSA,
}

type tokenClaims struct {
	jwt.Claims
	Email string `json:"email"`
}

// readClaims decodes JWT claims without verifying the signature. The claims
// only seed the minimal profile; the backend validates the bearer token on
// every call.
func readClaims(raw string) (*tokenClaims, error) {
	tok, err := jwt.ParseSigned(raw, signatureAlgorithms)
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	var claims tokenClaims
	if err := tok.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return nil, fmt.Errorf("reading token claims: %w", err)
	}
	return &claims, nil
}

// sessionFromToken builds a session from the ID token claims, falling back to
// the access token when the server returned no ID token.
func sessionFromToken(tok *oauth2.Token) (*identity.Session, error) {
	var claims *tokenClaims
	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		c, err := readClaims(idToken)
		if err == nil {
			claims = c
		}
	}
	if claims == nil {
		c, err := readClaims(tok.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("token carries no readable claims: %w", err)
		}
		claims = c
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject claim")
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = claims.Expiry.Time()
	}
	if expiresAt.IsZero() {
		// no expiry anywhere: treat as short lived so it gets refreshed
		expiresAt = time.Now().Add(time.Minute)
	}

	return &identity.Session{
		Subject:     claims.Subject,
		Email:       claims.Email,
		AccessToken: tok.AccessToken,
		ExpiresAt:   expiresAt,
	}, nil
}
