package jwtx

import (
	"crypto/rsa"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// RS256Signer signs tokens with an RSA key. The SDK never signs anything in
// production; the signer backs the fake provider in authsdktest.
type RS256Signer struct {
	kid string
	key *rsa.PrivateKey
}

// NewRS256Signer wraps an RSA private key.
func NewRS256Signer(kid string, key *rsa.PrivateKey) (*RS256Signer, error) {
	if key == nil {
		return nil, errors.New("jwtx: nil RSA key")
	}
	return &RS256Signer{kid: kid, key: key}, nil
}

func (s *RS256Signer) KID() string { return s.kid }

// Sign turns claims into a compact RS256 JWT with the kid header set.
func (s *RS256Signer) Sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// PublicJWKS returns the key set to publish for verifiers.
func (s *RS256Signer) PublicJWKS() JWKS {
	return JWKS{Keys: []JWK{NewRSAJWK(s.kid, "sig", jwt.SigningMethodRS256.Alg(), &s.key.PublicKey)}}
}
