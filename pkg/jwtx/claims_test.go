package jwtx_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/aussiebroadwan/spaauth/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.Claims) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signer, err := jwtx.NewRS256Signer("test-key", key)
	require.NoError(t, err)

	raw, err := signer.Sign(claims)
	require.NoError(t, err)
	return raw
}

func TestDecode(t *testing.T) {
	now := time.Now().UTC()
	raw := signed(t, jwt.MapClaims{
		"iss":            "https://id.example.com",
		"sub":            "user-123",
		"aud":            "client-1",
		"exp":            now.Add(time.Hour).Unix(),
		"email":          "j@x.com",
		"username":       "jane",
		"given_name":     "Jane",
		"family_name":    "Doe",
		"tenant_domain":  "carbon.super",
		"custom_claim":   "kept",
		"email_verified": true,
	})

	claims, err := jwtx.Decode(raw)
	require.NoError(t, err)

	require.Equal(t, "user-123", claims.Subject)
	require.Equal(t, "j@x.com", claims.Email)
	require.True(t, claims.EmailVerified)
	require.Equal(t, "jane", claims.LoginName())
	require.Equal(t, "Jane Doe", claims.DisplayName())
	require.Equal(t, "carbon.super", claims.TenantDomain)
	require.Equal(t, "kept", claims.Raw["custom_claim"])
	require.Equal(t, jwt.ClaimStrings{"client-1"}, claims.Audience)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := jwtx.Decode("not.a.jwt")
	require.ErrorIs(t, err, jwtx.ErrMalformed)

	_, err = jwtx.Decode("")
	require.ErrorIs(t, err, jwtx.ErrMalformed)
}

func TestNameFallbacks(t *testing.T) {
	c := &jwtx.IDTokenClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-1"}}
	require.Equal(t, "sub-1", c.DisplayName())
	require.Equal(t, "sub-1", c.LoginName())

	c.PreferredUsername = "jd"
	require.Equal(t, "jd", c.DisplayName())
	require.Equal(t, "jd", c.LoginName())

	c.Name = "Jane D."
	require.Equal(t, "Jane D.", c.DisplayName())
}

func TestValidateIssuer(t *testing.T) {
	c := &jwtx.IDTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "https://id.example.com",
		},
	}

	t.Run("matching issuer", func(t *testing.T) {
		require.NoError(t, c.ValidateIssuer("https://id.example.com"))
	})

	t.Run("empty expected issuer", func(t *testing.T) {
		require.NoError(t, c.ValidateIssuer(""))
	})

	t.Run("mismatched issuer", func(t *testing.T) {
		require.ErrorIs(t, c.ValidateIssuer("https://evil.example.com"), jwtx.ErrIssuer)
	})
}

func TestValidateAudience(t *testing.T) {
	c := &jwtx.IDTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience: []string{"client-1", "client-2"},
		},
	}

	require.NoError(t, c.ValidateAudience([]string{"client-2"}))
	require.NoError(t, c.ValidateAudience(nil))
	require.ErrorIs(t, c.ValidateAudience([]string{"client-3"}), jwtx.ErrAudience)
}

func TestValidateExpiryWithLeeway(t *testing.T) {
	now := time.Now().UTC()

	t.Run("valid with leeway", func(t *testing.T) {
		claims := &jwtx.IDTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(-10 * time.Second)),
			},
		}
		require.NoError(t, claims.ValidateExpiryWithLeeway(30*time.Second))
	})

	t.Run("expired beyond leeway", func(t *testing.T) {
		claims := &jwtx.IDTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(-2 * time.Minute)),
			},
		}
		require.ErrorIs(t, claims.ValidateExpiryWithLeeway(30*time.Second), jwtx.ErrExpired)
	})

	t.Run("not yet valid", func(t *testing.T) {
		claims := &jwtx.IDTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				NotBefore: jwt.NewNumericDate(now.Add(time.Minute)),
			},
		}
		require.ErrorIs(t, claims.ValidateExpiryWithLeeway(0), jwtx.ErrNotYetValid)
	})

	t.Run("no exp or nbf", func(t *testing.T) {
		require.NoError(t, (&jwtx.IDTokenClaims{}).ValidateExpiryWithLeeway(0))
	})
}
