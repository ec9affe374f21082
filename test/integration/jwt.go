package integration

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"maps"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testKeyID = "itest-key-1"

// TestClaims holds the configurable claims for generated test tokens. Extra
// entries are merged last, so a test can override any standard claim, for
// example to force a wrong audience.
type TestClaims struct {
	SubjectID string
	TenantID  string
	Email     string
	Roles     []string
	Extra     map[string]any
}

// tokenIssuer signs test JWTs with a throwaway RSA key and serves the
// matching JWKS document from its own httptest server.
type tokenIssuer struct {
	privateKey *rsa.PrivateKey
	jwksServer *httptest.Server
	issuer     string
	audience   string
}

func newTokenIssuer(t *testing.T) *tokenIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}

	jwk := map[string]any{
		"kid": testKeyID,
		"kty": "RSA",
		"alg": "RS256",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]any{jwk}})
	}))
	t.Cleanup(srv.Close)

	return &tokenIssuer{
		privateKey: key,
		jwksServer: srv,
		issuer:     "https://auth.test.calade.dev",
		audience:   "reportdeck-test",
	}
}

// GenerateToken creates a signed token valid for one hour.
func (ti *tokenIssuer) GenerateToken(claims TestClaims) string {
	now := time.Now()
	return ti.sign(claims, now, now.Add(time.Hour))
}

// GenerateExpiredToken creates a token that expired well past any
// verification leeway.
func (ti *tokenIssuer) GenerateExpiredToken(claims TestClaims) string {
	now := time.Now()
	return ti.sign(claims, now.Add(-2*time.Hour), now.Add(-time.Hour))
}

// GenerateTokenWithKeyID creates an otherwise valid token whose kid header
// names a key the JWKS document does not carry.
func (ti *tokenIssuer) GenerateTokenWithKeyID(claims TestClaims, kid string) string {
	now := time.Now()
	return ti.signWithKid(claims, now, now.Add(time.Hour), kid)
}

func (ti *tokenIssuer) sign(claims TestClaims, issuedAt, expiresAt time.Time) string {
	return ti.signWithKid(claims, issuedAt, expiresAt, testKeyID)
}

func (ti *tokenIssuer) signWithKid(claims TestClaims, issuedAt, expiresAt time.Time, kid string) string {
	mapClaims := jwt.MapClaims{
		"iss":       ti.issuer,
		"aud":       ti.audience,
		"iat":       jwt.NewNumericDate(issuedAt),
		"exp":       jwt.NewNumericDate(expiresAt),
		"sub":       claims.SubjectID,
		"tenant_id": claims.TenantID,
		"email":     claims.Email,
	}
	if len(claims.Roles) > 0 {
		roles := make([]any, len(claims.Roles))
		for i, r := range claims.Roles {
			roles[i] = r
		}
		mapClaims["roles"] = roles
	}
	maps.Copy(mapClaims, claims.Extra)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, mapClaims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(ti.privateKey)
	if err != nil {
		panic("sign test JWT: " + err.Error())
	}
	return signed
}

func (ti *tokenIssuer) JWKSURL() string { return ti.jwksServer.URL }

func (ti *tokenIssuer) Issuer() string { return ti.issuer }

func (ti *tokenIssuer) Audience() string { return ti.audience }
