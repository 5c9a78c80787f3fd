package sandbox

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenTTL bounds the lifetime of a per-scan bearer token. The sandbox is
// torn down well before this elapses in normal operation; it exists as a
// backstop against a leaked token outliving its container.
const tokenTTL = 24 * time.Hour

// newSigningKey returns a cryptographically strong, per-scan secret. Strix never
// persists it outside the process; it is minted fresh for every Create.
func newSigningKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating sandbox signing key: %w", err)
	}
	return key, nil
}

type claims struct {
	ScanID string `json:"scan_id"`
	jwt.RegisteredClaims
}

// mintToken signs a bearer token scoped to scanID, verified by the
// in-sandbox worker on every request except /health.
func mintToken(scanID string, key []byte) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		ScanID: scanID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	})
	return tok.SignedString(key)
}

// VerifyToken checks a bearer token against key and returns the scan ID it
// was scoped to. Used by the in-sandbox worker (cmd/strix-worker).
func VerifyToken(token string, key []byte) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return "", fmt.Errorf("parsing bearer token: %w", err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("invalid bearer token")
	}
	return c.ScanID, nil
}
