package publish

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonathan/partner-intake/internal/config"
)

// AccessCodeLength is the length of generated access codes.
const AccessCodeLength = 8

// accessCodeAlphabet leaves out characters that are easy to misread (0/O, 1/I/L).
const accessCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// LinkClaims are the claims carried by a secure-link token.
type LinkClaims struct {
	RunID string `json:"run_id"`
	File  string `json:"file"`
	jwt.RegisteredClaims
}

// SecureLink is an issued partner link. AccessCode is plaintext and must only reach staff
// and the final partner email; the manifest stores CodeHash.
type SecureLink struct {
	URL        string
	Token      string
	AccessCode string
	CodeHash   string
	ExpiresAt  time.Time
}

// LinkIssuer signs and verifies secure-link tokens.
type LinkIssuer struct {
	links   *config.LinkConfig
	codes   *config.AccessCodeConfig
	baseURL string
	now     func() time.Time
}

// NewLinkIssuer creates a LinkIssuer. When baseURL is empty, issued links point at the file:// URL
// of the partner copy and the token is kept only for verification.
func NewLinkIssuer(links *config.LinkConfig, codes *config.AccessCodeConfig, baseURL string, now func() time.Time) *LinkIssuer {
	if now == nil {
		now = time.Now
	}
	return &LinkIssuer{links: links, codes: codes, baseURL: strings.TrimRight(baseURL, "/"), now: now}
}

// Issue creates a link to the partner-accessible report for runID.
func (i *LinkIssuer) Issue(runID string, upload *Upload) (*SecureLink, error) {
	if upload == nil || upload.Destination != DestinationPartner {
		return nil, fmt.Errorf("secure links are only issued for partner-accessible files")
	}

	now := i.now()
	expiresAt := now.Add(time.Duration(i.links.ExpirationHours) * time.Hour)
	claims := &LinkClaims{
		RunID: runID,
		File:  filepath.Base(upload.Path),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   runID,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.links.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign link token: %w", err)
	}

	code, err := GenerateAccessCode()
	if err != nil {
		return nil, err
	}
	hash, err := i.codes.HashAccessCode(code)
	if err != nil {
		return nil, err
	}

	link := upload.URL
	if i.baseURL != "" {
		link = i.baseURL + "/links/" + token
	}
	return &SecureLink{URL: link, Token: token, AccessCode: code, CodeHash: hash, ExpiresAt: expiresAt}, nil
}

// Verify validates a link token and returns its claims.
func (i *LinkIssuer) Verify(tokenString string) (*LinkClaims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token string is empty")
	}

	claims := &LinkClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(i.links.Secret), nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("invalid token signature: %w", err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("token expired: %w", err)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("malformed token: %w", err)
		}
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	return claims, nil
}

// VerifyAccessCode checks a partner-supplied code against the stored hash.
func (i *LinkIssuer) VerifyAccessCode(code, hash string) bool {
	return i.codes.VerifyAccessCode(strings.ToUpper(strings.TrimSpace(code)), hash)
}

// GenerateAccessCode returns a random access code from crypto/rand.
func GenerateAccessCode() (string, error) {
	limit := big.NewInt(int64(len(accessCodeAlphabet)))
	var sb strings.Builder
	for n := 0; n < AccessCodeLength; n++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate access code: %w", err)
		}
		sb.WriteByte(accessCodeAlphabet[idx.Int64()])
	}
	return sb.String(), nil
}
