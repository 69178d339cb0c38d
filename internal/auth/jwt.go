// Package auth provides token issuance and verification, the bearer-token
// middleware, password hashing and the optional GitHub sign-in flow.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. Client registers or logs in with email + password (or via GitHub)
//  2. Server issues a signed JWT valid for 7 days
//  3. Client sends it on every call as "Authorization: Bearer <token>"
//  4. RequireAuth validates it and puts the account identity in the request
//     context before any handler runs
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header:  {"alg":"HS256","typ":"JWT"}
//	- Payload: {"accountId":1,"email":"a@b.c","sub":"1","exp":...,"jti":"..."}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer = "estudogame"

	// TokenTTL is the validity window of an issued token.
	TokenTTL = 7 * 24 * time.Hour
)

// ErrTokenExpired is returned by Validate for a well-formed token whose
// expiry has passed.
var ErrTokenExpired = errors.New("auth: token expired")

// Identity is what a valid token proves about its bearer.
type Identity struct {
	AccountID int64
	Email     string
}

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret.
// Generate one with: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), ttl: TokenTTL}, nil
}

// claims is the JWT payload. The account id is carried both as a typed
// claim and as the standard "sub".
type claims struct {
	AccountID int64  `json:"accountId"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// Generate creates and signs a token for the account, valid for TokenTTL.
func (s *TokenService) Generate(accountID int64, email string) (string, error) {
	return s.GenerateWithDuration(accountID, email, s.ttl)
}

// GenerateWithDuration creates a token with a custom lifetime.
// Tests use a negative duration to produce an already-expired token.
func (s *TokenService) GenerateWithDuration(accountID int64, email string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		AccountID: accountID,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(accountID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a token string.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - signature is valid
//   - token is not expired, and carries an expiry at all
//   - issuer is "estudogame"
//   - algorithm is HS256 (rejects "none" and algorithm-confusion tokens)
func (s *TokenService) Validate(tokenStr string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}

	if c.AccountID <= 0 || c.Subject != strconv.FormatInt(c.AccountID, 10) {
		return nil, fmt.Errorf("auth: token subject does not match account")
	}

	return &Identity{AccountID: c.AccountID, Email: c.Email}, nil
}
