package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer is stamped into every access token and required on parse.
const TokenIssuer = "hrm-access"

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Claims identify the caller. The employee id links the login to a row in
// the directory so role resolution can find the caller's assignment.
type Claims struct {
	UserID     string `json:"uid"`
	TenantID   string `json:"tid"`
	EmployeeID string `json:"eid,omitempty"`
	jwt.RegisteredClaims
}

// UserContext is the authenticated caller carried on the request context.
type UserContext struct {
	UserID     string
	TenantID   string
	EmployeeID string
}

func (c Claims) User() UserContext {
	return UserContext{UserID: c.UserID, TenantID: c.TenantID, EmployeeID: c.EmployeeID}
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword returns ErrInvalidCredentials on any mismatch, including a
// malformed stored hash.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func GenerateToken(secret string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    TokenIssuer,
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies an HS256 token and wraps every failure in ErrInvalidToken.
func ParseToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.UserID == "" || claims.TenantID == "" {
		return nil, fmt.Errorf("%w: missing identity", ErrInvalidToken)
	}
	return claims, nil
}
