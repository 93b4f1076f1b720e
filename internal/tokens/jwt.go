// Package tokens issues and validates the bearer tokens trainees present to
// the grading API.
package tokens

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const (
	Issuer = "rangehawk"

	RoleTrainee    = "trainee"
	RoleInstructor = "instructor"
)

type Claims struct {
	Trainee string `json:"trainee"`
	Role    string `json:"role"`
	// Instances restricts the token to these scenario instances. Empty
	// means any instance.
	Instances []string `json:"instances,omitempty"`
	jwt.RegisteredClaims
}

// CanAccess reports whether the claims allow grading the instance.
func (c *Claims) CanAccess(instanceID string) bool {
	return len(c.Instances) == 0 || slices.Contains(c.Instances, instanceID)
}

// IsInstructor reports whether the holder may read every trainee's results.
func (c *Claims) IsInstructor() bool {
	return c.Role == RoleInstructor
}

type TokenGenerator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenGenerator(secret string, ttl time.Duration) *TokenGenerator {
	return &TokenGenerator{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate signs a token for the trainee.
func (tg *TokenGenerator) Generate(trainee, role string, instances []string) (string, error) {
	if trainee == "" {
		return "", fmt.Errorf("%w: trainee is required", ErrInvalidToken)
	}
	switch role {
	case RoleTrainee, RoleInstructor:
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidToken, role)
	}

	now := tg.now()
	claims := Claims{
		Trainee:   trainee,
		Role:      role,
		Instances: instances,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   trainee,
			ExpiresAt: jwt.NewNumericDate(now.Add(tg.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tg.secret)
}

// Validate parses and verifies a token.
func (tg *TokenGenerator) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return tg.secret, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(tg.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Trainee == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
