package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks an external-auth bearer credential and extracts its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

type jwtClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HMAC-signed tokens issued by the identity provider.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(token string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || claims.Subject == "" {
		return Claims{}, fmt.Errorf("token missing subject claim")
	}

	return Claims{
		SubjectID: claims.Subject,
		Email:     claims.Email,
	}, nil
}
