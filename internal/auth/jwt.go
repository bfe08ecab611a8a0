package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fathima-sithara/relay-service/internal/errs"
)

// Identity is what the handshake hands to the relay for one connection.
type Identity struct {
	UserID string
	Name   string
}

type Authenticator interface {
	Authenticate(token string) (Identity, error)
}

// JWTValidator accepts either HS256 tokens signed with a shared secret or
// RS256 tokens verified against a public key.
type JWTValidator struct {
	method jwt.SigningMethod
	key    interface{}
}

func NewHS256(secret string) (*JWTValidator, error) {
	if secret == "" {
		return nil, errors.New("hs256 secret is empty")
	}
	return &JWTValidator{method: jwt.SigningMethodHS256, key: []byte(secret)}, nil
}

func NewRS256(pub *rsa.PublicKey) *JWTValidator {
	return &JWTValidator{method: jwt.SigningMethodRS256, key: pub}
}

// NewRS256FromFile loads a PEM encoded PKIX public key.
func NewRS256FromFile(path string) (*JWTValidator, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("invalid public PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not RSA public key")
	}
	return NewRS256(rsaPub), nil
}

// Authenticate validates the token and reads the user id from sub, user_id
// or _id, in that order.
func (j *JWTValidator) Authenticate(tokenStr string) (Identity, error) {
	if tokenStr == "" {
		return Identity{}, fmt.Errorf("%w: empty token", errs.ErrUnauthorized)
	}
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.key, nil
	}, jwt.WithValidMethods([]string{j.method.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("%w: invalid claims", errs.ErrUnauthorized)
	}

	var id Identity
	for _, k := range []string{"sub", "user_id", "_id"} {
		if s, ok := claims[k].(string); ok && s != "" {
			id.UserID = s
			break
		}
	}
	if id.UserID == "" {
		return Identity{}, fmt.Errorf("%w: subject claim missing", errs.ErrUnauthorized)
	}
	id.Name, _ = claims["name"].(string)
	if id.Name == "" {
		id.Name = id.UserID
	}
	return id, nil
}

// ParseBearerToken returns the token part of an Authorization header.
func ParseBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header empty")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}
