package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/relay-service/internal/errs"
)

const secret = "test-secret"

func signHS(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestHS256_Authenticate(t *testing.T) {
	v, err := NewHS256(secret)
	require.NoError(t, err)

	tests := []struct {
		name    string
		claims  jwt.MapClaims
		want    Identity
		wantErr bool
	}{
		{
			name:   "sub and name",
			claims: jwt.MapClaims{"sub": "u1", "name": "Alice", "exp": time.Now().Add(time.Hour).Unix()},
			want:   Identity{UserID: "u1", Name: "Alice"},
		},
		{
			name:   "user_id fallback",
			claims: jwt.MapClaims{"user_id": "u2"},
			want:   Identity{UserID: "u2", Name: "u2"},
		},
		{
			name:   "_id fallback",
			claims: jwt.MapClaims{"_id": "u3", "name": "Carol"},
			want:   Identity{UserID: "u3", Name: "Carol"},
		},
		{
			name:    "no subject",
			claims:  jwt.MapClaims{"name": "Nobody"},
			wantErr: true,
		},
		{
			name:    "expired",
			claims:  jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Authenticate(signHS(t, tt.claims))
			if tt.wantErr {
				require.True(t, errors.Is(err, errs.ErrUnauthorized))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestHS256_RejectsBadTokens(t *testing.T) {
	req := require.New(t)
	v, err := NewHS256(secret)
	req.NoError(err)

	_, err = v.Authenticate("")
	req.True(errors.Is(err, errs.ErrUnauthorized))

	_, err = v.Authenticate("not-a-jwt")
	req.True(errors.Is(err, errs.ErrUnauthorized))

	other, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte("other"))
	req.NoError(err)
	_, err = v.Authenticate(other)
	req.True(errors.Is(err, errs.ErrUnauthorized))

	_, err = NewHS256("")
	req.Error(err)
}

func TestRS256_FromFile(t *testing.T) {
	req := require.New(t)
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	req.NoError(err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	req.NoError(err)
	path := filepath.Join(t.TempDir(), "pub.pem")
	req.NoError(os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	v, err := NewRS256FromFile(path)
	req.NoError(err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "u1", "name": "Alice"}).SignedString(key)
	req.NoError(err)
	id, err := v.Authenticate(token)
	req.NoError(err)
	req.Equal(Identity{UserID: "u1", Name: "Alice"}, id)

	// An HS256 token must not pass an RS256 validator
	_, err = v.Authenticate(signHS(t, jwt.MapClaims{"sub": "u1"}))
	req.True(errors.Is(err, errs.ErrUnauthorized))

	_, err = NewRS256FromFile(filepath.Join(t.TempDir(), "missing.pem"))
	req.Error(err)
}

func TestParseBearerToken(t *testing.T) {
	req := require.New(t)
	tok, err := ParseBearerToken("Bearer abc")
	req.NoError(err)
	req.Equal("abc", tok)

	_, err = ParseBearerToken("")
	req.Error(err)
	_, err = ParseBearerToken("Basic abc")
	req.Error(err)
}
