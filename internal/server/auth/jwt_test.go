package auth

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = []byte("podcast-signing-key")

func signClaims(t *testing.T, m jwt.SigningMethod, c jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(m, c).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestVerifier_UserID(t *testing.T) {
	t.Parallel()

	valid, err := Sign("host-42", key, time.Hour)
	require.NoError(t, err)

	inLeeway, err := Sign("host-42", key, -10*time.Second)
	require.NoError(t, err)

	expired, err := Sign("host-42", key, -time.Minute)
	require.NoError(t, err)

	otherKey, err := Sign("host-42", []byte("another-key"), time.Hour)
	require.NoError(t, err)

	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name    string
		token   string
		want    string
		wantErr error
	}{
		{name: "valid", token: valid, want: "host-42"},
		{name: "expired within leeway", token: inLeeway, want: "host-42"},
		{name: "expired", token: expired, wantErr: common.ErrTokenExpired},
		{name: "wrong key", token: otherKey, wantErr: common.ErrInvalidToken},
		{name: "malformed", token: "not.a.jwt", wantErr: common.ErrInvalidToken},
		{
			name:  "legacy uid claim",
			token: signClaims(t, jwt.SigningMethodHS256, &Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}, LegacyUserID: "old-7"}),
			want:  "old-7",
		},
		{
			name:    "no user",
			token:   signClaims(t, jwt.SigningMethodHS256, &Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}}),
			wantErr: common.ErrInvalidToken,
		},
		{
			name:    "no expiry",
			token:   signClaims(t, jwt.SigningMethodHS256, &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "host-42"}}),
			wantErr: common.ErrInvalidToken,
		},
		{
			name:    "other algorithm",
			token:   signClaims(t, jwt.SigningMethodHS512, &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "host-42", ExpiresAt: exp}}),
			wantErr: common.ErrInvalidToken,
		},
	}

	v := NewVerifier(key, DefaultLeeway)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.UserID(tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
