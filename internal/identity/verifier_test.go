package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestJWTVerifier_RoundTrip(t *testing.T) {
	token, err := Issue(testSecret, "authenticated", Identity{
		SubjectID:     "user-1",
		Email:         "ada@example.com",
		FullName:      "Ada",
		EmailVerified: true,
	}, time.Hour)
	require.NoError(t, err)

	id, err := NewJWTVerifier(testSecret, "authenticated").Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.SubjectID)
	assert.Equal(t, "ada@example.com", id.Email)
	assert.Equal(t, "Ada", id.FullName)
	assert.True(t, id.EmailVerified)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	valid := Identity{SubjectID: "user-1", Email: "a@example.com"}

	wrongSecret, err := Issue("other", "", valid, time.Hour)
	require.NoError(t, err)
	expired, err := Issue(testSecret, "", valid, -time.Minute)
	require.NoError(t, err)
	wrongAudience, err := Issue(testSecret, "service_role", valid, time.Hour)
	require.NoError(t, err)
	noSubject, err := Issue(testSecret, "authenticated", Identity{Email: "a@example.com"}, time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", wrongSecret},
		{"expired", expired},
		{"wrong audience", wrongAudience},
		{"missing subject", noSubject},
		{"alg none", none},
	}

	v := NewJWTVerifier(testSecret, "authenticated")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
