// Package identity verifies bearer tokens issued by the external identity
// provider and turns them into a subject identity.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is what the provider vouches for: a stable subject and contact attributes.
type Identity struct {
	SubjectID     string
	Email         string
	FullName      string
	EmailVerified bool
	Metadata      map[string]interface{}
}

// Verifier checks a bearer credential.
type Verifier interface {
	Verify(token string) (*Identity, error)
}

// Claims mirrors the provider's access token payload.
type Claims struct {
	Email        string                 `json:"email"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens signed with the provider's shared secret.
type JWTVerifier struct {
	secret   []byte
	audience string
}

func NewJWTVerifier(secret, audience string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), audience: audience}
}

func (v *JWTVerifier) Verify(tokenString string) (*Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	id := &Identity{
		SubjectID: claims.Subject,
		Email:     claims.Email,
		Metadata:  claims.UserMetadata,
	}
	if verified, ok := claims.UserMetadata["email_verified"].(bool); ok {
		id.EmailVerified = verified
	}
	if name, ok := claims.UserMetadata["full_name"].(string); ok {
		id.FullName = name
	}
	return id, nil
}

// Issue mints a token the JWTVerifier accepts. Used by the CLI for local
// development and by tests; production tokens come from the provider.
func Issue(secret, audience string, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	meta := map[string]interface{}{"email_verified": id.EmailVerified}
	if id.FullName != "" {
		meta["full_name"] = id.FullName
	}
	for k, v := range id.Metadata {
		meta[k] = v
	}

	claims := Claims{
		Email:        id.Email,
		UserMetadata: meta,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.SubjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
