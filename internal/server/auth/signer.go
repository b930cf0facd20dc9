// Package auth issues and validates the HS256 JWTs used as access and refresh
// tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims is the claim set carried by every token.
type Claims struct {
	Subject   string
	TokenID   string
	Type      TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// jwtClaims is the wire form: registered claims plus "typ".
type jwtClaims struct {
	jwt.RegisteredClaims
	Type TokenType `json:"typ"`
}

// Keyring holds the active signing key and any retired keys still accepted
// for verification, indexed by key id.
type Keyring struct {
	ActiveID string
	Keys     map[string][]byte
}

// NewKeyring builds a Keyring from string secrets.
func NewKeyring(activeID, activeSecret string, retired map[string]string) Keyring {
	keys := make(map[string][]byte, len(retired)+1)
	for id, secret := range retired {
		keys[id] = []byte(secret)
	}
	keys[activeID] = []byte(activeSecret)
	return Keyring{ActiveID: activeID, Keys: keys}
}

// Signer is safe for concurrent use; it never mutates its keyring.
type Signer struct {
	keyring Keyring
	clock   func() time.Time
}

// NewSigner returns a Signer. A nil clock means time.Now.
func NewSigner(keyring Keyring, clock func() time.Time) (*Signer, error) {
	if len(keyring.Keys[keyring.ActiveID]) == 0 {
		return nil, fmt.Errorf("active key %q is missing or empty", keyring.ActiveID)
	}
	if clock == nil {
		clock = time.Now
	}
	return &Signer{keyring: keyring, clock: clock}, nil
}

// Now exposes the signer clock so callers compute expiries on the same time base.
func (s *Signer) Now() time.Time {
	return s.clock()
}

// Issue signs c with the active key and stamps its id into the "kid" header.
func (s *Signer) Issue(c Claims) (string, error) {
	if c.Subject == "" || c.Type == "" {
		return "", fmt.Errorf("issue token: %w", common.ErrTokenMalformed)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.Subject,
			ID:        c.TokenID,
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
		Type: c.Type,
	})
	token.Header["kid"] = s.keyring.ActiveID

	return token.SignedString(s.keyring.Keys[s.keyring.ActiveID])
}

// Validate checks signature and expiry and returns the claims.
//
// Errors are always one of common.ErrTokenExpired, common.ErrTokenInvalidSignature
// or common.ErrTokenMalformed.
func (s *Signer) Validate(tokenString string) (*Claims, error) {
	claims := &jwtClaims{}

	parser := jwt.NewParser(
		jwt.WithTimeFunc(s.clock),
		jwt.WithExpirationRequired(),
	)

	_, err := parser.ParseWithClaims(tokenString, claims, s.keyFor)
	if err != nil {
		return nil, mapError(err)
	}

	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, common.ErrTokenMalformed
	}
	switch claims.Type {
	case TokenAccess:
	case TokenRefresh:
		if claims.ID == "" {
			return nil, common.ErrTokenMalformed
		}
	default:
		return nil, common.ErrTokenMalformed
	}

	return &Claims{
		Subject:   claims.Subject,
		TokenID:   claims.ID,
		Type:      claims.Type,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// ValidateType is Validate plus a check that the token is of the wanted type.
func (s *Signer) ValidateType(tokenString string, want TokenType) (*Claims, error) {
	c, err := s.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if c.Type != want {
		return nil, common.ErrTokenMalformed
	}
	return c, nil
}

func (s *Signer) keyFor(t *jwt.Token) (any, error) {
	if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, common.ErrTokenMalformed
	}

	kid := s.keyring.ActiveID
	if raw, ok := t.Header["kid"]; ok {
		id, isString := raw.(string)
		if !isString {
			return nil, common.ErrTokenMalformed
		}
		kid = id
	}

	key, ok := s.keyring.Keys[kid]
	if !ok {
		return nil, common.ErrTokenInvalidSignature
	}
	return key, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, common.ErrTokenMalformed):
		return common.ErrTokenMalformed
	case errors.Is(err, common.ErrTokenInvalidSignature),
		errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return common.ErrTokenInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrTokenExpired
	default:
		return common.ErrTokenMalformed
	}
}
