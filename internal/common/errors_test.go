package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCredentialError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"invalid credentials", ErrInvalidCredentials, true},
		{"wrapped expired", fmt.Errorf("validate: %w", ErrTokenExpired), true},
		{"bad signature", ErrTokenInvalidSignature, true},
		{"malformed", ErrTokenMalformed, true},
		{"revoked", ErrRefreshTokenRevoked, true},
		{"reused", ErrRefreshTokenReused, true},
		{"internal", ErrorInternal, false},
		{"corrupt record", ErrCorruptCredentialRecord, false},
		{"duplicate id", ErrDuplicateTokenID, false},
		{"foreign", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCredentialError(tt.err))
		})
	}
}
