package common

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"zero", 0},
		{"token id", 16},
		{"long", 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := MakeRandHexString(tt.size)
			require.NoError(t, err)
			assert.Len(t, s, tt.size*2)

			raw, err := hex.DecodeString(s)
			require.NoError(t, err)
			assert.Len(t, raw, tt.size)
		})
	}
}

func TestMakeRandHexString_Distinct(t *testing.T) {
	a, err := MakeRandHexString(32)
	require.NoError(t, err)
	b, err := MakeRandHexString(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestGenerateRandByteArray(t *testing.T) {
	buf := GenerateRandByteArray(24)
	assert.Len(t, buf, 24)
}

func TestWipeByteArray(t *testing.T) {
	buf := []byte("s3cret")
	WipeByteArray(buf)
	assert.Equal(t, make([]byte, 6), buf)

	assert.NotPanics(t, func() { WipeByteArray(nil) })
}
