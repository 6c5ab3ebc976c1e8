package utils

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionToken_RoundTrip(t *testing.T) {
	for _, version := range []uint64{0, 1, 42, 1 << 32, math.MaxUint64} {
		t.Run(fmt.Sprintf("version_%d", version), func(t *testing.T) {
			token := EncodeVersionToken(version)
			got, err := DecodeVersionToken(token)
			require.NoError(t, err)
			assert.Equal(t, version, got)
		})
	}
}

func TestVersionToken_IsOpaque(t *testing.T) {
	// el número crudo no viaja por el wire
	assert.NotContains(t, EncodeVersionToken(42), "42")
	assert.NotEqual(t, EncodeVersionToken(1), EncodeVersionToken(2))
}

func TestVersionToken_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "base64 inválido", token: "!!!not-base64!!!"},
		{name: "longitud incorrecta", token: "QUJD"}, // 3 bytes, no 8
		{name: "vacío", token: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeVersionToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidVersionToken)
		})
	}
}
