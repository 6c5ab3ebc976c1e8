package utils

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// Los clientes intercambian la versión del stream como token opaco para no
// exponer la cardinalidad del stream. La ofuscación (XOR + base64url) no es
// criptografía: solo evita que el número crudo viaje por el wire.

var tokenPad = [8]byte{0x5e, 0xb1, 0x0f, 0xc4, 0x9a, 0x27, 0xd3, 0x68}

var ErrInvalidVersionToken = errors.New("invalid version token")

// EncodeVersionToken ofusca una versión de stream como token opaco.
func EncodeVersionToken(version uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], version)
	for i := range buf {
		buf[i] ^= tokenPad[i]
	}
	return base64.RawURLEncoding.EncodeToString(buf[:])
}

// DecodeVersionToken recupera la versión desde un token opaco.
func DecodeVersionToken(token string) (uint64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidVersionToken, err)
	}
	if len(raw) != 8 {
		return 0, ErrInvalidVersionToken
	}
	for i := range raw {
		raw[i] ^= tokenPad[i]
	}
	return binary.BigEndian.Uint64(raw), nil
}
