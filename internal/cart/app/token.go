package app

import (
	"crypto/rand"
	"math/big"
)

const (
	TokenLength   = 32
	tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// RandomTokens draws fixed-length alphanumeric tokens from crypto/rand.
type RandomTokens struct {
	Length int
}

func (g RandomTokens) NewToken() (string, error) {
	n := g.Length
	if n <= 0 {
		n = TokenLength
	}

	limit := big.NewInt(int64(len(tokenAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = tokenAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
