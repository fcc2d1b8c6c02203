package room

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	// Alphabet is the character set room identifiers are drawn from.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// IDLength is the fixed length of a room identifier.
	IDLength = 8
)

var alphabetLen = big.NewInt(int64(len(Alphabet)))

// NewID returns a random identifier of IDLength characters, each drawn
// independently and uniformly from Alphabet. Uniqueness is not checked.
func NewID() (string, error) {
	result := make([]byte, IDLength)
	for i := range result {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("generate room id: %w", err)
		}
		result[i] = Alphabet[n.Int64()]
	}
	return string(result), nil
}

// IsValidID reports whether id has the shape NewID produces.
func IsValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for _, c := range id {
		if !strings.ContainsRune(Alphabet, c) {
			return false
		}
	}
	return true
}
