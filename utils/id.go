package utils

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// idCharset deliberately drops O, I, 0 and 1 so ids survive being read
// aloud or retyped.
const idCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RandomID generates a random listing id of given length using crypto/rand
func RandomID(length int) (string, error) {
	if length < 3 || length > 32 {
		length = 5
	}
	result := make([]byte, length)
	for i := range result {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(idCharset))))
		if err != nil {
			return "", err
		}
		result[i] = idCharset[idx.Int64()]
	}
	return string(result), nil
}

// RandomIDBatch returns a batch of candidate listing ids
func RandomIDBatch(batchSize, length int) ([]string, error) {
	ids := make([]string, batchSize)
	for i := 0; i < batchSize; i++ {
		id, err := RandomID(length)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// IsValidID checks if a listing id contains only valid characters
func IsValidID(id string) bool {
	// Ids must be between 3 and 32 characters
	if len(id) < 3 || len(id) > 32 {
		return false
	}
	for _, char := range id {
		if !strings.ContainsRune(idCharset, char) {
			return false
		}
	}
	return true
}
