package password

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

const (
	keyPrefix    = "rk_"
	keyRandBytes = 24
	// LookupPrefixLen is how many leading characters of a key are stored in clear for lookup.
	LookupPrefixLen = 11
)

func Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func Compare(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}

// NewTenantKey returns a fresh secret key and the clear prefix used to find it.
func NewTenantKey() (string, string, error) {
	buf := make([]byte, keyRandBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	key := keyPrefix + hex.EncodeToString(buf)
	return key, LookupPrefix(key), nil
}

func LookupPrefix(key string) string {
	if len(key) <= LookupPrefixLen {
		return key
	}
	return key[:LookupPrefixLen]
}
