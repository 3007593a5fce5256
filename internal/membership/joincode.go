package membership

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MinJoinCodeLength is the shortest join code a club may be created with.
const MinJoinCodeLength = 6

// normalizeJoinCode makes codes case- and whitespace-insensitive.
func normalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// HashJoinCode wraps bcrypt.GenerateFromPassword for join code storage.
func HashJoinCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(normalizeJoinCode(code)), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyJoinCode wraps bcrypt.CompareHashAndPassword for join requests.
func VerifyJoinCode(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(normalizeJoinCode(code))) == nil
}
