package auth

import (
	"crypto/subtle"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(h), err
}

// CheckAdmin reports whether user and password match the configured admin.
// An empty hash disables admin login.
func CheckAdmin(wantUser, hash, user, password string) bool {
	if hash == "" || wantUser == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(wantUser), []byte(user)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	return userOK && passOK
}

func newTokenID() string {
	return uuid.NewString()
}
