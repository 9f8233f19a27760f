package hash

import "golang.org/x/crypto/bcrypt"

// HashPassword produces a salted one-way hash. bcrypt embeds a fresh
// random salt into every hash, so equal passwords never hash equal.
func HashPassword(password string) (string, error) {
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashBytes), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
