package cryptox

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// PINDigits is the length of organization join PINs.
const PINDigits = 6

var pinSpace = big.NewInt(1_000_000)

// GeneratePIN draws a random 6-digit numeric PIN, zero-padded. The space is
// deliberately small (low-friction shared secret); uniqueness is enforced by
// the caller against storage, not here.
func GeneratePIN() (string, error) {
	n, err := rand.Int(rand.Reader, pinSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate pin: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
