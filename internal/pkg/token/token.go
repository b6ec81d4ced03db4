package token

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
)

// NewOTP returns a 6-digit code drawn uniformly from 100000-999999.
func NewOTP() (string, error) {
	n, err := randRange(100000, 999999)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n), nil
}

// NewOrderCode returns "ORD" followed by 7 digits from 1000000-9999999.
// Uniqueness is the caller's job.
func NewOrderCode() (string, error) {
	n, err := randRange(1000000, 9999999)
	if err != nil {
		return "", fmt.Errorf("generate order code: %w", err)
	}
	return fmt.Sprintf("ORD%d", n), nil
}

// Equal compares two codes in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// randRange returns a uniform integer in [lo, hi].
func randRange(lo, hi int64) (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(hi-lo+1))
	if err != nil {
		return 0, err
	}
	return lo + n.Int64(), nil
}
