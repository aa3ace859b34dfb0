package auth

import (
	"crypto/rand"
	"fmt"
)

// Referral code alphabet excludes 0/O, 1/I and lowercase so codes survive
// being read aloud or retyped from a screenshot.
const referralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const referralCodeLen = 8

// GenerateReferralCode returns a random shareable code.
func GenerateReferralCode() (string, error) {
	buf := make([]byte, referralCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate referral code: %w", err)
	}
	for i, b := range buf {
		buf[i] = referralAlphabet[int(b)%len(referralAlphabet)]
	}
	return string(buf), nil
}
