package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const MaxProductNameLength = 128

var (
	ErrInvalidAccount     = errors.New("invalid account")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidProductName = errors.New("invalid product name")
)

var accountRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidateAccount checks for a 20-byte hex address with 0x prefix.
func ValidateAccount(account string) error {
	if !accountRegex.MatchString(account) {
		return fmt.Errorf("%w: %q", ErrInvalidAccount, account)
	}
	return nil
}

func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s must be greater than zero", ErrInvalidAmount, amount)
	}
	return nil
}

// ParseAmount parses a decimal string amount and requires it to be positive.
func ParseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// NormalizeProductName trims name and checks it is non-empty and short enough.
func NormalizeProductName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidProductName)
	}
	if utf8.RuneCountInString(name) > MaxProductNameLength {
		return "", fmt.Errorf("%w: name exceeds %d characters", ErrInvalidProductName, MaxProductNameLength)
	}
	return name, nil
}

// WithinDeadline reports whether now is no later than start+window. The
// boundary instant itself is inside the window.
func WithinDeadline(start, now time.Time, window time.Duration) bool {
	return !now.After(start.Add(window))
}

// TimeLeft returns the remaining part of the window, or zero once it passed.
func TimeLeft(start, now time.Time, window time.Duration) time.Duration {
	left := start.Add(window).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
