package service

import (
	"errors"
	"strings"
	"unicode"
)

const DefaultPhonePrefix = "+973"

var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone turns a typed phone number into the user id orders are
// filed under. Numbers without a leading "+" get prefix.
func NormalizePhone(phone, prefix string) (string, error) {
	phone = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return r
	}, phone)

	digits := strings.TrimPrefix(phone, "+")
	if len(digits) < 4 || len(digits) > 15 {
		return "", ErrInvalidPhone
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", ErrInvalidPhone
		}
	}

	if strings.HasPrefix(phone, "+") {
		return phone, nil
	}
	return prefix + phone, nil
}
