// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

// Package validate holds the input predicates applied to client-supplied
// usernames, phone numbers and passwords.
package validate

import (
	"regexp"

	"github.com/ccojocar/zxcvbn-go"
)

// Password constraints.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 64
	MinPasswordScore  = 3 // zxcvbn score, 0-4
)

// usernameRegex matches usernames that:
// - Start with a letter
// - Continue with 2 to 20 letters, digits, '.', '-' or '_'
var usernameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9._-]{2,20}$`)

// phoneRegex matches a leading 0 followed by exactly nine digits.
var phoneRegex = regexp.MustCompile(`^0[0-9]{9}$`)

// Username reports whether username is an acceptable account name.
func Username(username string) bool {
	return usernameRegex.MatchString(username)
}

// Phone reports whether phone is a well-formed phone number.
func Phone(phone string) bool {
	return phoneRegex.MatchString(phone)
}

// Password reports whether password is within the length bounds and strong
// enough according to zxcvbn.
func Password(password string) bool {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return false
	}
	return zxcvbn.PasswordStrength(password, nil).Score >= MinPasswordScore
}
