// Package policy implements the password strength rules applied at
// registration and password change. It is pure: no I/O, no state.
package policy

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/timeledger/internal/common"
)

// MinLength is the shortest accepted password, in characters.
const MinLength = 12

// MaxBytes is the longest accepted password in bytes; bcrypt ignores
// anything beyond it.
const MaxBytes = 72

// MaxRun is the length at which repeated or ascending runs are rejected.
const MaxRun = 4

// Symbols is the set a password must draw at least one character from.
const Symbols = "!@#$%^&*()-_=+[]{};:'\",.<>/?\\|`~"

// Rule identifies a single policy check.
type Rule string

const (
	RuleMinLength      Rule = "min_length"
	RuleMaxLength      Rule = "max_length"
	RuleUppercase      Rule = "uppercase"
	RuleLowercase      Rule = "lowercase"
	RuleDigit          Rule = "digit"
	RuleSymbol         Rule = "symbol"
	RuleRepeatedChars  Rule = "repeated_chars"
	RuleSequentialRuns Rule = "sequential_digits"
	RuleCommonPassword Rule = "common_password"
)

// denyList holds well-known passwords that otherwise satisfy every rule.
// Entries are lower case; matching is case-insensitive.
var denyList = map[string]struct{}{
	"password123!": {},
	"p@ssword123!": {},
	"p@ssw0rd123!": {},
	"welcome2024!": {},
	"welcome2025!": {},
	"letmein2024!": {},
	"iloveyou123!": {},
	"changeme123!": {},
	"qwerty@2024!": {},
	"summer2024!!": {},
	"winter2024!!": {},
	"passw0rd!@#$": {},
}

// Violation describes the first rule a password failed.
// errors.Is(v, common.ErrWeakPassword) holds for every Violation.
type Violation struct {
	Rule   Rule
	Reason string
}

func (v *Violation) Error() string {
	return "weak password: " + v.Reason
}

func (v *Violation) Is(target error) bool {
	return target == common.ErrWeakPassword
}

// Validate reports whether password satisfies the policy and, if not, the
// reason for the first failing rule.
func Validate(password string) (bool, string) {
	if v := Check(password); v != nil {
		return false, v.Reason
	}
	return true, ""
}

// Check returns nil for an acceptable password or the first Violation.
// Rules run in a fixed order; the first failure wins.
func Check(password string) *Violation {
	if utf8.RuneCountInString(password) < MinLength {
		return violation(RuleMinLength, "must be at least %d characters long", MinLength)
	}
	if len(password) > MaxBytes {
		return violation(RuleMaxLength, "must be at most %d bytes long", MaxBytes)
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(Symbols, r):
			hasSymbol = true
		}
	}

	switch {
	case !hasUpper:
		return violation(RuleUppercase, "must contain an uppercase letter")
	case !hasLower:
		return violation(RuleLowercase, "must contain a lowercase letter")
	case !hasDigit:
		return violation(RuleDigit, "must contain a digit")
	case !hasSymbol:
		return violation(RuleSymbol, "must contain one of %s", Symbols)
	}

	if hasRepeatedRun(password, MaxRun) {
		return violation(RuleRepeatedChars, "must not repeat a character %d or more times in a row", MaxRun)
	}
	if hasAscendingDigits(password, MaxRun) {
		return violation(RuleSequentialRuns, "must not contain %d or more ascending digits in a row", MaxRun)
	}
	if _, ok := denyList[strings.ToLower(password)]; ok {
		return violation(RuleCommonPassword, "is too common")
	}

	return nil
}

func violation(rule Rule, format string, args ...any) *Violation {
	return &Violation{Rule: rule, Reason: "password " + fmt.Sprintf(format, args...)}
}

func hasRepeatedRun(s string, n int) bool {
	run := 0
	var prev rune = -1
	for _, r := range s {
		if r == prev {
			run++
		} else {
			run = 1
			prev = r
		}
		if run >= n {
			return true
		}
	}
	return false
}

func hasAscendingDigits(s string, n int) bool {
	run := 0
	var prev rune = -1
	for _, r := range s {
		switch {
		case r < '0' || r > '9':
			run = 0
		case run > 0 && r == prev+1:
			run++
		default:
			run = 1
		}
		prev = r
		if run >= n {
			return true
		}
	}
	return false
}
