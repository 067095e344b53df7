package codes

import (
	"regexp"
	"strings"
)

var strictEmailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail is the key every record is stored under.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmailShape is the minimal check used before issuing a code: an @ and
// a dot somewhere after it.
func ValidEmailShape(email string) bool {
	at := strings.Index(email, "@")
	if at < 0 {
		return false
	}
	return strings.Contains(email[at+1:], ".")
}

// ValidEmailStrict is used where an address is written to an account.
func ValidEmailStrict(email string) bool {
	return strictEmailPattern.MatchString(email)
}
