package profiles

import (
	"regexp"
	"strings"

	"github.com/mikepea/biolink/pkg/biolink/apperrors"
)

// MaxUsernameLength bounds handles to the column size
const MaxUsernameLength = 64

var (
	usernamePattern  = regexp.MustCompile(`^[a-z0-9_]+$`)
	usernameReplacer = regexp.MustCompile(`[^a-z0-9_]`)
)

// reserved handles collide with top-level routes
var reserved = map[string]bool{
	"api":       true,
	"auth":      true,
	"admin":     true,
	"dashboard": true,
	"health":    true,
	"lang":      true,
	"static":    true,
	"swagger":   true,
}

// NormalizeUsername trims and lowercases a handle
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidUsername reports whether s is a well-formed, unreserved handle
func ValidUsername(s string) bool {
	return len(s) <= MaxUsernameLength && usernamePattern.MatchString(s) && !reserved[s]
}

// ValidateUsername returns a ValidationError describing why s cannot be used
// as a handle, or nil.
func ValidateUsername(s string) error {
	switch {
	case s == "":
		return fieldError("username", "username is required")
	case len(s) > MaxUsernameLength:
		return fieldError("username", "username is too long")
	case !usernamePattern.MatchString(s):
		return fieldError("username", "username may only contain lowercase letters, numbers and underscores")
	case reserved[s]:
		return fieldError("username", "username is reserved")
	}
	return nil
}

// UsernameFromEmail derives a handle from the local part of an email address
func UsernameFromEmail(email string) string {
	local, _, _ := strings.Cut(NormalizeUsername(email), "@")
	name := usernameReplacer.ReplaceAllString(local, "_")
	if len(name) > MaxUsernameLength {
		name = name[:MaxUsernameLength]
	}
	if name == "" {
		return "user"
	}
	if reserved[name] {
		name = "user_" + name
	}
	return name
}

func fieldError(field, msg string) error {
	return &apperrors.ValidationError{Message: msg, Fields: map[string]string{field: msg}}
}
