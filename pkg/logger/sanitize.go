package logger

import (
	"net/url"
	"strings"
)

// sensitiveParams are query parameters that must never appear in logs.
var sensitiveParams = map[string]bool{
	"token":         true,
	"password":      true,
	"secret":        true,
	"code":          true,
	"mfa_token":     true,
	"refresh_token": true,
	"challenge":     true,
}

// SanitizeQueryString reports whether a raw query string contains
// sensitive parameters and should be redacted from logs.
func SanitizeQueryString(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		// Unparseable query strings are redacted rather than logged raw.
		return true
	}

	for key := range values {
		if sensitiveParams[strings.ToLower(key)] {
			return true
		}
	}

	return false
}
