package auth

import (
	"encoding/base64"
	"strings"
)

// ParseBasicCredentials decodes an "Authorization: Basic <b64>" header
// value into its email/password pair, matching validate_basic_auth's
// base64 decode and ":"-split.
func ParseBasicCredentials(header string) (user, password string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// ParseBearerToken extracts the raw token string from an "Authorization:
// Bearer <token>" header value.
func ParseBearerToken(header string) (token string, ok bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimPrefix(header, prefix), true
}
