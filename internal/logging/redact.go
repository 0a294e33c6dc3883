package logging

import "strings"

// RedactIdentifier masks a login identifier (email or username) for logs,
// keeping the first two characters and the email domain.
func RedactIdentifier(s string) string {
	local, domain, isEmail := strings.Cut(s, "@")
	if len(local) > 2 {
		local = local[:2] + "***"
	} else {
		local = "***"
	}
	if isEmail {
		return local + "@" + domain
	}
	return local
}

// RedactToken returns a stable placeholder for token values.
func RedactToken() string { return "[REDACTED_TOKEN]" }

// ShortID returns the first 8 characters of an opaque id, enough to
// correlate log lines without disclosing the full value.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
