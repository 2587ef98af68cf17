package worker

import "strings"

// NormalizePhone strips every non-digit character from a recipient number and
// prepends the country prefix when the digits do not already start with it.
// The operation is idempotent: normalizing an already-normalized number
// returns it unchanged.
func NormalizePhone(raw, countryPrefix string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if countryPrefix != "" && !strings.HasPrefix(digits, countryPrefix) {
		digits = countryPrefix + digits
	}
	return digits
}
