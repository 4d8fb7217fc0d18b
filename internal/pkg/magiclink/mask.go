package magiclink

import "strings"

// maskEmail obscures an address for UI confirmation, e.g.
// "abigail@domain.com" -> "ab***l@do***.com". The raw email is never echoed
// back to the requester.
func maskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	local, domain := email[:at], email[at+1:]

	var masked string
	if len(local) >= 4 {
		masked = local[:2] + "***" + local[len(local)-1:]
	} else {
		masked = local[:1] + "***"
	}

	name := domain
	suffix := ""
	if dot := strings.LastIndexByte(domain, '.'); dot > 0 {
		name, suffix = domain[:dot], domain[dot:]
	}
	if len(name) >= 2 {
		masked += "@" + name[:2] + "***" + suffix
	} else {
		masked += "@" + name + "***" + suffix
	}
	return masked
}
