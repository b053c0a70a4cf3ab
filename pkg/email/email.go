package email

import (
	"net/mail"
	"strings"
)

// Normalize trims surrounding whitespace and lower-cases the address.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// IsValid reports whether address is a single bare addr-spec with a dotted
// domain, e.g. "jane@example.com". Display-name forms are rejected.
func IsValid(address string) bool {
	if address == "" || strings.ContainsAny(address, " \t\r\n<>") {
		return false
	}
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return false
	}
	at := strings.LastIndexByte(address, '@')
	domain := address[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}
