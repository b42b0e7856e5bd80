package models

import "strings"

// SanitizeKeySegment escapes ':' so an identifier like "login:1.2.3.4" cannot
// address another class's counter.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// NewKey builds "<class>:<identifier>". Empty identifiers share the "unknown" bucket.
func NewKey(class EndpointClass, identifier string) string {
	if identifier == "" {
		identifier = "unknown"
	}
	return string(class) + ":" + SanitizeKeySegment(identifier)
}
