// Package device turns User-Agent strings into display labels and coarse
// fingerprints that are recorded with refresh tokens.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/mssola/useragent"
)

const unknownDevice = "Unknown Device"

type Service struct {
	fingerprintEnabled bool
}

func NewService(fingerprintEnabled bool) *Service {
	return &Service{fingerprintEnabled: fingerprintEnabled}
}

// ParseUserAgent returns "<browser> on <os>", or "Unknown Device" for an empty header.
func ParseUserAgent(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return unknownDevice
	}
	ua := useragent.New(userAgent)

	browser, _ := ua.Browser()
	browser = strings.TrimSpace(browser)
	if browser == "" {
		browser = "Unknown Browser"
	}
	os := strings.TrimSpace(ua.OS())
	if os == "" {
		os = strings.TrimSpace(ua.Platform())
	}
	if os == "" {
		os = "Unknown OS"
	}
	return browser + " on " + os
}

// ComputeFingerprint hashes browser family, browser major version, OS and
// form factor. Patch-level browser updates keep the same fingerprint.
func (s *Service) ComputeFingerprint(userAgent string) string {
	if !s.fingerprintEnabled || userAgent == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	browser, version := ua.Browser()
	major, _, _ := strings.Cut(version, ".")

	form := "desktop"
	if ua.Mobile() {
		form = "mobile"
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{browser, major, ua.OS(), ua.Platform(), form}, "|")))
	return hex.EncodeToString(sum[:])
}

// CompareFingerprints reports a match and, when a fingerprint was recorded but
// differs, drift. An empty stored fingerprint never drifts.
func (s *Service) CompareFingerprints(stored, current string) (matched bool, drift bool) {
	if stored == "" {
		return current == "", false
	}
	matched = stored == current
	return matched, !matched
}
