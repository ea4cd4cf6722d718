// Package location resolves which business a report is coming from using GPS,
// Wi-Fi fingerprints and a nearby-places search.
package location

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint hashes a Wi-Fi network identity into a stable cache key. The BSSID
// identifies the access point; the SSID disambiguates hardware reused across
// networks. Returns "" when neither is known.
func Fingerprint(ssid, bssid string) string {
	ssid = strings.TrimSpace(ssid)
	bssid = strings.ToLower(strings.TrimSpace(bssid))
	if ssid == "" && bssid == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(bssid + "|" + ssid))
	return hex.EncodeToString(sum[:])
}
