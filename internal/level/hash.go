package level

import (
	"net/url"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// TermHash is the canonical 64-bit hash used for tokens throughout the
// levels, matching the teacher platform's choice of xxhash for
// consistent, collision-tolerant hashing.
func TermHash(term string) uint64 {
	return xxhash.Sum64String(strings.ToLower(term))
}

// URLHash is the canonical 64-bit hash of a full URL string.
func URLHash(rawURL string) uint64 {
	return xxhash.Sum64String(rawURL)
}

// HostHash is the canonical 64-bit hash of a URL's host, used to key
// per-host url_level builders and as the domain_level record value.
// Parse failures fall back to hashing the raw string, matching the
// hash-only, collisions-accepted nature of this index (§3).
func HostHash(rawURL string) uint64 {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return xxhash.Sum64String(rawURL)
	}
	return xxhash.Sum64String(strings.ToLower(u.Hostname()))
}
