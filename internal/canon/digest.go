package canon

import (
	"fmt"
	"hash/fnv"
)

// Domain prefixes for digest computation. The version suffix allows the
// digest algorithm to change without silently colliding with old values.
const (
	DomainConfig = "warden/config/v1"
	DomainAudit  = "warden/audit/v1"
)

// Digest computes a non-cryptographic 64-bit digest of a value's
// canonical JSON, with domain separation. Digests are used for equality
// and change detection only, never for security.
//
// Format: "fnv1a:<16 hex digits>".
func Digest(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}

	h := fnv.New64a()
	h.Write([]byte(domain))
	h.Write([]byte{0x00}) // separator prevents domain/data boundary ambiguity
	h.Write(data)
	return fmt.Sprintf("fnv1a:%016x", h.Sum64()), nil
}

// MustDigest is like Digest but panics on error. Use only when inputs
// are known to be canonical-JSON safe.
func MustDigest(domain string, v any) string {
	d, err := Digest(domain, v)
	if err != nil {
		panic(err)
	}
	return d
}
