// Package fingerprint computes the content fingerprint used as a plan's
// ETag.
package fingerprint

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// domainKey keys the hash so plan fingerprints never collide with other
// BLAKE3 digests of the same bytes.
var domainKey = [32]byte{
	'p', 'l', 'a', 'n', 's', '/', 'd', 'o', 'c', 'u', 'm', 'e', 'n', 't', '/', 'v', '1',
}

// Of returns the hex-encoded keyed BLAKE3 digest of a canonical document
// serialization.
func Of(canonical []byte) string {
	h, err := blake3.NewKeyed(domainKey[:])
	if err != nil {
		// Only a key of the wrong length fails.
		panic(err)
	}
	_, _ = h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}

// Matches reports whether a client-supplied validator names fp. Surrounding
// quotes and a weak "W/" prefix are ignored.
func Matches(validator, fp string) bool {
	return Normalize(validator) == fp
}

// Normalize strips HTTP entity-tag syntax from a validator.
func Normalize(validator string) string {
	v := validator
	if len(v) > 2 && v[:2] == "W/" {
		v = v[2:]
	}
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		v = v[1 : len(v)-1]
	}
	return v
}

// Quote formats fp as a strong HTTP entity tag.
func Quote(fp string) string {
	return `"` + fp + `"`
}
