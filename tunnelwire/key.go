package tunnelwire

import (
	"crypto/md5"
	"encoding/hex"
)

// DeriveKey computes the AES-256 key for a shared tunnel password: the
// lowercase hex encoding of MD5(password), used as 32 raw ASCII key bytes
// rather than decoded back to 16 binary bytes. This reproduces the wire
// format's key schedule exactly (SPEC_FULL.md §4.1) — it is not a sound key
// derivation function, only a wire-compatible one; see DESIGN.md.
func DeriveKey(password string) []byte {
	sum := md5.Sum([]byte(password))
	hexDigest := hex.EncodeToString(sum[:])
	return []byte(hexDigest)
}
