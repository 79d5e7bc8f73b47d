package content

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// Hasher computes the digest that names a blob. Digests are lowercase hex.
type Hasher interface {
	Name() string
	Sum(data []byte) string
}

type blake3Hasher struct{}

func (blake3Hasher) Name() string { return "blake3" }

func (blake3Hasher) Sum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type sha256Hasher struct{}

func (sha256Hasher) Name() string { return "sha256" }

func (sha256Hasher) Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Built-in hashers.
var (
	Blake3 Hasher = blake3Hasher{}
	SHA256 Hasher = sha256Hasher{}
)

// HasherByName returns the built-in hasher with the given name.
// An empty name selects Blake3.
func HasherByName(name string) (Hasher, error) {
	switch name {
	case "", "blake3":
		return Blake3, nil
	case "sha256":
		return SHA256, nil
	default:
		return nil, fmt.Errorf("unknown content hash %q: must be blake3 or sha256", name)
	}
}

// validDigest reports whether d looks like a hex digest. Digests become file
// names, so anything else (separators, dots) is refused.
func validDigest(d string) bool {
	if len(d) == 0 {
		return false
	}
	for i := 0; i < len(d); i++ {
		c := d[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
