// Package fingerprint computes 224-bit content digests used as cache keys.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/markdave123-py/iatidocs/internal/core"
)

type Algorithm string

const (
	SHA224   Algorithm = "sha224"
	SHA3_224 Algorithm = "sha3-224"
)

var _ core.Fingerprinter = Fingerprinter{}

// Fingerprinter hashes the exact byte sequence it is given.
type Fingerprinter struct {
	algo Algorithm
}

func New(algo string) (Fingerprinter, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(algo))); a {
	case "":
		return Fingerprinter{algo: SHA224}, nil
	case SHA224, SHA3_224:
		return Fingerprinter{algo: a}, nil
	default:
		return Fingerprinter{}, fmt.Errorf("unknown fingerprint algorithm %q", algo)
	}
}

func (f Fingerprinter) Algorithm() Algorithm {
	if f.algo == "" {
		return SHA224
	}
	return f.algo
}

// Sum returns the lowercase hex digest of body (56 characters).
func (f Fingerprinter) Sum(body []byte) string {
	if f.algo == SHA3_224 {
		sum := sha3.Sum224(body)
		return hex.EncodeToString(sum[:])
	}
	sum := sha256.Sum224(body)
	return hex.EncodeToString(sum[:])
}
