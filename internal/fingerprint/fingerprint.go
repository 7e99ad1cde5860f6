// Package fingerprint defines the page fingerprint type and the hash
// functions that can produce it.
package fingerprint

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Size is the width of a fingerprint in bytes.
const Size = 8

// Fingerprint identifies page content for change detection.
// Only equality is meaningful.
type Fingerprint uint64

// String returns the fingerprint as 16 hex digits.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// HashFunc computes a fingerprint over a byte buffer.
// Implementations must be deterministic and must not retain data.
type HashFunc func(data []byte) uint64

// XXHash64 is the default hash: XXH64 with seed 0.
func XXHash64(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// FNV1a64 is a slower alternative with no third-party code path.
func FNV1a64(data []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(data)
	return h.Sum64()
}

// Of fingerprints data with h.
func Of(h HashFunc, data []byte) Fingerprint {
	return Fingerprint(h(data))
}

// Algorithm names accepted by ByName.
const (
	AlgorithmXXHash64 = "xxhash64"
	AlgorithmFNV1a64  = "fnv1a64"
)

// ByName resolves a configured algorithm name. An empty name selects XXHash64.
func ByName(name string) (HashFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", AlgorithmXXHash64, "xxh64":
		return XXHash64, nil
	case AlgorithmFNV1a64, "fnv":
		return FNV1a64, nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", name)
	}
}

// Encode writes the little-endian bytes of fps into a new buffer.
func Encode(fps []Fingerprint) []byte {
	buf := make([]byte, len(fps)*Size)
	for i, fp := range fps {
		binary.LittleEndian.PutUint64(buf[i*Size:], uint64(fp))
	}
	return buf
}

// Decode parses whole little-endian records from buf. Trailing bytes that do
// not form a complete record are ignored and reported via the second result.
func Decode(buf []byte) ([]Fingerprint, int) {
	n := len(buf) / Size
	fps := make([]Fingerprint, n)
	for i := range fps {
		fps[i] = Fingerprint(binary.LittleEndian.Uint64(buf[i*Size:]))
	}
	return fps, len(buf) % Size
}
