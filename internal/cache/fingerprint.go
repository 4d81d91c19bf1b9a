package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// Fingerprint digests a query vector with its parameters. Vectors that differ
// in any bit, or the same vector with a different k or mode, give different keys.
func Fingerprint(query []float32, k int, mode string) string {
	h := sha256.New()
	h.Write([]byte(mode))
	h.Write([]byte{0})
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(k))
	h.Write(buf[:])
	for _, v := range query {
		binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v))
		h.Write(buf[:4])
	}
	return hex.EncodeToString(h.Sum(nil))
}
