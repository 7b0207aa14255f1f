// Package pattern produces the deterministic test stream written to and
// read back from devices under test.
//
// The stream for a seed is a ChaCha20 keystream addressed by byte offset,
// so any chunk can be regenerated on its own without replaying the bytes
// before it.
package pattern

import (
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/chacha20"
)

const (
	blockSize = 64
	// blocksPerEpoch is the span of the 32-bit ChaCha20 block counter.
	// The high bits of the block index go into the nonce.
	blocksPerEpoch = 1 << 32
)

var keyTag = []byte("platter/pattern/v1")

// Source generates the stream for a single seed.
type Source struct {
	seed uint64
	key  [chacha20.KeySize]byte
}

// New returns the Source for seed.
func New(seed uint64) *Source {
	s := &Source{seed: seed}
	buf := make([]byte, 0, len(keyTag)+8)
	buf = append(buf, keyTag...)
	buf = binary.LittleEndian.AppendUint64(buf, seed)
	s.key = sha256.Sum256(buf)
	return s
}

// Seed returns the seed the Source was built from.
func (s *Source) Seed() uint64 { return s.seed }

// Fill overwrites p with the stream bytes starting at offset.
func (s *Source) Fill(offset uint64, p []byte) {
	for len(p) > 0 {
		block := offset / blockSize
		skip := offset % blockSize
		// bytes left before the counter wraps into the next nonce epoch
		room := (blocksPerEpoch-block%blocksPerEpoch)*blockSize - skip
		n := len(p)
		if uint64(n) > room {
			n = int(room)
		}

		var nonce [chacha20.NonceSize]byte
		binary.LittleEndian.PutUint64(nonce[4:], block/blocksPerEpoch)
		c, err := chacha20.NewUnauthenticatedCipher(s.key[:], nonce[:])
		if err != nil {
			// key and nonce sizes are fixed above
			panic(err)
		}
		c.SetCounter(uint32(block % blocksPerEpoch))
		if skip > 0 {
			var discard [blockSize]byte
			c.XORKeyStream(discard[:skip], discard[:skip])
		}
		clear(p[:n])
		c.XORKeyStream(p[:n], p[:n])

		p = p[n:]
		offset += uint64(n)
	}
}

// Chunk returns length stream bytes starting at offset.
func (s *Source) Chunk(offset uint64, length int) []byte {
	p := make([]byte, length)
	s.Fill(offset, p)
	return p
}

// Generate is shorthand for New(seed).Chunk(offset, length).
func Generate(seed, offset uint64, length int) []byte {
	return New(seed).Chunk(offset, length)
}
