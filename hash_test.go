package rhmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/EinfachAndy/rhmap"
)

// TestSipHashVectors checks the digests against the reference vectors
// of the SipHash-2-4 paper: key bytes 00..0f, message the first n
// bytes of 00, 01, 02, ...
func TestSipHashVectors(t *testing.T) {
	const (
		k0 = uint64(0x0706050403020100)
		k1 = uint64(0x0f0e0d0c0b0a0908)
	)
	vectors := []uint64{
		0x726fdb47dd0e0e31,
		0x74f839c593dc67fd,
		0x0d6c8009d9a94f5a,
		0x85676696d7fb7e2d,
		0xcf2794e0277187b7,
		0x18765564cd99a68d,
		0xcbc9466e58fee3ce,
		0xab0200f58b01d137,
	}

	msg := make([]byte, 0, len(vectors))
	for n, want := range vectors {
		assert.Equal(t, want, rhmap.SipHash(msg, k0, k1), "message length %d", n)
		msg = append(msg, byte(n))
	}
}

func TestSipHashSeeded(t *testing.T) {
	b := []byte("hello")
	assert.Equal(t, rhmap.SipHash(b, 1, 2), rhmap.SipHash(b, 1, 2))
	assert.NotEqual(t, rhmap.SipHash(b, 1, 2), rhmap.SipHash(b, 3, 2))
	assert.NotEqual(t, rhmap.SipHash(b, 1, 2), rhmap.SipHash(b, 1, 4))
}

// TestMurmurVectors checks the digests against the reference
// MurmurHash3-x86-128 implementation: message the first n bytes of
// 00, 01, 02, ... under the classic murmur test seed, expecting the
// low 64 bits of the 128 bit output. The lengths cover every tail
// lane and multi block messages.
func TestMurmurVectors(t *testing.T) {
	const seed = uint64(0x9747b28c)
	vectors := []uint64{
		0x5b576a1cf7bed5a1,
		0x818f3db76767641a,
		0xa293b3d8fd1c3cd3,
		0xc1d21b57b4343391,
		0x763f8ad7675c0a3e,
		0xea7656a0f22839ff,
		0x06a07ffb3a344748,
		0xe1802b1f6103b46a,
		0x18bd24f98f41fe03,
		0x5da6ca7328b791e5,
		0x13453234fc57e469,
		0x7a007978c1a5a651,
		0x623852dbc0dc7005,
		0x2058eec12bad06cb,
		0xbd20d868a96c6832,
		0x09cc6908d1d3cd85,
		0xc8cf189419dfae47,
	}

	msg := make([]byte, 48)
	for i := range msg {
		msg[i] = byte(i)
	}

	for n, want := range vectors {
		assert.Equal(t, want, rhmap.Murmur(msg[:n], seed, 0), "message length %d", n)
	}
	assert.Equal(t, uint64(0xfdcc072646f4fb22), rhmap.Murmur(msg[:24], seed, 0))
	assert.Equal(t, uint64(0xa850fc1fd1b6ca35), rhmap.Murmur(msg[:31], seed, 0))
	assert.Equal(t, uint64(0x00b0061b48f999b2), rhmap.Murmur(msg[:32], seed, 0))
	assert.Equal(t, uint64(0x606eaddc1dc15998), rhmap.Murmur(msg[:48], seed, 0))

	fox := []byte("The quick brown fox jumps over the lazy dog")
	assert.Equal(t, uint64(0xecee2c672f1583c3), rhmap.Murmur(fox, 0, 0))

	// the empty message digests to zero under seed zero
	assert.Equal(t, uint64(0), rhmap.Murmur(nil, 0, 0))
}

func TestMurmurSeeds(t *testing.T) {
	b := []byte("hello")

	assert.Equal(t, rhmap.Murmur(b, 7, 0), rhmap.Murmur(b, 7, 0))
	assert.NotEqual(t, rhmap.Murmur(b, 7, 0), rhmap.Murmur(b, 8, 0))

	// only the low 32 bits of seed0 take part, seed1 never does
	assert.Equal(t, rhmap.Murmur(b, 7, 1), rhmap.Murmur(b, 7, 2))
	assert.Equal(t, rhmap.Murmur(b, 7, 0), rhmap.Murmur(b, 7|(1<<40), 0))
}

func TestGetHasherString(t *testing.T) {
	h := rhmap.GetHasher[string]()
	assert.Equal(t, rhmap.SipHash([]byte("hashmap"), 1, 2), h("hashmap", 1, 2))
	assert.Equal(t, rhmap.SipHash(nil, 1, 2), h("", 1, 2))
}

func TestGetHasherInts(t *testing.T) {
	h8 := rhmap.GetHasher[uint8]()
	h16 := rhmap.GetHasher[int16]()
	h32 := rhmap.GetHasher[uint32]()
	h64 := rhmap.GetHasher[int64]()
	hi := rhmap.GetHasher[int]()

	// deterministic and seed sensitive
	assert.Equal(t, h64(42, 1, 2), h64(42, 1, 2))
	assert.NotEqual(t, h64(42, 1, 2), h64(42, 3, 2))
	assert.NotEqual(t, h64(42, 1, 2), h64(42, 1, 4))
	assert.NotEqual(t, h64(42, 1, 2), h64(43, 1, 2))

	assert.Equal(t, h8(7, 1, 2), h8(7, 1, 2))
	assert.Equal(t, h16(7, 1, 2), h16(7, 1, 2))
	assert.Equal(t, h32(7, 1, 2), h32(7, 1, 2))
	assert.Equal(t, hi(7, 1, 2), hi(7, 1, 2))
}

func TestGetHasherFloats(t *testing.T) {
	h32 := rhmap.GetHasher[float32]()
	h64 := rhmap.GetHasher[float64]()

	assert.Equal(t, h32(3.5, 1, 2), h32(3.5, 1, 2))
	assert.NotEqual(t, h32(3.5, 1, 2), h32(3.25, 1, 2))
	assert.Equal(t, h64(3.5, 1, 2), h64(3.5, 1, 2))
	assert.NotEqual(t, h64(3.5, 1, 2), h64(3.25, 1, 2))
}

func TestGetHasherUnsupported(t *testing.T) {
	assert.Panics(t, func() {
		rhmap.GetHasher[[2]int]()
	})
}
