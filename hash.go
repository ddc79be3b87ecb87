package rhmap

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"reflect"
	"unsafe"

	"github.com/dchest/siphash"
)

// HashFn is a function that returns a 64 bit digest of 't'. It must
// return the same digest for records that Compare reports as equal,
// for a fixed pair of seeds.
type HashFn[T any] func(t T, seed0, seed1 uint64) uint64

// CompareFn reports whether the records 'a' and 'b' carry the same
// key, zero means equal. Ordering results (<0, >0) are permitted but
// the map only ever distinguishes zero from nonzero.
type CompareFn[T any] func(a, b T) int

// FreeFn releases whatever the record 't' references outside the map.
type FreeFn[T any] func(t T)

// SipHash returns the SipHash-2-4 digest of 'b', keyed with seed0 and
// seed1 as the two 64 bit key halves.
func SipHash(b []byte, seed0, seed1 uint64) uint64 {
	return siphash.Hash(seed0, seed1, b)
}

// Murmur returns the low 64 bits of the 128 bit MurmurHash3 digest
// (x86 variant) of 'b', seeded with the low 32 bits of seed0. seed1 is
// accepted for signature uniformity and unused by this variant.
//
// The x86 variant mixes four 32 bit lanes. Note that the common Go
// murmur3 libraries implement the x64 variant, a different algorithm
// with different digests, so the x86 mixing is done here.
func Murmur(b []byte, seed0, seed1 uint64) uint64 {
	const (
		c1 = uint32(0x239b961b)
		c2 = uint32(0xab0e9789)
		c3 = uint32(0x38b34ae5)
		c4 = uint32(0xa1e38b93)
	)

	seed := uint32(seed0)
	h1, h2, h3, h4 := seed, seed, seed, seed

	data := b
	for len(data) >= 16 {
		k1 := binary.LittleEndian.Uint32(data[0:4])
		k2 := binary.LittleEndian.Uint32(data[4:8])
		k3 := binary.LittleEndian.Uint32(data[8:12])
		k4 := binary.LittleEndian.Uint32(data[12:16])
		data = data[16:]

		k1 *= c1
		k1 = bits.RotateLeft32(k1, 15)
		k1 *= c2
		h1 ^= k1
		h1 = bits.RotateLeft32(h1, 19)
		h1 += h2
		h1 = h1*5 + 0x561ccd1b

		k2 *= c2
		k2 = bits.RotateLeft32(k2, 16)
		k2 *= c3
		h2 ^= k2
		h2 = bits.RotateLeft32(h2, 17)
		h2 += h3
		h2 = h2*5 + 0x0bcaa747

		k3 *= c3
		k3 = bits.RotateLeft32(k3, 17)
		k3 *= c4
		h3 ^= k3
		h3 = bits.RotateLeft32(h3, 15)
		h3 += h4
		h3 = h3*5 + 0x96cd1c35

		k4 *= c4
		k4 = bits.RotateLeft32(k4, 18)
		k4 *= c1
		h4 ^= k4
		h4 = bits.RotateLeft32(h4, 13)
		h4 += h1
		h4 = h4*5 + 0x32ac3b17
	}

	var k1, k2, k3, k4 uint32
	switch len(data) {
	case 15:
		k4 ^= uint32(data[14]) << 16
		fallthrough
	case 14:
		k4 ^= uint32(data[13]) << 8
		fallthrough
	case 13:
		k4 ^= uint32(data[12])
		k4 *= c4
		k4 = bits.RotateLeft32(k4, 18)
		k4 *= c1
		h4 ^= k4
		fallthrough
	case 12:
		k3 ^= uint32(data[11]) << 24
		fallthrough
	case 11:
		k3 ^= uint32(data[10]) << 16
		fallthrough
	case 10:
		k3 ^= uint32(data[9]) << 8
		fallthrough
	case 9:
		k3 ^= uint32(data[8])
		k3 *= c3
		k3 = bits.RotateLeft32(k3, 17)
		k3 *= c4
		h3 ^= k3
		fallthrough
	case 8:
		k2 ^= uint32(data[7]) << 24
		fallthrough
	case 7:
		k2 ^= uint32(data[6]) << 16
		fallthrough
	case 6:
		k2 ^= uint32(data[5]) << 8
		fallthrough
	case 5:
		k2 ^= uint32(data[4])
		k2 *= c2
		k2 = bits.RotateLeft32(k2, 16)
		k2 *= c3
		h2 ^= k2
		fallthrough
	case 4:
		k1 ^= uint32(data[3]) << 24
		fallthrough
	case 3:
		k1 ^= uint32(data[2]) << 16
		fallthrough
	case 2:
		k1 ^= uint32(data[1]) << 8
		fallthrough
	case 1:
		k1 ^= uint32(data[0])
		k1 *= c1
		k1 = bits.RotateLeft32(k1, 15)
		k1 *= c2
		h1 ^= k1
	}

	n := uint32(len(b))
	h1 ^= n
	h2 ^= n
	h3 ^= n
	h4 ^= n

	h1 += h2 + h3 + h4
	h2 += h1
	h3 += h1
	h4 += h1
	h1 = fmix32(h1)
	h2 = fmix32(h2)
	h3 = fmix32(h3)
	h4 = fmix32(h4)
	h1 += h2 + h3 + h4
	// only h1 and h2 leave as the low half of the 128 bit digest
	h2 += h1

	return uint64(h1) | uint64(h2)<<32
}

// fmix32 implements MurmurHash3's 32-bit finalizer.
func fmix32(h uint32) uint32 {
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}

// GetHasher returns a seeded hasher for the golang default types.
// Strings are digested with keyed SipHash, fixed width keys run
// through a seeded 64 bit finalizer. Panics for key types that need a
// caller supplied hasher.
func GetHasher[Key any]() HashFn[Key] {
	var key Key
	kind := reflect.ValueOf(&key).Elem().Type().Kind()

	switch kind {
	case reflect.Int, reflect.Uint, reflect.Uintptr:
		switch unsafe.Sizeof(key) {
		case 2:
			return *(*HashFn[Key])(unsafe.Pointer(&hashWord))
		case 4:
			return *(*HashFn[Key])(unsafe.Pointer(&hashDword))
		case 8:
			return *(*HashFn[Key])(unsafe.Pointer(&hashQword))

		default:
			panic("unsupported integer byte size")
		}

	case reflect.Int8, reflect.Uint8:
		return *(*HashFn[Key])(unsafe.Pointer(&hashByte))
	case reflect.Int16, reflect.Uint16:
		return *(*HashFn[Key])(unsafe.Pointer(&hashWord))
	case reflect.Int32, reflect.Uint32:
		return *(*HashFn[Key])(unsafe.Pointer(&hashDword))
	case reflect.Int64, reflect.Uint64:
		return *(*HashFn[Key])(unsafe.Pointer(&hashQword))
	case reflect.Float32:
		return *(*HashFn[Key])(unsafe.Pointer(&hashFloat32))
	case reflect.Float64:
		return *(*HashFn[Key])(unsafe.Pointer(&hashFloat64))
	case reflect.String:
		return *(*HashFn[Key])(unsafe.Pointer(&hashString))

	default:
		panic(fmt.Sprintf("unsupported key type %T of kind %v", key, kind))
	}
}

// mix64 implements MurmurHash3's 64-bit finalizer over the key folded
// with both seeds.
func mix64(key, seed0, seed1 uint64) uint64 {
	key ^= seed0
	key ^= (key >> 33)
	key *= 0xff51afd7ed558ccd
	key ^= (key >> 33)
	key *= 0xc4ceb9fe1a85ec53
	key ^= (key >> 33)
	return key ^ seed1
}

var hashByte = func(in uint8, seed0, seed1 uint64) uint64 {
	return mix64(uint64(in), seed0, seed1)
}

var hashWord = func(in uint16, seed0, seed1 uint64) uint64 {
	return mix64(uint64(in), seed0, seed1)
}

var hashDword = func(in uint32, seed0, seed1 uint64) uint64 {
	return mix64(uint64(in), seed0, seed1)
}

var hashQword = func(in uint64, seed0, seed1 uint64) uint64 {
	return mix64(in, seed0, seed1)
}

var hashFloat32 = func(in float32, seed0, seed1 uint64) uint64 {
	p := unsafe.Pointer(&in)
	return mix64(uint64(*(*uint32)(p)), seed0, seed1)
}

var hashFloat64 = func(in float64, seed0, seed1 uint64) uint64 {
	p := unsafe.Pointer(&in)
	return mix64(*(*uint64)(p), seed0, seed1)
}

var hashString = func(s string, seed0, seed1 uint64) uint64 {
	return SipHash(unsafe.Slice(unsafe.StringData(s), len(s)), seed0, seed1)
}
