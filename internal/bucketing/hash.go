// Package bucketing assigns experiment units to groups by hashing and
// searches for the assignment seed that best balances pre-experiment metrics.
package bucketing

import (
	"crypto/sha1"
	"encoding/binary"
	"unicode/utf16"
)

// Buckets is the number of hash buckets. Group percentages map onto them.
const Buckets = 100

const keySuffix = "exp_bucket"

// Hasher maps a (seed, id) pair to a bucket in [0, Buckets). Assignments are
// only reproducible across systems that use the same Hasher.
type Hasher interface {
	Bucket(seed, id string) int
}

// RollingHasher is the 32-bit h*31+c string hash over the UTF-16 code units
// of id+seed+"exp_bucket", reduced with |h| mod 100.
type RollingHasher struct{}

func (RollingHasher) Bucket(seed, id string) int {
	var h int32
	for _, c := range utf16.Encode([]rune(id + seed + keySuffix)) {
		h = h*31 + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return int(v % Buckets)
}

// SHA1Hasher takes the last four bytes of SHA-1(id+seed+"exp_bucket") as a
// big-endian integer, mod 100.
type SHA1Hasher struct{}

func (SHA1Hasher) Bucket(seed, id string) int {
	sum := sha1.Sum([]byte(id + seed + keySuffix))
	return int(binary.BigEndian.Uint32(sum[len(sum)-4:]) % Buckets)
}

// DefaultHasher is used when no Hasher is configured.
var DefaultHasher Hasher = RollingHasher{}

// Bucket hashes with DefaultHasher.
func Bucket(seed, id string) int {
	return DefaultHasher.Bucket(seed, id)
}

// HasherByName resolves the names accepted in configuration.
func HasherByName(name string) (Hasher, bool) {
	switch name {
	case "", "rolling":
		return RollingHasher{}, true
	case "sha1":
		return SHA1Hasher{}, true
	}
	return nil, false
}

// HasherName is the configuration name of h.
func HasherName(h Hasher) string {
	if _, ok := h.(SHA1Hasher); ok {
		return "sha1"
	}
	return "rolling"
}
