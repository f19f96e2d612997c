package ctrie

import (
	"bytes"
	"fmt"
	"hash/maphash"
)

// Hashable is satisfied by key types that know how to hash themselves. It
// is the constraint used by New; keys that don't want to implement Hash
// can instead be used with WithHasher and an explicit HashBuilder.
type Hashable interface {
	comparable
	Hash() uint64
}

// HashBuilder bundles the hash function and equality predicate a Ctrie
// needs for a key type. Hash must be deterministic for a given key and
// should produce well-mixed 64-bit values: the trie only ever looks at
// six bits of the hash per level, so a poorly-mixed hash degrades directly
// into long L-node chains (spec §7: a hash contract violation is never
// incorrect, only inefficient).
type HashBuilder[K any] struct {
	Hash  func(K) uint64
	Equal func(a, b K) bool
}

var hashSeed = maphash.MakeSeed()

// StringHash is a well-mixed 64-bit hash for string keys.
func StringHash(key string) uint64 {
	var h maphash.Hash
	h.SetSeed(hashSeed)
	h.WriteString(key)
	return h.Sum64()
}

// BytesHash is a well-mixed 64-bit hash for []byte keys.
func BytesHash(key []byte) uint64 {
	var h maphash.Hash
	h.SetSeed(hashSeed)
	h.Write(key)
	return h.Sum64()
}

// StringHashBuilder is a ready-made HashBuilder for string keys.
func StringHashBuilder() HashBuilder[string] {
	return HashBuilder[string]{
		Hash:  StringHash,
		Equal: func(a, b string) bool { return a == b },
	}
}

// BytesHashBuilder is a ready-made HashBuilder for []byte keys.
func BytesHashBuilder() HashBuilder[[]byte] {
	return HashBuilder[[]byte]{
		Hash:  BytesHash,
		Equal: bytes.Equal,
	}
}

// defaultHashBuilder is used by WithHasher when the caller leaves Hash or
// Equal nil, falling back to the well-known key shapes the package ships
// hashers for.
func defaultHashBuilder[K any]() HashBuilder[K] {
	var k K
	switch any(k).(type) {
	case string:
		return HashBuilder[K]{
			Hash:  any(StringHash).(func(K) uint64),
			Equal: any(func(a, b string) bool { return a == b }).(func(K, K) bool),
		}
	case []byte:
		return HashBuilder[K]{
			Hash:  any(BytesHash).(func(K) uint64),
			Equal: any(bytes.Equal).(func(K, K) bool),
		}
	default:
		panic(fmt.Errorf("ctrie: no default hash builder for %T; use WithHasher with an explicit HashBuilder", k))
	}
}
