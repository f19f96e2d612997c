// Package gatomic casts sync/atomic's untyped pointer primitives into
// generic, type-safe wrappers so callers never have to spell out the
// unsafe.Pointer dance themselves. Every ctrie node transition goes
// through these: I-node main pointers, main-node prev/failed chains, and
// the root slot are all plain struct fields mutated exclusively through
// this package, never in place.
package gatomic

import (
	"sync/atomic"
	"unsafe"
)

// LoadPointer atomically loads *addr.
func LoadPointer[T any](addr **T) *T {
	return (*T)(atomic.LoadPointer((*unsafe.Pointer)(unsafe.Pointer(addr))))
}

// StorePointer atomically stores val into *addr.
func StorePointer[T any](addr **T, val *T) {
	atomic.StorePointer((*unsafe.Pointer)(unsafe.Pointer(addr)), unsafe.Pointer(val))
}

// CompareAndSwapPointer atomically swaps *addr from old to new, reporting
// whether the swap happened.
func CompareAndSwapPointer[T any](addr **T, old, new *T) (swapped bool) {
	return atomic.CompareAndSwapPointer(
		(*unsafe.Pointer)(unsafe.Pointer(addr)),
		unsafe.Pointer(old),
		unsafe.Pointer(new),
	)
}

// LoadInt32 atomically loads *x.
func LoadInt32(x *int32) int32 {
	return atomic.LoadInt32(x)
}

// StoreInt32 atomically stores v into *x.
func StoreInt32(x *int32, v int32) {
	atomic.StoreInt32(x, v)
}

// CompareAndSwapInt32 atomically swaps *x from old to new, reporting
// whether the swap happened.
func CompareAndSwapInt32(x *int32, old, new int32) bool {
	return atomic.CompareAndSwapInt32(x, old, new)
}
