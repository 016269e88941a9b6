// Package atomics provides low-level atomic operations over raw byte
// buffers, modelled after the ECMAScript Atomics object: read-modify-write
// primitives, lock-free queries, and futex-style wait/notify coordination
// between goroutines and OS threads sharing a buffer.
//
// Operations go through a [View], a typed window over a [SharedBuffer].
// All element widths (1, 2, 4, and 8 bytes) are lock-free: sub-word widths
// are implemented by compare-and-swap on the containing aligned 32-bit
// word.
package atomics

import (
	"unsafe"

	"github.com/vireojs/vireo/errs"
)

// SharedBuffer is a block of memory that atomic views operate on. Buffers
// created with [NewShared] are backed by page-aligned mapped memory and may
// be waited on; buffers created with [FromBytes] support every operation
// except blocking waits.
type SharedBuffer struct {
	data    []byte
	release func() error
	shared  bool
}

// NewShared allocates a shared buffer of at least size bytes, zero filled.
// The buffer must be released with [SharedBuffer.Release] when no longer
// needed.
func NewShared(size int) (*SharedBuffer, error) {
	if size <= 0 {
		return nil, errs.NewRangeError(`atomics: invalid buffer size %d`, size)
	}
	data, release, err := mapShared(size)
	if err != nil {
		return nil, errs.WrapError(`atomics: map shared buffer`, err)
	}
	return &SharedBuffer{
		data:    data,
		release: release,
		shared:  true,
	}, nil
}

// FromBytes wraps b in a non-shared buffer. The bytes are copied into an
// 8-byte aligned allocation so that every element width can be accessed
// atomically. Blocking waits on the result fail with a TypeError.
func FromBytes(b []byte) *SharedBuffer {
	data := alignedBytes(len(b))
	copy(data, b)
	return &SharedBuffer{data: data}
}

// Bytes returns the backing storage. Concurrent plain access to bytes that
// are also targeted by atomic operations is the caller's problem.
func (b *SharedBuffer) Bytes() []byte { return b.data }

// Len returns the buffer size in bytes.
func (b *SharedBuffer) Len() int { return len(b.data) }

// Shared reports whether blocking waits are permitted on this buffer.
func (b *SharedBuffer) Shared() bool { return b.shared }

// Release unmaps a shared buffer. It is a no-op for non-shared buffers and
// for repeated calls. Views over the buffer must not be used afterwards.
func (b *SharedBuffer) Release() error {
	release := b.release
	b.release = nil
	if release == nil {
		return nil
	}
	return release()
}

// base returns the address of the first byte, for wait-table keying and
// pointer arithmetic.
func (b *SharedBuffer) base() unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(b.data))
}

// alignedBytes allocates n bytes with 8-byte alignment by carving them out
// of a uint64 slice.
func alignedBytes(n int) []byte {
	if n == 0 {
		return nil
	}
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), n)
}
