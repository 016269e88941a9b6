//go:build windows

package atomics

// mapShared allocates size bytes from the heap. The uint64-backed
// allocation guarantees 8-byte alignment for every element width.
func mapShared(size int) ([]byte, func() error, error) {
	data := alignedBytes(size)
	release := func() error { return nil }
	return data, release, nil
}
