//go:build unix

package atomics

import "golang.org/x/sys/unix"

// mapShared allocates size bytes of anonymous shared memory. Page-aligned
// mappings guarantee 8-byte alignment for every element width.
func mapShared(size int) ([]byte, func() error, error) {
	data, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, nil, err
	}
	release := func() error {
		return unix.Munmap(data)
	}
	return data, release, nil
}
