package atomics

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/vireojs/vireo/errs"
)

// Kind identifies the element type of a [View].
type Kind int

const (
	Int8 Kind = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
)

// Size returns the element width in bytes.
func (k Kind) Size() int {
	switch k {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32:
		return 4
	case Int64, Uint64:
		return 8
	}
	return 0
}

// Signed reports whether values read through the view are sign extended.
func (k Kind) Signed() bool {
	switch k {
	case Int8, Int16, Int32, Int64:
		return true
	}
	return false
}

func (k Kind) String() string {
	switch k {
	case Int8:
		return `Int8`
	case Uint8:
		return `Uint8`
	case Int16:
		return `Int16`
	case Uint16:
		return `Uint16`
	case Int32:
		return `Int32`
	case Uint32:
		return `Uint32`
	case Int64:
		return `Int64`
	case Uint64:
		return `Uint64`
	}
	return `Kind(invalid)`
}

// View is a typed window over a [SharedBuffer]. Values are carried as
// int64: sign extended for signed kinds, zero extended for unsigned, and
// truncated to the element width on write.
//
// Views are plain values; any number may alias the same buffer region, and
// atomic operations through aliasing views of the same width are coherent
// with each other.
type View struct {
	buf        *SharedBuffer
	kind       Kind
	byteOffset int
	length     int
}

// NewView creates a view of length elements of kind, starting byteOffset
// bytes into buf. The offset must be a multiple of the element size and
// the view must fit within the buffer.
func NewView(buf *SharedBuffer, kind Kind, byteOffset, length int) (*View, error) {
	size := kind.Size()
	if size == 0 {
		return nil, errs.NewTypeError(`atomics: invalid element kind %d`, int(kind))
	}
	if buf == nil {
		return nil, errs.NewTypeError(`atomics: nil buffer`)
	}
	if byteOffset < 0 || byteOffset%size != 0 {
		return nil, errs.NewRangeError(`atomics: byte offset %d is not a multiple of element size %d`, byteOffset, size)
	}
	if length < 0 {
		return nil, errs.NewRangeError(`atomics: invalid view length %d`, length)
	}
	if end := byteOffset + length*size; end > buf.Len() || end < byteOffset {
		return nil, errs.NewRangeError(`atomics: view of %d elements at offset %d exceeds buffer size %d`, length, byteOffset, buf.Len())
	}
	return &View{
		buf:        buf,
		kind:       kind,
		byteOffset: byteOffset,
		length:     length,
	}, nil
}

// Kind returns the element kind.
func (v *View) Kind() Kind { return v.kind }

// Len returns the number of elements.
func (v *View) Len() int { return v.length }

// Buffer returns the underlying buffer.
func (v *View) Buffer() *SharedBuffer { return v.buf }

// IsLockFree reports whether atomic operations on elements of the given
// byte size never fall back to locking. All supported widths qualify:
// sub-word widths are implemented with compare-and-swap on the containing
// aligned 32-bit word.
func IsLockFree(size int) bool {
	switch size {
	case 1, 2, 4, 8:
		return true
	}
	return false
}

// Pause hints to the CPU that the caller is in a spin-wait loop. The
// iteration count scales the hint; it has no other observable effect.
func Pause(iterations int) error {
	if iterations < 0 {
		return errs.NewRangeError(`atomics: negative pause iteration count %d`, iterations)
	}
	if iterations > 1024 {
		iterations = 1024
	}
	for i := 0; i < iterations; i++ {
		runtime.Gosched()
	}
	return nil
}

// Load atomically reads the element at index.
func (v *View) Load(index int) (int64, error) {
	p, err := v.addr(index)
	if err != nil {
		return 0, err
	}
	return v.extend(v.load(p)), nil
}

// Store atomically writes value (truncated to the element width) at index
// and returns the stored value as read back through the view's kind.
func (v *View) Store(index int, value int64) (int64, error) {
	p, err := v.addr(index)
	if err != nil {
		return 0, err
	}
	raw := uint64(value) & v.mask()
	v.store(p, raw)
	return v.extend(raw), nil
}

// Add atomically adds value to the element at index and returns the old
// value.
func (v *View) Add(index int, value int64) (int64, error) {
	return v.rmw(index, func(old uint64) uint64 { return old + uint64(value) })
}

// Sub atomically subtracts value from the element at index and returns the
// old value.
func (v *View) Sub(index int, value int64) (int64, error) {
	return v.rmw(index, func(old uint64) uint64 { return old - uint64(value) })
}

// And atomically ANDs value into the element at index and returns the old
// value.
func (v *View) And(index int, value int64) (int64, error) {
	return v.rmw(index, func(old uint64) uint64 { return old & uint64(value) })
}

// Or atomically ORs value into the element at index and returns the old
// value.
func (v *View) Or(index int, value int64) (int64, error) {
	return v.rmw(index, func(old uint64) uint64 { return old | uint64(value) })
}

// Xor atomically XORs value into the element at index and returns the old
// value.
func (v *View) Xor(index int, value int64) (int64, error) {
	return v.rmw(index, func(old uint64) uint64 { return old ^ uint64(value) })
}

// Exchange atomically replaces the element at index with value and returns
// the old value.
func (v *View) Exchange(index int, value int64) (int64, error) {
	return v.rmw(index, func(uint64) uint64 { return uint64(value) })
}

// CompareExchange atomically replaces the element at index with
// replacement if its current value equals expected. The value observed
// before the operation is returned either way; the exchange took effect
// iff that value equals expected.
func (v *View) CompareExchange(index int, expected, replacement int64) (int64, error) {
	p, err := v.addr(index)
	if err != nil {
		return 0, err
	}
	mask := v.mask()
	want := uint64(expected) & mask
	repl := uint64(replacement) & mask
	for {
		old := v.load(p)
		if old != want {
			return v.extend(old), nil
		}
		if v.cas(p, old, repl) {
			return v.extend(old), nil
		}
	}
}

// rmw applies f to the element at index in a compare-and-swap loop and
// returns the old value.
func (v *View) rmw(index int, f func(old uint64) uint64) (int64, error) {
	p, err := v.addr(index)
	if err != nil {
		return 0, err
	}
	mask := v.mask()
	for {
		old := v.load(p)
		if v.cas(p, old, f(old)&mask) {
			return v.extend(old), nil
		}
	}
}

// addr validates index and returns the element's address.
func (v *View) addr(index int) (unsafe.Pointer, error) {
	if index < 0 || index >= v.length {
		return nil, errs.NewRangeError(`atomics: index %d out of range for view of %d elements`, index, v.length)
	}
	return unsafe.Add(v.buf.base(), v.byteOffset+index*v.kind.Size()), nil
}

// mask returns the element-width bit mask.
func (v *View) mask() uint64 {
	size := v.kind.Size()
	if size == 8 {
		return ^uint64(0)
	}
	return 1<<(size*8) - 1
}

// extend converts a raw element-width value to int64 per the view's kind.
func (v *View) extend(raw uint64) int64 {
	if !v.kind.Signed() {
		return int64(raw)
	}
	switch v.kind.Size() {
	case 1:
		return int64(int8(raw))
	case 2:
		return int64(int16(raw))
	case 4:
		return int64(int32(raw))
	}
	return int64(raw)
}

// Sub-word (1 and 2 byte) atomics operate on the containing aligned 32-bit
// word, with byte-lane shifts computed for little-endian hosts. All
// first-class Go platforms are little endian.

// wordFor returns the aligned 32-bit word containing p and the bit shift
// of p's lane within it.
func wordFor(p unsafe.Pointer) (*uint32, uint) {
	word := (*uint32)(unsafe.Pointer(uintptr(p) &^ 3))
	shift := uint(uintptr(p)&3) * 8
	return word, shift
}

func (v *View) load(p unsafe.Pointer) uint64 {
	switch v.kind.Size() {
	case 4:
		return uint64(atomic.LoadUint32((*uint32)(p)))
	case 8:
		return atomic.LoadUint64((*uint64)(p))
	}
	word, shift := wordFor(p)
	return uint64(atomic.LoadUint32(word)>>shift) & v.mask()
}

func (v *View) store(p unsafe.Pointer, raw uint64) {
	switch v.kind.Size() {
	case 4:
		atomic.StoreUint32((*uint32)(p), uint32(raw))
		return
	case 8:
		atomic.StoreUint64((*uint64)(p), raw)
		return
	}
	word, shift := wordFor(p)
	laneMask := uint32(v.mask()) << shift
	for {
		old := atomic.LoadUint32(word)
		updated := old&^laneMask | uint32(raw)<<shift
		if atomic.CompareAndSwapUint32(word, old, updated) {
			return
		}
	}
}

func (v *View) cas(p unsafe.Pointer, old, new uint64) bool {
	switch v.kind.Size() {
	case 4:
		return atomic.CompareAndSwapUint32((*uint32)(p), uint32(old), uint32(new))
	case 8:
		return atomic.CompareAndSwapUint64((*uint64)(p), old, new)
	}
	word, shift := wordFor(p)
	laneMask := uint32(v.mask()) << shift
	current := atomic.LoadUint32(word)
	if uint64(current>>shift)&v.mask() != old {
		return false
	}
	updated := current&^laneMask | uint32(new)<<shift
	return atomic.CompareAndSwapUint32(word, current, updated)
}
