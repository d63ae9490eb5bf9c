// Package byteops provides endian-adaptive readers and writers for the
// primitive types a SpatiaLite BLOB is built from: i32, f32, f64, and
// contiguous vectors of each.
//
// Every value is decoded through an explicit encoding/binary.ByteOrder
// selected once, at construction, from the BLOB's own endian marker. This
// sidesteps the classic "reverse the whole slab" bug: binary.ByteOrder
// always operates on one fixed-width element at a time, so a vector read
// never needs a separate pass to fix up element ordering.
package byteops

import (
	"encoding/binary"
	"math"
)

// Order wraps the byte order a Reader or Writer decodes/encodes with. Built
// once from the BLOB's endian marker and then treated as immutable.
type Order struct {
	bo binary.ByteOrder
}

// Big is the byte order for ENDIAN_BIG (0x00) BLOBs.
var Big = Order{bo: binary.BigEndian}

// Little is the byte order for ENDIAN_LITTLE (0x01) BLOBs.
var Little = Order{bo: binary.LittleEndian}

// FromMarker returns the Order corresponding to a BLOB endian marker byte
// (0x00 or 0x01). ok is false for any other value.
func FromMarker(marker byte) (Order, bool) {
	switch marker {
	case 0x00:
		return Big, true
	case 0x01:
		return Little, true
	default:
		return Order{}, false
	}
}

const (
	sizeI32 = 4
	sizeF32 = 4
	sizeF64 = 8
)

// I32 reads a single i32 at off.
func (o Order) I32(b []byte, off int) int32 {
	return int32(o.bo.Uint32(b[off : off+sizeI32]))
}

// F32 reads a single IEEE-754 f32 at off.
func (o Order) F32(b []byte, off int) float32 {
	return math.Float32frombits(o.bo.Uint32(b[off : off+sizeF32]))
}

// F64 reads a single IEEE-754 f64 at off.
func (o Order) F64(b []byte, off int) float64 {
	return math.Float64frombits(o.bo.Uint64(b[off : off+sizeF64]))
}

// F64Vector reads n contiguous f64 values starting at off, returning the
// values and the offset immediately past the last one.
func (o Order) F64Vector(b []byte, off, n int) ([]float64, int) {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = o.F64(b, off)
		off += sizeF64
	}
	return out, off
}

// F32Vector reads n contiguous f32 values starting at off, returning the
// values and the offset immediately past the last one.
func (o Order) F32Vector(b []byte, off, n int) ([]float32, int) {
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = o.F32(b, off)
		off += sizeF32
	}
	return out, off
}

// PutI32 writes v at off and returns the offset past it.
func (o Order) PutI32(b []byte, off int, v int32) int {
	o.bo.PutUint32(b[off:off+sizeI32], uint32(v))
	return off + sizeI32
}

// PutF32 writes v at off and returns the offset past it.
func (o Order) PutF32(b []byte, off int, v float32) int {
	o.bo.PutUint32(b[off:off+sizeF32], math.Float32bits(v))
	return off + sizeF32
}

// PutF64 writes v at off and returns the offset past it.
func (o Order) PutF64(b []byte, off int, v float64) int {
	o.bo.PutUint64(b[off:off+sizeF64], math.Float64bits(v))
	return off + sizeF64
}

// PutF64Vector writes each value of vs contiguously starting at off and
// returns the offset past the last one.
func (o Order) PutF64Vector(b []byte, off int, vs []float64) int {
	for _, v := range vs {
		off = o.PutF64(b, off, v)
	}
	return off
}

// PutF32Vector writes each value of vs contiguously starting at off and
// returns the offset past the last one.
func (o Order) PutF32Vector(b []byte, off int, vs []float32) int {
	for _, v := range vs {
		off = o.PutF32(b, off, v)
	}
	return off
}

// SizeI32, SizeF32, and SizeF64 are the fixed encoded widths of each
// primitive type, exported for callers computing buffer sizes.
const (
	SizeI32 = sizeI32
	SizeF32 = sizeF32
	SizeF64 = sizeF64
)
