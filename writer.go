package spatialite

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"

	"github.com/quadrant-gis/spatialite-blob/internal/byteops"
)

// Endian selects the byte order a Writer encodes with.
type Endian int

const (
	LittleEndian Endian = iota
	BigEndian
)

func (e Endian) marker() byte {
	if e == BigEndian {
		return endianBig
	}
	return endianLittle
}

func (e Endian) order() byteops.Order {
	if e == BigEndian {
		return byteops.Big
	}
	return byteops.Little
}

// Writer encodes go-geom geometries into SpatiaLite geometry BLOBs. Like
// Reader, it holds only small immutable-after-construction configuration.
type Writer struct {
	precision PrecisionModel
	ordinates geom.Layout
}

// WriterOption configures a Writer at construction.
type WriterOption func(*Writer)

// WithWriterPrecisionModel overrides the PrecisionModel applied to every
// emitted ordinate. Default: FullPrecisionModel.
func WithWriterPrecisionModel(p PrecisionModel) WriterOption {
	return func(w *Writer) { w.precision = p }
}

// WithOrdinates trims which ordinates the Writer emits, regardless of the
// input geometry's own dimensionality: writing a Z-bearing geometry with
// WithOrdinates(geom.XY) drops Z on write. This is the equivalent of
// SpatiaLite's SetCoordinateType at the Writer boundary. Default: geom.XYZM
// (emit everything the geometry carries).
func WithOrdinates(l geom.Layout) WriterOption {
	return func(w *Writer) { w.ordinates = l }
}

// NewWriter builds a Writer with the given options applied over the
// defaults: FullPrecisionModel, XYZM emitted ordinates.
func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{
		precision: FullPrecisionModel{},
		ordinates: geom.XYZM,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write encodes g as a SpatiaLite geometry BLOB tagged with srid, in the
// requested byte order. compress requests the delta-coded coordinate
// layout for the root; it is rejected with UnsupportedCombinationError if
// the root's base kind does not support compression (Point, Multi*,
// GeometryCollection). Below the root, a compression request still
// silently downgrades to false for any child node whose base kind does
// not support it — see writeGeometry.
func (w *Writer) Write(g geom.T, srid int32, endian Endian, compress bool) ([]byte, error) {
	kind, layout, seqs, children, err := FromGeom(g)
	if err != nil {
		return nil, err
	}
	if compress && !compressionAllowed(kind) {
		return nil, &UnsupportedCombinationError{
			Kind:   kind.String(),
			Reason: "compression is only valid for LineString and Polygon roots",
		}
	}

	effLayout := w.effectiveLayout(layout)
	hasZ := effLayout.ZIndex() >= 0
	hasM := effLayout.MIndex() >= 0
	rootType := Encode(kind, hasZ, hasM, compress)

	b := &builder{order: endian.order()}
	b.byte(markerStart)
	b.byte(endian.marker())
	b.i32(srid)

	minX, minY, maxX, maxY := scanBounds(g)
	b.f64Vector([]float64{minX, minY, maxX, maxY})
	b.byte(markerMBR)
	b.i32(rootType)

	if err := w.writeGeometry(b, kind, effLayout, seqs, children, compress); err != nil {
		return nil, err
	}
	b.byte(markerEnd)
	return b.buf, nil
}

// effectiveLayout intersects a geometry's own layout with the Writer's
// configured ordinates mask.
func (w *Writer) effectiveLayout(layout geom.Layout) geom.Layout {
	hasZ := layout.ZIndex() >= 0 && w.ordinates.ZIndex() >= 0
	hasM := layout.MIndex() >= 0 && w.ordinates.MIndex() >= 0
	switch {
	case hasZ && hasM:
		return geom.XYZM
	case hasM:
		return geom.XYM
	case hasZ:
		return geom.XYZ
	default:
		return geom.XY
	}
}

// writeGeometry recursively emits one geometry's payload. requestedCompress
// is the caller's compression preference, already validated against the
// root's own kind by Write; it is re-gated against compressionAllowed at
// every level it reaches, so a LineString/Polygon root's descendants (if
// any) are never compressed just because an ancestor asked for it against
// a base kind that doesn't support it.
func (w *Writer) writeGeometry(b *builder, kind BaseKind, layout geom.Layout, seqs []CoordinateSequence, children []geom.T, requestedCompress bool) error {
	nodeCompress := requestedCompress && compressionAllowed(kind)

	switch kind {
	case Point:
		return w.writeSequence(b, layout, seqs[0], nodeCompress)

	case LineString:
		b.i32(int32(seqs[0].Len()))
		return w.writeSequence(b, layout, seqs[0], nodeCompress)

	case Polygon:
		b.i32(int32(len(seqs)))
		for _, ring := range seqs {
			b.i32(int32(ring.Len()))
			if err := w.writeSequence(b, layout, ring, nodeCompress); err != nil {
				return err
			}
		}
		return nil

	case MultiPoint, MultiLineString, MultiPolygon, GeometryCollection:
		b.i32(int32(len(children)))
		for _, child := range children {
			ckind, clayout, cseqs, cchildren, err := FromGeom(child)
			if err != nil {
				return err
			}
			ceffLayout := w.effectiveLayout(clayout)
			chasZ := ceffLayout.ZIndex() >= 0
			chasM := ceffLayout.MIndex() >= 0
			childCompress := requestedCompress && compressionAllowed(ckind)
			childType := Encode(ckind, chasZ, chasM, childCompress)

			b.byte(markerEntity)
			b.i32(childType)
			if err := w.writeGeometry(b, ckind, ceffLayout, cseqs, cchildren, requestedCompress); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("spatialite: write: unhandled base kind %v", kind)
	}
}

// layoutSlotOrder mirrors Descriptor.slotOrder for a bare geom.Layout,
// which writeSequence has instead of a Descriptor.
func layoutSlotOrder(layout geom.Layout) []Ordinate {
	slots := []Ordinate{OrdinateX, OrdinateY}
	if layout.ZIndex() >= 0 {
		slots = append(slots, OrdinateZ)
	}
	if layout.MIndex() >= 0 {
		slots = append(slots, OrdinateM)
	}
	return slots
}

// writeSequence emits seq's vertices in layout's declared slot order,
// quantized by the Writer's precision model, either as bulk f64 or, when
// compress is true, the delta-coded layout mirroring Reader.readSequence.
func (w *Writer) writeSequence(b *builder, layout geom.Layout, seq CoordinateSequence, compress bool) error {
	n := seq.Len()
	if n == 0 {
		return nil
	}
	slots := layoutSlotOrder(layout)

	vertexVals := func(i int) []float64 {
		vals := make([]float64, len(slots))
		for k, ord := range slots {
			vals[k] = w.precision.MakePrecise(seq.Get(i, ord))
		}
		return vals
	}

	if !compress {
		for i := 0; i < n; i++ {
			b.f64Vector(vertexVals(i))
		}
		return nil
	}

	if n == 1 {
		b.f64Vector(vertexVals(0))
		return nil
	}

	first := vertexVals(0)
	b.f64Vector(first)

	// running tracks the quantized-f32 reconstruction, not the original
	// f64 values, so Reader's accumulation and Writer's stay bit-for-bit
	// in sync despite the interior deltas' precision loss.
	running := append([]float64{}, first...)
	for i := 1; i <= n-2; i++ {
		vals := vertexVals(i)
		deltas := make([]float32, len(slots))
		for k := range slots {
			deltas[k] = float32(vals[k] - running[k])
			running[k] += float64(deltas[k])
		}
		b.f32Vector(deltas)
	}

	last := vertexVals(n - 1)
	b.f64Vector(last)
	return nil
}

// builder is a growable byte buffer paired with a fixed byte order,
// analogous to the Reader's fixed-buffer byteops.Order but for appending
// instead of slicing.
type builder struct {
	buf   []byte
	order byteops.Order
}

func (b *builder) grow(n int) int {
	off := len(b.buf)
	b.buf = append(b.buf, make([]byte, n)...)
	return off
}

func (b *builder) byte(v byte) { b.buf = append(b.buf, v) }

func (b *builder) i32(v int32) {
	b.order.PutI32(b.buf, b.grow(byteops.SizeI32), v)
}

func (b *builder) f64Vector(vs []float64) {
	b.order.PutF64Vector(b.buf, b.grow(len(vs)*byteops.SizeF64), vs)
}

func (b *builder) f32Vector(vs []float32) {
	b.order.PutF32Vector(b.buf, b.grow(len(vs)*byteops.SizeF32), vs)
}

// scanBounds computes a geometry's minimum bounding rectangle by walking
// its coordinate sequences directly, rather than trusting any MBR the
// geometry may have arrived with — the wire format's own envelope is
// documented as redundant with child coordinates, and the Writer must
// recompute it.
func scanBounds(g geom.T) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	scanBoundsInto(g, &minX, &minY, &maxX, &maxY)
	if math.IsInf(minX, 1) {
		return 0, 0, 0, 0
	}
	return minX, minY, maxX, maxY
}

func scanBoundsInto(g geom.T, minX, minY, maxX, maxY *float64) {
	_, _, seqs, children, err := FromGeom(g)
	if err != nil {
		return
	}
	for _, seq := range seqs {
		for i := 0; i < seq.Len(); i++ {
			x, y := seq.Get(i, OrdinateX), seq.Get(i, OrdinateY)
			if x < *minX {
				*minX = x
			}
			if y < *minY {
				*minY = y
			}
			if x > *maxX {
				*maxX = x
			}
			if y > *maxY {
				*maxY = y
			}
		}
	}
	for _, c := range children {
		scanBoundsInto(c, minX, minY, maxX, maxY)
	}
}
