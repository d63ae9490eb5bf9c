package spatialite

import (
	"errors"

	"github.com/twpayne/go-geom"

	"github.com/quadrant-gis/spatialite-blob/internal/byteops"
)

// Reader decodes SpatiaLite geometry BLOBs into go-geom geometries. A
// Reader holds only small, immutable-after-construction configuration and
// is safe for concurrent use as long as each call supplies its own blob.
type Reader struct {
	factory     CoordinateSequenceFactory
	precision   PrecisionModel
	ordinates   geom.Layout
	repairRings bool
	handleSRID  bool
}

// ReaderOption configures a Reader at construction.
type ReaderOption func(*Reader)

// WithCoordinateSequenceFactory overrides the CoordinateSequenceFactory used
// to materialize decoded coordinates. Default: FlatSequenceFactory.
func WithCoordinateSequenceFactory(f CoordinateSequenceFactory) ReaderOption {
	return func(r *Reader) { r.factory = f }
}

// WithPrecisionModel overrides the PrecisionModel applied to every decoded
// ordinate. Default: FullPrecisionModel.
func WithPrecisionModel(p PrecisionModel) ReaderOption {
	return func(r *Reader) { r.precision = p }
}

// WithAcceptedOrdinates restricts which ordinates the Reader materializes.
// It must be a superset of XY; Z and/or M bytes are still consumed from the
// blob (to keep the running offset correct) even when not accepted.
// Default: geom.XYZM (accept everything the blob offers).
func WithAcceptedOrdinates(l geom.Layout) ReaderOption {
	return func(r *Reader) { r.ordinates = l }
}

// WithRepairRings closes an unclosed ring (overwriting its last vertex to
// match its first) rather than handing go-geom an invalid LinearRing.
func WithRepairRings(repair bool) ReaderOption {
	return func(r *Reader) { r.repairRings = repair }
}

// WithHandleSRID controls whether the decoded geometry's SRID is set from
// the blob's header. When false, SRID is left at zero. Default: true.
func WithHandleSRID(handle bool) ReaderOption {
	return func(r *Reader) { r.handleSRID = handle }
}

// NewReader builds a Reader with the given options applied over the
// defaults: FlatSequenceFactory, FullPrecisionModel, XYZM accepted
// ordinates, repair-rings off, handle-SRID on.
func NewReader(opts ...ReaderOption) *Reader {
	r := &Reader{
		factory:    FlatSequenceFactory{},
		precision:  FullPrecisionModel{},
		ordinates:  geom.XYZM,
		handleSRID: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read decodes blob. A nil geometry with a nil error means blob failed a
// soft framing check (too short, bad marker) and should be treated as "not
// a geometry" rather than corrupt. A non-nil error means the blob is
// structurally broken.
func (r *Reader) Read(blob []byte) (geom.T, error) {
	if softFailReason(blob) != nil {
		return nil, nil
	}

	order, ok := byteops.FromMarker(blob[offEndian])
	if !ok {
		return nil, &MalformedEndianError{Marker: blob[offEndian]}
	}

	srid := order.I32(blob, offSRID)
	// Envelope is read to advance understanding of the frame but is not
	// authoritative for child geometries; recomputing it is the Writer's
	// job, not the Reader's.
	_, _ = order.F64Vector(blob, offEnvelope, 4)

	rootType := order.I32(blob, offRootType)
	desc, err := Classify(rootType)
	if err != nil {
		var mte *MalformedTypeError
		if errors.As(err, &mte) {
			mte.Offset = offRootType
		}
		return nil, err
	}

	g, _, err := r.readGeometry(blob, offPayload, order, desc)
	if err != nil {
		return nil, err
	}

	if r.handleSRID {
		g = setSRID(g, int(srid))
	}
	return g, nil
}

func setSRID(g geom.T, srid int) geom.T {
	switch v := g.(type) {
	case *geom.Point:
		return v.SetSRID(srid)
	case *geom.LineString:
		return v.SetSRID(srid)
	case *geom.Polygon:
		return v.SetSRID(srid)
	case *geom.MultiPoint:
		return v.SetSRID(srid)
	case *geom.MultiLineString:
		return v.SetSRID(srid)
	case *geom.MultiPolygon:
		return v.SetSRID(srid)
	case *geom.GeometryCollection:
		return v.SetSRID(srid)
	default:
		return g
	}
}

func ensure(blob []byte, off, n int) error {
	if off < 0 || n < 0 || off+n > len(blob) {
		return &CorruptPayloadError{Offset: off, Kind: "short buffer"}
	}
	return nil
}

func expectedChildKind(parent BaseKind) BaseKind {
	switch parent {
	case MultiPoint:
		return Point
	case MultiLineString:
		return LineString
	case MultiPolygon:
		return Polygon
	default:
		return parent
	}
}

// readGeometry recursively decodes one geometry (root or child) starting at
// off, returning the decoded geometry and the offset immediately past it.
func (r *Reader) readGeometry(blob []byte, off int, order byteops.Order, desc Descriptor) (geom.T, int, error) {
	switch desc.BaseKind {
	case Point:
		seq, next, err := r.readSequence(blob, off, order, desc, 1)
		if err != nil {
			return nil, 0, err
		}
		g, err := ToGeom(Point, r.effectiveLayout(desc), []CoordinateSequence{seq}, nil)
		return g, next, err

	case LineString:
		if err := ensure(blob, off, byteops.SizeI32); err != nil {
			return nil, 0, err
		}
		count := int(order.I32(blob, off))
		off += byteops.SizeI32
		seq, next, err := r.readSequence(blob, off, order, desc, count)
		if err != nil {
			return nil, 0, err
		}
		g, err := ToGeom(LineString, r.effectiveLayout(desc), []CoordinateSequence{seq}, nil)
		return g, next, err

	case Polygon:
		if err := ensure(blob, off, byteops.SizeI32); err != nil {
			return nil, 0, err
		}
		ringCount := int(order.I32(blob, off))
		off += byteops.SizeI32
		seqs := make([]CoordinateSequence, 0, ringCount)
		for i := 0; i < ringCount; i++ {
			if err := ensure(blob, off, byteops.SizeI32); err != nil {
				return nil, 0, err
			}
			vcount := int(order.I32(blob, off))
			off += byteops.SizeI32
			seq, next, err := r.readSequence(blob, off, order, desc, vcount)
			if err != nil {
				return nil, 0, err
			}
			off = next
			if r.repairRings {
				if fs, ok := seq.(*FlatSequence); ok {
					fs.CloseRing()
				}
			}
			seqs = append(seqs, seq)
		}
		g, err := ToGeom(Polygon, r.effectiveLayout(desc), seqs, nil)
		return g, off, err

	case MultiPoint, MultiLineString, MultiPolygon:
		return r.readCollection(blob, off, order, desc, expectedChildKind(desc.BaseKind))

	case GeometryCollection:
		return r.readCollection(blob, off, order, desc, 0)

	default:
		return nil, 0, &CorruptPayloadError{Offset: off, Kind: "unrecognized base kind"}
	}
}

// readCollection decodes the shared shape of MultiPoint, MultiLineString,
// MultiPolygon, and GeometryCollection: an i32 count, then for each child an
// entity marker, a child type tag, and the child's own recursively-decoded
// payload. expected is the required base_of(child) for Multi*; it is
// ignored (pass 0) for GeometryCollection, whose children carry their own
// independent type tags.
func (r *Reader) readCollection(blob []byte, off int, order byteops.Order, desc Descriptor, expected BaseKind) (geom.T, int, error) {
	if err := ensure(blob, off, byteops.SizeI32); err != nil {
		return nil, 0, err
	}
	count := int(order.I32(blob, off))
	off += byteops.SizeI32

	children := make([]geom.T, 0, count)
	for i := 0; i < count; i++ {
		if err := ensure(blob, off, 1); err != nil {
			return nil, 0, err
		}
		if blob[off] != markerEntity {
			return nil, 0, &CorruptPayloadError{Offset: off, Kind: "missing entity marker"}
		}
		off++

		if err := ensure(blob, off, byteops.SizeI32); err != nil {
			return nil, 0, err
		}
		childType := order.I32(blob, off)
		typeOff := off
		off += byteops.SizeI32

		childDesc, err := Classify(childType)
		if err != nil {
			return nil, 0, &CorruptPayloadError{Offset: typeOff, Kind: "malformed child type", Err: err}
		}
		if desc.BaseKind != GeometryCollection && childDesc.BaseKind != expected {
			return nil, 0, &CorruptPayloadError{Offset: typeOff, Kind: "child kind mismatch"}
		}

		child, next, err := r.readGeometry(blob, off, order, childDesc)
		if err != nil {
			return nil, 0, err
		}
		off = next
		children = append(children, child)
	}

	g, err := ToGeom(desc.BaseKind, r.effectiveLayout(desc), nil, children)
	return g, off, err
}

// effectiveLayout intersects a tag's declared dimension with the Reader's
// accepted ordinates: the materialized sequence carries Z/M only when both
// the blob declares it and the caller asked for it.
func (r *Reader) effectiveLayout(desc Descriptor) geom.Layout {
	hasZ := desc.HasZ && r.ordinates.ZIndex() >= 0
	hasM := desc.HasM && r.ordinates.MIndex() >= 0
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

// readSequence decodes n vertices of desc's declared dimensionality,
// starting at off, selecting the uncompressed or compressed layout per
// desc.Compressed. Ordinates the Reader wasn't configured to accept are
// still consumed from the blob (to keep off correct) but discarded on
// assignment, since CoordinateSequence.Set is a no-op for an ordinate
// outside the sequence's own (possibly narrower) layout.
func (r *Reader) readSequence(blob []byte, off int, order byteops.Order, desc Descriptor, n int) (CoordinateSequence, int, error) {
	seq := r.factory.New(r.effectiveLayout(desc), n)
	if n == 0 {
		return seq, off, nil
	}

	slots := desc.slotOrder()
	stride := len(slots)

	if !desc.Compressed {
		if err := ensure(blob, off, n*stride*byteops.SizeF64); err != nil {
			return nil, 0, err
		}
		for i := 0; i < n; i++ {
			vals, next := order.F64Vector(blob, off, stride)
			off = next
			r.assignVertex(seq, i, slots, vals)
		}
		return seq, off, nil
	}

	// Compressed: first and last vertices absolute f64, interior vertices
	// f32 deltas accumulated from vertex 0.
	if n == 1 {
		if err := ensure(blob, off, stride*byteops.SizeF64); err != nil {
			return nil, 0, err
		}
		vals, next := order.F64Vector(blob, off, stride)
		off = next
		r.assignVertex(seq, 0, slots, vals)
		return seq, off, nil
	}

	if err := ensure(blob, off, stride*byteops.SizeF64); err != nil {
		return nil, 0, err
	}
	first, next := order.F64Vector(blob, off, stride)
	off = next
	r.assignVertex(seq, 0, slots, first)

	running := make([]float64, stride)
	copy(running, first)
	for i := 1; i <= n-2; i++ {
		if err := ensure(blob, off, stride*byteops.SizeF32); err != nil {
			return nil, 0, err
		}
		deltas, next := order.F32Vector(blob, off, stride)
		off = next
		for j, d := range deltas {
			running[j] += float64(d)
		}
		r.assignVertex(seq, i, slots, running)
	}

	if err := ensure(blob, off, stride*byteops.SizeF64); err != nil {
		return nil, 0, err
	}
	last, next := order.F64Vector(blob, off, stride)
	off = next
	r.assignVertex(seq, n-1, slots, last)

	return seq, off, nil
}

// assignVertex writes vals (in desc's declared slot order) into vertex i of
// seq, quantizing each ordinate with the Reader's precision model first.
func (r *Reader) assignVertex(seq CoordinateSequence, i int, slots []Ordinate, vals []float64) {
	for k, ord := range slots {
		seq.Set(i, ord, r.precision.MakePrecise(vals[k]))
	}
}
