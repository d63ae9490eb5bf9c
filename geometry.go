package spatialite

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
)

// Ordinate names a single scalar component of a coordinate.
type Ordinate int

const (
	OrdinateX Ordinate = iota
	OrdinateY
	OrdinateZ
	OrdinateM
)

// NullOrdinate is returned by CoordinateSequence.Get for an ordinate the
// sequence's layout does not carry (e.g. asking for M on an XYZ sequence).
var NullOrdinate = math.NaN()

// CoordinateSequence is the minimal surface the Reader fills in and the
// Writer scans: a fixed-length run of coordinates, addressable per ordinate.
type CoordinateSequence interface {
	Len() int
	Layout() geom.Layout
	Get(i int, ord Ordinate) float64
	Set(i int, ord Ordinate, v float64)
	// FlatCoords returns the sequence's backing array in go-geom's own flat
	// layout (stride = Layout().Stride()), so it can be handed to
	// geom.NewPointFlat/NewLineStringFlat/etc. without copying.
	FlatCoords() []float64
}

// FlatSequence is the default CoordinateSequence, backed directly by a
// go-geom flat coordinate array.
type FlatSequence struct {
	layout geom.Layout
	flat   []float64
}

// NewFlatSequence allocates a FlatSequence of n vertices under layout.
func NewFlatSequence(layout geom.Layout, n int) *FlatSequence {
	return &FlatSequence{layout: layout, flat: make([]float64, n*layout.Stride())}
}

// flatSequenceFrom wraps an existing flat array without copying it — used
// on the write path, where the array already belongs to a go-geom geometry.
func flatSequenceFrom(layout geom.Layout, flat []float64) *FlatSequence {
	return &FlatSequence{layout: layout, flat: flat}
}

func (s *FlatSequence) Len() int {
	stride := s.layout.Stride()
	if stride == 0 {
		return 0
	}
	return len(s.flat) / stride
}

func (s *FlatSequence) Layout() geom.Layout { return s.layout }

func (s *FlatSequence) FlatCoords() []float64 { return s.flat }

func (s *FlatSequence) index(ord Ordinate) int {
	switch ord {
	case OrdinateX:
		return 0
	case OrdinateY:
		return 1
	case OrdinateZ:
		return s.layout.ZIndex()
	case OrdinateM:
		return s.layout.MIndex()
	default:
		return -1
	}
}

func (s *FlatSequence) Get(i int, ord Ordinate) float64 {
	idx := s.index(ord)
	if idx < 0 {
		return NullOrdinate
	}
	return s.flat[i*s.layout.Stride()+idx]
}

func (s *FlatSequence) Set(i int, ord Ordinate, v float64) {
	idx := s.index(ord)
	if idx < 0 {
		return
	}
	s.flat[i*s.layout.Stride()+idx] = v
}

// CloseRing overwrites the sequence's last vertex with its first vertex's
// ordinates, used by the Reader's RepairRings option. It does not append a
// vertex.
func (s *FlatSequence) CloseRing() {
	n := s.Len()
	if n < 2 {
		return
	}
	stride := s.layout.Stride()
	copy(s.flat[(n-1)*stride:n*stride], s.flat[0:stride])
}

// IsRingClosed reports whether the sequence's first and last vertices carry
// identical ordinates.
func (s *FlatSequence) IsRingClosed() bool {
	n := s.Len()
	if n < 2 {
		return n == 1
	}
	stride := s.layout.Stride()
	first := s.flat[0:stride]
	last := s.flat[(n-1)*stride : n*stride]
	for i := range first {
		if first[i] != last[i] {
			return false
		}
	}
	return true
}

// SetOrdinates changes a sequence's ordinate set in place, migrating X/Y
// (and any retained Z/M) into a freshly-allocated backing array under
// newLayout. It returns the (hasZ, hasM) pair a caller should encode into
// the geometry's type tag.
//
// When legacyOrder is false (the default this codec recommends), that pair
// reflects newLayout. When true, it reflects the sequence's layout *before*
// this call — reproducing SpatiaLite's documented SetCoordinateType quirk,
// where the type tag is computed from the stale dimension flags before the
// new ones are applied. s.Layout() always reflects newLayout either way;
// legacyOrder only affects what this method reports back to the caller.
func (s *FlatSequence) SetOrdinates(newLayout geom.Layout, legacyOrder bool) (hasZ, hasM bool) {
	if legacyOrder {
		hasZ = s.layout.ZIndex() >= 0
		hasM = s.layout.MIndex() >= 0
	} else {
		hasZ = newLayout.ZIndex() >= 0
		hasM = newLayout.MIndex() >= 0
	}

	n := s.Len()
	migrated := NewFlatSequence(newLayout, n)
	for i := 0; i < n; i++ {
		for _, ord := range []Ordinate{OrdinateX, OrdinateY, OrdinateZ, OrdinateM} {
			migrated.Set(i, ord, s.Get(i, ord))
		}
	}
	s.layout = newLayout
	s.flat = migrated.flat
	return hasZ, hasM
}

// CoordinateSequenceFactory constructs CoordinateSequence instances for the
// Reader, configurable so callers can supply their own representation.
type CoordinateSequenceFactory interface {
	New(layout geom.Layout, n int) CoordinateSequence
}

// FlatSequenceFactory is the default CoordinateSequenceFactory.
type FlatSequenceFactory struct{}

func (FlatSequenceFactory) New(layout geom.Layout, n int) CoordinateSequence {
	return NewFlatSequence(layout, n)
}

// PrecisionModel quantizes a single ordinate value. The Reader and Writer
// apply it to every ordinate they handle.
type PrecisionModel interface {
	MakePrecise(v float64) float64
}

// FullPrecisionModel performs no quantization.
type FullPrecisionModel struct{}

func (FullPrecisionModel) MakePrecise(v float64) float64 { return v }

// FixedPrecisionModel rounds to a fixed number of decimal places.
type FixedPrecisionModel struct {
	Decimals int
}

func (p FixedPrecisionModel) MakePrecise(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scale := math.Pow10(p.Decimals)
	return math.Round(v*scale) / scale
}

// ToGeom assembles a geom.T from decoded pieces. Point and LineString
// receive exactly one sequence; Polygon receives the shell followed by any
// holes; Multi* and GeometryCollection receive their already-built children
// instead of sequences.
func ToGeom(kind BaseKind, layout geom.Layout, seqs []CoordinateSequence, children []geom.T) (geom.T, error) {
	switch kind {
	case Point:
		return geom.NewPointFlat(layout, seqs[0].FlatCoords()), nil
	case LineString:
		return geom.NewLineStringFlat(layout, seqs[0].FlatCoords()), nil
	case Polygon:
		flat, ends := flattenRings(seqs)
		return geom.NewPolygonFlat(layout, flat, ends), nil
	case MultiPoint:
		mp := geom.NewMultiPoint(layout)
		for _, c := range children {
			p, ok := c.(*geom.Point)
			if !ok {
				return nil, fmt.Errorf("spatialite: MultiPoint child has type %T, want *geom.Point", c)
			}
			if err := mp.Push(p); err != nil {
				return nil, err
			}
		}
		return mp, nil
	case MultiLineString:
		mls := geom.NewMultiLineString(layout)
		for _, c := range children {
			ls, ok := c.(*geom.LineString)
			if !ok {
				return nil, fmt.Errorf("spatialite: MultiLineString child has type %T, want *geom.LineString", c)
			}
			if err := mls.Push(ls); err != nil {
				return nil, err
			}
		}
		return mls, nil
	case MultiPolygon:
		mp := geom.NewMultiPolygon(layout)
		for _, c := range children {
			p, ok := c.(*geom.Polygon)
			if !ok {
				return nil, fmt.Errorf("spatialite: MultiPolygon child has type %T, want *geom.Polygon", c)
			}
			if err := mp.Push(p); err != nil {
				return nil, err
			}
		}
		return mp, nil
	case GeometryCollection:
		gc := geom.NewGeometryCollection()
		for _, c := range children {
			if err := gc.Push(c); err != nil {
				return nil, err
			}
		}
		return gc, nil
	default:
		return nil, fmt.Errorf("spatialite: ToGeom: unhandled base kind %v", kind)
	}
}

// flattenRings concatenates each ring's flat coordinates and records the
// cumulative end offset of each, matching geom.NewPolygonFlat's ends
// convention.
func flattenRings(seqs []CoordinateSequence) (flat []float64, ends []int) {
	for _, s := range seqs {
		flat = append(flat, s.FlatCoords()...)
		ends = append(ends, len(flat))
	}
	return flat, ends
}

// FromGeom is ToGeom's inverse, used by the Writer: it decomposes a geom.T
// into the base kind, layout, and either coordinate sequences (Point,
// LineString, Polygon) or children (Multi*, GeometryCollection) the Writer
// walks to emit bytes.
func FromGeom(g geom.T) (kind BaseKind, layout geom.Layout, seqs []CoordinateSequence, children []geom.T, err error) {
	switch v := g.(type) {
	case *geom.Point:
		return Point, v.Layout(), []CoordinateSequence{flatSequenceFrom(v.Layout(), v.FlatCoords())}, nil, nil
	case *geom.LineString:
		return LineString, v.Layout(), []CoordinateSequence{flatSequenceFrom(v.Layout(), v.FlatCoords())}, nil, nil
	case *geom.Polygon:
		layout := v.Layout()
		return Polygon, layout, ringsFromFlat(layout, v.FlatCoords(), v.Ends()), nil, nil
	case *geom.MultiPoint:
		kids := make([]geom.T, v.NumPoints())
		for i := range kids {
			kids[i] = v.Point(i)
		}
		return MultiPoint, v.Layout(), nil, kids, nil
	case *geom.MultiLineString:
		kids := make([]geom.T, v.NumLineStrings())
		for i := range kids {
			kids[i] = v.LineString(i)
		}
		return MultiLineString, v.Layout(), nil, kids, nil
	case *geom.MultiPolygon:
		kids := make([]geom.T, v.NumPolygons())
		for i := range kids {
			kids[i] = v.Polygon(i)
		}
		return MultiPolygon, v.Layout(), nil, kids, nil
	case *geom.GeometryCollection:
		return GeometryCollection, geom.NoLayout, nil, v.Geoms(), nil
	default:
		return 0, geom.NoLayout, nil, nil, fmt.Errorf("spatialite: FromGeom: unsupported geometry type %T", g)
	}
}

// ringsFromFlat splits a polygon's flat coordinate array at the offsets in
// ends into one CoordinateSequence per ring, without copying.
func ringsFromFlat(layout geom.Layout, flat []float64, ends []int) []CoordinateSequence {
	seqs := make([]CoordinateSequence, len(ends))
	start := 0
	for i, end := range ends {
		seqs[i] = flatSequenceFrom(layout, flat[start:end])
		start = end
	}
	return seqs
}
