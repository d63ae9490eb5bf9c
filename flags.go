package spatialite

import "github.com/twpayne/go-geom"

// BaseKind is the undecorated geometry kind component of a type tag.
type BaseKind int32

const (
	Point              BaseKind = tagPoint
	LineString         BaseKind = tagLineString
	Polygon            BaseKind = tagPolygon
	MultiPoint         BaseKind = tagMultiPoint
	MultiLineString    BaseKind = tagMultiLineString
	MultiPolygon       BaseKind = tagMultiPolygon
	GeometryCollection BaseKind = tagGeometryCollection
)

func (k BaseKind) String() string {
	switch k {
	case Point:
		return "Point"
	case LineString:
		return "LineString"
	case Polygon:
		return "Polygon"
	case MultiPoint:
		return "MultiPoint"
	case MultiLineString:
		return "MultiLineString"
	case MultiPolygon:
		return "MultiPolygon"
	case GeometryCollection:
		return "GeometryCollection"
	default:
		return "Unknown"
	}
}

func (k BaseKind) valid() bool {
	return k >= Point && k <= GeometryCollection
}

// Descriptor is the derived triple (plus dimension) that every type tag
// decodes to.
type Descriptor struct {
	BaseKind   BaseKind
	HasZ       bool
	HasM       bool
	Compressed bool
	Dimension  geom.Layout
}

// Classify decodes a geometry type tag into its Descriptor. It is the
// inverse of Encode.
func Classify(tag int32) (Descriptor, error) {
	raw := tag
	compressed := false
	if raw >= decorationCompressed {
		compressed = true
		raw -= decorationCompressed
	}

	var hasZ, hasM bool
	var dim geom.Layout
	switch {
	case raw > decorationZM:
		hasZ, hasM = true, true
		dim = geom.XYZM
		raw -= decorationZM
	case raw > decorationM:
		hasM = true
		dim = geom.XYM
		raw -= decorationM
	case raw > decorationZ:
		hasZ = true
		dim = geom.XYZ
		raw -= decorationZ
	default:
		dim = geom.XY
	}

	base := BaseKind(raw)
	if !base.valid() {
		return Descriptor{}, &MalformedTypeError{Type: tag}
	}

	return Descriptor{
		BaseKind:   base,
		HasZ:       hasZ,
		HasM:       hasM,
		Compressed: compressed,
		Dimension:  dim,
	}, nil
}

// Encode is the inverse of Classify: it builds a type tag from a
// Descriptor's components. Behavior is undefined (the caller's
// responsibility) if hasZ and hasM are both requested inconsistently with
// dimension elsewhere in the codec — Encode itself only ever looks at
// hasZ/hasM.
func Encode(base BaseKind, hasZ, hasM, compressed bool) int32 {
	tag := int32(base)
	switch {
	case hasZ && hasM:
		tag += decorationZM
	case hasM:
		tag += decorationM
	case hasZ:
		tag += decorationZ
	}
	if compressed {
		tag += decorationCompressed
	}
	return tag
}

// BaseOf strips every decoration from tag and returns the undecorated base
// kind, without validating it.
func BaseOf(tag int32) BaseKind {
	raw := tag
	if raw >= decorationCompressed {
		raw -= decorationCompressed
	}
	switch {
	case raw > decorationZM:
		raw -= decorationZM
	case raw > decorationM:
		raw -= decorationM
	case raw > decorationZ:
		raw -= decorationZ
	}
	return BaseKind(raw)
}

// slotOrder returns, in on-the-wire order, the ordinates a coordinate of
// this Descriptor's declared dimensionality carries: X, Y, then Z if
// present, then M if present. Its length always equals Dimension.Stride().
func (d Descriptor) slotOrder() []Ordinate {
	slots := []Ordinate{OrdinateX, OrdinateY}
	if d.HasZ {
		slots = append(slots, OrdinateZ)
	}
	if d.HasM {
		slots = append(slots, OrdinateM)
	}
	return slots
}

// dimensionOf returns the coordinate stride (2, 3, or 4) for a layout.
func dimensionOf(dim geom.Layout) int {
	return dim.Stride()
}

// compressionAllowed reports whether base may carry the compressed
// decoration. Only LineString and Polygon support the delta-coded layout.
func compressionAllowed(base BaseKind) bool {
	return base == LineString || base == Polygon
}
