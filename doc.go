// Package spatialite implements a codec for the SpatiaLite internal
// geometry BLOB format: the binary encoding SpatiaLite uses to store
// geometry column values in SQLite, distinct from WKB/WKT/GeoJSON.
//
// A Reader decodes a BLOB into a github.com/twpayne/go-geom geometry; a
// Writer does the reverse. Both are small, immutable once constructed, and
// safe for concurrent use as long as each call supplies its own buffer.
package spatialite
