//go:build cgo_sqlite

// CGO SQLite driver using mattn/go-sqlite3, selected with -tags cgo_sqlite
// and CGO_ENABLED=1. The default build instead uses modernc.org/sqlite, see
// driver_purego.go.
package spatialite_roundtrip

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	driverName    = "sqlite3"
	driverType    = "cgo"
	driverPackage = "github.com/mattn/go-sqlite3"
)
