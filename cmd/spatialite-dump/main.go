// Command spatialite-dump inspects, filters, and round-trips SpatiaLite
// geometry BLOB files, using the spatialite package's Reader/Writer rather
// than libspatialite itself.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/twpayne/go-geom"

	"github.com/quadrant-gis/spatialite-blob"
	"github.com/quadrant-gis/spatialite-blob/internal/blobcache"
	"github.com/quadrant-gis/spatialite-blob/internal/byteops"
	"github.com/quadrant-gis/spatialite-blob/internal/exportarchive"
	"github.com/quadrant-gis/spatialite-blob/internal/logging"
	"github.com/quadrant-gis/spatialite-blob/internal/progress"
	"github.com/quadrant-gis/spatialite-blob/internal/validation"
)

const version = "0.1.0"

// CLI defines the command-line interface for spatialite-dump.
var CLI struct {
	Inspect   InspectCmd   `cmd:"" help:"Print a single BLOB file's frame header and decoded summary."`
	Dump      DumpCmd      `cmd:"" help:"Decode every .blob file in a directory, optionally filtered."`
	Roundtrip RoundtripCmd `cmd:"" help:"Re-encode a BLOB and verify it decodes back identically."`
	Export    ExportCmd    `cmd:"" help:"Decode a directory of BLOBs and package the dump as a tar.xz archive."`
	Serve     ServeCmd     `cmd:"" help:"Decode a directory of BLOBs while streaming progress over a WebSocket."`
	Version   VersionCmd   `cmd:"" help:"Print version information."`
}

// InspectCmd prints the header fields (base kind, SRID, Z/M/compression
// flags, byte size) and a decoded summary of a single BLOB file. The endian
// marker and the MBR are not printed.
type InspectCmd struct {
	File string `arg:"" help:"Path to a BLOB file." type:"existingfile"`
}

func (c *InspectCmd) Run(ctx *kong.Context) error {
	f, err := readBlobFile(c.File)
	if err != nil {
		return err
	}
	desc, srid, ok, err := inspectFrame(f.Blob)
	if err != nil {
		return fmt.Errorf("%s: malformed: %w", c.File, err)
	}
	if !ok {
		fmt.Printf("%s: not a geometry BLOB (failed soft framing check)\n", c.File)
		return nil
	}
	fmt.Printf("kind=%s srid=%d hasz=%v hasm=%v compressed=%v bytes=%s\n",
		desc.BaseKind, srid, desc.HasZ, desc.HasM, desc.Compressed, humanize.Bytes(uint64(len(f.Blob))))

	g, err := spatialite.NewReader().Read(f.Blob)
	if err != nil {
		return fmt.Errorf("%s: decode failed: %w", c.File, err)
	}
	if g != nil {
		fmt.Println(summarizeGeom(g))
	}
	return nil
}

// DumpCmd decodes and prints every matching geometry in dir.
type DumpCmd struct {
	Dir    string `arg:"" help:"Directory of .blob files." type:"existingdir"`
	Filter string `help:"Filter expression, e.g. 'kind=Polygon AND compressed=true'."`
}

func (c *DumpCmd) Run(ctx *kong.Context) error {
	filter, err := parseFilter(c.Filter)
	if err != nil {
		return err
	}
	files, err := listBlobFiles(c.Dir)
	if err != nil {
		return err
	}

	cache := blobcache.New(blobcache.DefaultTTL, blobcache.DefaultMaxBytes)
	reader := spatialite.NewReader()
	matched := 0
	for _, f := range files {
		desc, srid, ok, err := inspectFrame(f.Blob)
		if err != nil || !ok {
			continue
		}
		if !filter.Matches(desc, srid) {
			continue
		}
		g, err := cache.GetOrDecode(f.Blob, reader.Read)
		if err != nil || g == nil {
			fmt.Printf("%s: decode failed: %v\n", f.Path, err)
			continue
		}
		matched++
		fmt.Printf("%s %s\n", f.Path, summarizeGeom(g))
	}
	fmt.Printf("%d geometr%s matched\n", matched, plural(matched))
	return nil
}

// RoundtripCmd decodes a BLOB file, re-encodes it with the given
// endian/compression settings, decodes the result again, and reports any
// mismatch.
type RoundtripCmd struct {
	File     string `arg:"" help:"Path to a BLOB file." type:"existingfile"`
	Endian   string `help:"Byte order to re-encode with: little or big." default:"little" enum:"little,big"`
	Compress bool   `help:"Request delta-coded coordinates (LineString and Polygon only; other kinds fail to re-encode)."`
}

func (c *RoundtripCmd) Run(ctx *kong.Context) error {
	endian := spatialite.LittleEndian
	if c.Endian == "big" {
		endian = spatialite.BigEndian
	}

	f, err := readBlobFile(c.File)
	if err != nil {
		return err
	}

	reader := spatialite.NewReader()
	g, err := reader.Read(f.Blob)
	if err != nil || g == nil {
		return fmt.Errorf("%s: decode failed: %w", c.File, err)
	}
	_, srid, ok, err := inspectFrame(f.Blob)
	if err != nil || !ok {
		return fmt.Errorf("%s: could not recover SRID from header", c.File)
	}

	reencoded, err := spatialite.NewWriter().Write(g, srid, endian, c.Compress)
	if err != nil {
		return fmt.Errorf("%s: write failed: %w", c.File, err)
	}
	g2, err := reader.Read(reencoded)
	if err != nil || g2 == nil {
		return fmt.Errorf("%s: re-decode failed: %w", c.File, err)
	}
	if summarizeGeom(g) != summarizeGeom(g2) {
		return fmt.Errorf("%s: round trip diverged:\n  before: %s\n  after:  %s", c.File, summarizeGeom(g), summarizeGeom(g2))
	}
	fmt.Printf("%s: round trip OK (%s)\n", c.File, humanize.Bytes(uint64(len(reencoded))))
	return nil
}

// ExportCmd decodes every BLOB in dir, writes each as a small text dump
// into a scratch directory, and packages the directory as a tar.xz archive
// via internal/exportarchive.
type ExportCmd struct {
	Dir    string `arg:"" help:"Directory of .blob files." type:"existingdir"`
	Out    string `help:"Output archive path (.tar.xz)." required:""`
	Filter string `help:"Filter expression, same syntax as 'dump --filter'."`
}

func (c *ExportCmd) Run(ctx *kong.Context) error {
	if err := validation.ValidatePath(c.Out); err != nil {
		return fmt.Errorf("invalid --out path: %w", err)
	}
	filter, err := parseFilter(c.Filter)
	if err != nil {
		return err
	}

	files, err := listBlobFiles(c.Dir)
	if err != nil {
		return err
	}

	scratch, err := os.MkdirTemp("", "spatialite-dump-export-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	reader := spatialite.NewReader()
	runID := uuid.New()
	count := 0
	for _, f := range files {
		desc, srid, ok, err := inspectFrame(f.Blob)
		if err != nil || !ok || !filter.Matches(desc, srid) {
			continue
		}
		g, err := reader.Read(f.Blob)
		if err != nil || g == nil {
			continue
		}
		key := blobcache.Key(f.Blob)
		name := filepath.Join(scratch, fmt.Sprintf("%s.txt", key))
		if err := os.WriteFile(name, []byte(summarizeGeom(g)+"\n"), 0o644); err != nil {
			return fmt.Errorf("write dump file: %w", err)
		}
		count++
	}

	logging.Info("export: writing archive", "run_id", runID, "files", count, "out", c.Out)
	if err := exportarchive.CreateTarXz(scratch, c.Out, "dump", true); err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	fmt.Printf("exported %d geometries to %s\n", count, c.Out)
	return nil
}

// ServeCmd decodes a directory of BLOBs while streaming per-file progress
// to any WebSocket clients connected to --addr, for watching a large batch
// import interactively instead of reading stdout.
type ServeCmd struct {
	Dir  string `arg:"" help:"Directory of .blob files." type:"existingdir"`
	Addr string `help:"Address to listen on." default:"127.0.0.1:8080"`
}

func (c *ServeCmd) Run(ctx *kong.Context) error {
	hub := progress.NewHub()
	go hub.Run()

	mux := http.NewServeMux()
	mux.Handle("/progress", hub)

	server := &http.Server{Addr: c.Addr, Handler: logging.CombinedMiddleware(mux)}
	_, port := splitAddr(c.Addr)
	logging.ServerStartup("spatialite-dump", "http", port, "dir", c.Dir)
	go runServedDump(hub, c.Dir)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// runServedDump decodes every .blob file in dir, reporting each file's
// progress or failure to hub, then broadcasts a "complete" message. Unlike
// DumpCmd it applies no filter and no decode cache. The server keeps running
// afterwards, but the hub does not replay messages, so a client that connects
// after the run has finished receives none of them.
func runServedDump(hub *progress.Hub, dir string) {
	files, err := listBlobFiles(dir)
	if err != nil {
		hub.Failed("dump", err.Error())
		return
	}

	reader := spatialite.NewReader()
	for i, f := range files {
		if _, err := reader.Read(f.Blob); err != nil {
			hub.Failed("dump", fmt.Sprintf("%s: %v", f.Path, err))
			continue
		}
		hub.Decoding(f.Path, i+1, len(files))
	}
	hub.Done("dump", map[string]any{"files": len(files)})
}

// VersionCmd prints build metadata.
type VersionCmd struct{}

func (c *VersionCmd) Run(ctx *kong.Context) error {
	fmt.Printf("spatialite-dump %s (go-geom layout model, no libspatialite dependency)\n", version)
	return nil
}

// inspectFrame classifies a blob's header without decoding its payload,
// returning ok=false for a blob that fails the same soft framing checks
// Reader.Read applies: too short, or a missing START/END/MBR marker byte.
func inspectFrame(blob []byte) (spatialite.Descriptor, int32, bool, error) {
	const (
		minLen      = 45
		startMarker = 0x00
		endMarker   = 0xFE
		offEndian   = 1
		offSRID     = 2
		offMBR      = 38
		mbrMarker   = 0x7C
		offRootType = 39
	)
	if len(blob) < minLen ||
		blob[0] != startMarker ||
		blob[len(blob)-1] != endMarker ||
		blob[offMBR] != mbrMarker {
		return spatialite.Descriptor{}, 0, false, nil
	}
	order, ok := byteops.FromMarker(blob[offEndian])
	if !ok {
		return spatialite.Descriptor{}, 0, false, &spatialite.MalformedEndianError{Marker: blob[offEndian]}
	}
	srid := order.I32(blob, offSRID)
	rootType := order.I32(blob, offRootType)
	desc, err := spatialite.Classify(rootType)
	if err != nil {
		return spatialite.Descriptor{}, srid, true, err
	}
	return desc, srid, true, nil
}

func summarizeGeom(g geom.T) string {
	return fmt.Sprintf("%T srid=%d coords=%v", g, g.SRID(), g.FlatCoords())
}

// splitAddr breaks addr into host and port for logging.ServerStartup,
// which wants the port as an int. An unparseable port logs as 0 rather
// than failing the serve command over a cosmetic log line.
func splitAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, port
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("spatialite-dump"),
		kong.Description("Inspect, filter, and round-trip SpatiaLite geometry BLOBs."),
		kong.UsageOnError(),
	)
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
