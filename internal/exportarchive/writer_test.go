package exportarchive

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFixtureTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "point.blob"), []byte{0x00, 0x01, 0x02}, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "poly.blob"), []byte{0x03, 0x04}, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return dir
}

func TestCreateTarGzRoundTrip(t *testing.T) {
	srcDir := writeFixtureTree(t)
	dstPath := filepath.Join(t.TempDir(), "out.tar.gz")

	if err := CreateTarGz(srcDir, dstPath, "fixtures", true); err != nil {
		t.Fatalf("CreateTarGz: %v", err)
	}

	content, err := ReadFile(dstPath, "point.blob")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "\x00\x01\x02" {
		t.Errorf("ReadFile() = %x, want 000102", content)
	}
}

func TestCreateTarXzRoundTrip(t *testing.T) {
	srcDir := writeFixtureTree(t)
	dstPath := filepath.Join(t.TempDir(), "out.tar.xz")

	if err := CreateExportArchive(srcDir, dstPath); err != nil {
		t.Fatalf("CreateExportArchive: %v", err)
	}

	found, name, err := FindFile(dstPath, func(name string) bool {
		return filepath.Base(name) == "poly.blob"
	})
	if err != nil {
		t.Fatalf("FindFile: %v", err)
	}
	if string(found) != "\x03\x04" {
		t.Errorf("FindFile() content = %x, want 0304", found)
	}
	if filepath.Base(name) != "poly.blob" {
		t.Errorf("FindFile() name = %q", name)
	}
}

func TestCreateTarXzParentDirCreated(t *testing.T) {
	srcDir := writeFixtureTree(t)
	dstPath := filepath.Join(t.TempDir(), "deep", "nested", "out.tar.xz")

	if err := CreateTarXz(srcDir, dstPath, "fixtures", true); err != nil {
		t.Fatalf("CreateTarXz: %v", err)
	}
	if _, err := os.Stat(dstPath); err != nil {
		t.Fatalf("expected archive at %s: %v", dstPath, err)
	}
}
