package main

import (
	"os"
	"path/filepath"
	"sort"

	coreerrors "github.com/quadrant-gis/spatialite-blob/core/errors"
)

// blobFile is one decoded-or-decodable candidate: a path and its raw bytes.
type blobFile struct {
	Path string
	Blob []byte
}

// readBlobFile reads a single BLOB file from disk.
func readBlobFile(path string) (blobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return blobFile{}, &coreerrors.IOError{Operation: "read", Path: path, Err: err}
	}
	return blobFile{Path: path, Blob: data}, nil
}

// listBlobFiles returns every "*.blob" file directly inside dir, sorted by
// name so batch output is deterministic across runs.
func listBlobFiles(dir string) ([]blobFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &coreerrors.IOError{Operation: "read dir", Path: dir, Err: err}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".blob" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	files := make([]blobFile, 0, len(names))
	for _, name := range names {
		f, err := readBlobFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}
