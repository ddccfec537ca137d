// Package upload maps upload headers onto the on-disk layout and coordinates
// concurrent attempts on the same upload id: resume offsets, stale part
// recovery and atomic finalization.
package upload

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

const (
	partSuffix = ".part"
	doneSuffix = ".done"
)

var (
	// ErrInvalidName indicates a header name that sanitizes to nothing usable.
	ErrInvalidName = errors.New("invalid name")
	// ErrSizeTooLarge indicates a declared size no file offset can reach.
	ErrSizeTooLarge = errors.New("declared size too large")
)

// MaxSize is the largest declared size accepted; file offsets are int64.
const MaxSize = math.MaxInt64

// Session is the per-attempt view of one logical upload. All paths are a
// pure function of root, client name, upload id and filename.
type Session struct {
	ClientName string
	Filename   string
	UploadID   string
	Size       uint64
	ClientDir  string
	PartPath   string
	DonePath   string
}

// SafeName reduces name to a single path element: everything after the last
// "/", with backslashes replaced by underscores.
func SafeName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.ReplaceAll(name, "\\", "_")
}

func checkName(kind, raw string) (string, error) {
	safe := SafeName(raw)
	if safe == "" || safe == "." || safe == ".." {
		return "", fmt.Errorf("%w: %s %q", ErrInvalidName, kind, raw)
	}
	return safe, nil
}

// FromHeader builds the Session for one connection attempt.
func FromHeader(root, clientName, filename, uploadID string, size uint64) (Session, error) {
	if size > MaxSize {
		return Session{}, fmt.Errorf("%w: %d", ErrSizeTooLarge, size)
	}
	client, err := checkName("client name", clientName)
	if err != nil {
		return Session{}, err
	}
	file, err := checkName("filename", filename)
	if err != nil {
		return Session{}, err
	}
	id, err := checkName("upload id", uploadID)
	if err != nil {
		return Session{}, err
	}
	dir := filepath.Join(root, client)
	return Session{
		ClientName: client,
		Filename:   file,
		UploadID:   id,
		Size:       size,
		ClientDir:  dir,
		PartPath:   filepath.Join(dir, id+"_"+file+partSuffix),
		DonePath:   filepath.Join(dir, id+doneSuffix),
	}, nil
}
