package upload

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout prefixes every final artifact name.
const TimestampLayout = "20060102_150405"

var (
	// ErrFilesystem wraps any disk failure while inspecting or mutating an
	// upload's files.
	ErrFilesystem = errors.New("upload filesystem error")
	// ErrNoFinalPath indicates a done marker that could not be read back.
	ErrNoFinalPath = errors.New("done marker has no final name")
)

func fsErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrFilesystem, op, err)
}

// Coordinator owns the per-upload locks and every state transition of the
// files under root. All methods taking a Session expect the caller to hold
// that session's lock.
type Coordinator struct {
	root  string
	now   func() time.Time
	locks *lockRegistry
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source used for final artifact names.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator returns a coordinator storing uploads under root.
func NewCoordinator(root string, opts ...Option) *Coordinator {
	c := &Coordinator{
		root:  root,
		now:   time.Now,
		locks: newLockRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Root returns the storage root.
func (c *Coordinator) Root() string { return c.root }

// Session resolves header fields against the coordinator's root.
func (c *Coordinator) Session(clientName, filename, uploadID string, size uint64) (Session, error) {
	return FromHeader(c.root, clientName, filename, uploadID, size)
}

// LockFor returns the shared lock for id, creating it if absent, and takes a
// reference on it. Follow with Acquire.
func (c *Coordinator) LockFor(id string) *Lock {
	return c.locks.get(id)
}

// Locks reports how many upload ids currently have a live lock entry.
func (c *Coordinator) Locks() int {
	return c.locks.len()
}

// EnsureClientDir creates the session's client directory if needed.
func (c *Coordinator) EnsureClientDir(s Session) error {
	if err := os.MkdirAll(s.ClientDir, 0755); err != nil {
		return fsErr("mkdir client dir", err)
	}
	return nil
}

// IsDone reports whether the done marker exists.
func (c *Coordinator) IsDone(s Session) (bool, error) {
	_, err := os.Stat(s.DonePath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fsErr("stat done marker", err)
}

// ExistingOffset returns how many bytes the server already holds: the
// declared size once finalized, otherwise the part file size.
func (c *Coordinator) ExistingOffset(s Session) (uint64, error) {
	done, err := c.IsDone(s)
	if err != nil {
		return 0, err
	}
	if done {
		return s.Size, nil
	}
	info, err := os.Stat(s.PartPath)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fsErr("stat part file", err)
	}
	return uint64(info.Size()), nil
}

// Reset truncates the part file to zero bytes, creating it if needed.
func (c *Coordinator) Reset(s Session) error {
	if err := c.EnsureClientDir(s); err != nil {
		return err
	}
	f, err := os.Create(s.PartPath)
	if err != nil {
		return fsErr("truncate part file", err)
	}
	if err := f.Close(); err != nil {
		return fsErr("close part file", err)
	}
	return nil
}

// OpenPart opens the part file for writing, creating it if absent, and
// positions it at offset.
func (c *Coordinator) OpenPart(s Session, offset uint64) (*os.File, error) {
	f, err := os.OpenFile(s.PartPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fsErr("open part file", err)
	}
	if _, err := f.Seek(int64(offset), 0); err != nil {
		f.Close()
		return nil, fsErr("seek part file", err)
	}
	return f, nil
}

// Finalize renames the completed part file to a timestamped artifact in the
// same directory and records its name in the done marker. It returns the
// final path.
func (c *Coordinator) Finalize(s Session) (string, error) {
	if err := c.EnsureClientDir(s); err != nil {
		return "", err
	}
	if err := syncFile(s.PartPath); err != nil {
		return "", err
	}
	finalName, err := c.freeName(s)
	if err != nil {
		return "", err
	}
	finalPath := filepath.Join(s.ClientDir, finalName)
	if err := os.Rename(s.PartPath, finalPath); err != nil {
		return "", fsErr("rename part file", err)
	}
	if err := writeMarker(s.DonePath, finalName); err != nil {
		return "", err
	}
	return finalPath, nil
}

// ResolveFinalPath returns the artifact path recorded in the done marker.
func (c *Coordinator) ResolveFinalPath(s Session) (string, error) {
	data, err := os.ReadFile(s.DonePath)
	if err != nil {
		return "", fsErr("read done marker", err)
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return "", ErrNoFinalPath
	}
	return filepath.Join(s.ClientDir, name), nil
}

// freeName picks "<timestamp>_<filename>", inserting a counter before the
// extension if an artifact with that name already exists.
func (c *Coordinator) freeName(s Session) (string, error) {
	stamp := c.now().Format(TimestampLayout)
	ext := filepath.Ext(s.Filename)
	stem := strings.TrimSuffix(s.Filename, ext)
	name := stamp + "_" + s.Filename
	for i := 1; ; i++ {
		_, err := os.Lstat(filepath.Join(s.ClientDir, name))
		if errors.Is(err, fs.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", fsErr("stat final name", err)
		}
		name = stamp + "_" + stem + "_" + strconv.Itoa(i) + ext
	}
}

func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fsErr("open part file", err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fsErr("sync part file", err)
	}
	return nil
}

// writeMarker publishes the marker with a rename so readers never see a
// partially written name.
func writeMarker(path, finalName string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(finalName), 0644); err != nil {
		return fsErr("write done marker", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fsErr("publish done marker", err)
	}
	return nil
}
