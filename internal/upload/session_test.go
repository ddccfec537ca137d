package upload

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"img.jpg":            "img.jpg",
		"dir/img.jpg":        "img.jpg",
		"../../etc/passwd":   "passwd",
		`C:\logs\pass.log`:   "C:_logs_pass.log",
		`dir/sub\name.txt`:   "sub_name.txt",
		"/abs/path/file.bin": "file.bin",
		"trailing/":          "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeName(in), "SafeName(%q)", in)
	}
}

func TestFromHeaderLayout(t *testing.T) {
	root := t.TempDir()
	s, err := FromHeader(root, "stationA", "img.jpg", "u1", 10)
	require.NoError(t, err)

	assert.Equal(t, "stationA", s.ClientName)
	assert.Equal(t, "img.jpg", s.Filename)
	assert.Equal(t, uint64(10), s.Size)
	assert.Equal(t, filepath.Join(root, "stationA"), s.ClientDir)
	assert.Equal(t, filepath.Join(root, "stationA", "u1_img.jpg.part"), s.PartPath)
	assert.Equal(t, filepath.Join(root, "stationA", "u1.done"), s.DonePath)
}

func TestFromHeaderIsDeterministic(t *testing.T) {
	a, err := FromHeader("/srv", "st", "a/b.log", "id", 5)
	require.NoError(t, err)
	b, err := FromHeader("/srv", "st", "a/b.log", "id", 5)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFromHeaderStaysInsideClientDir(t *testing.T) {
	root := t.TempDir()
	s, err := FromHeader(root, "../other", "../../x.bin", "../id", 1)
	require.NoError(t, err)

	for _, p := range []string{s.PartPath, s.DonePath} {
		rel, err := filepath.Rel(s.ClientDir, p)
		require.NoError(t, err)
		assert.False(t, strings.Contains(rel, ".."), "path %s escapes %s", p, s.ClientDir)
	}
	rel, err := filepath.Rel(root, s.ClientDir)
	require.NoError(t, err)
	assert.Equal(t, "other", rel)
}

func TestFromHeaderRejectsEmptyNames(t *testing.T) {
	for _, tc := range [][3]string{
		{"", "f", "id"},
		{"st", "..", "id"},
		{"st", "f", "dir/"},
	} {
		_, err := FromHeader("/srv", tc[0], tc[1], tc[2], 1)
		assert.True(t, errors.Is(err, ErrInvalidName), "expected ErrInvalidName for %v, got %v", tc, err)
	}
}

func TestFromHeaderRejectsOversizedDeclaration(t *testing.T) {
	_, err := FromHeader(t.TempDir(), "stationA", "big.bin", "big", 1<<63)
	assert.ErrorIs(t, err, ErrSizeTooLarge)

	s, err := FromHeader(t.TempDir(), "stationA", "big.bin", "big", MaxSize)
	require.NoError(t, err)
	assert.Equal(t, uint64(MaxSize), s.Size)
}
