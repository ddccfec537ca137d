package client

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

var uploadNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://uplink/upload-id"))

// DeriveUploadID names one logical file: the same station, path, size and
// modification time always yield the same id, across retries and restarts.
func DeriveUploadID(clientName, path string, size int64, modTime time.Time) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	name := fmt.Sprintf("%s\x00%s\x00%d\x00%d", clientName, path, size, modTime.UnixNano())
	return uuid.NewSHA1(uploadNamespace, []byte(name)).String()
}
