package types

import (
	"io/fs"
	"time"
)

// EntryType classifies a listed path.
type EntryType string

const (
	TypeFile      EntryType = "file"
	TypeDirectory EntryType = "directory"
)

// FileInfo is the detail record returned by backend stat and listing calls.
type FileInfo struct {
	Name    string      `json:"name"` // Absolute path on the backend
	Size    Bytes       `json:"size"`
	Mode    fs.FileMode `json:"mode"`
	ModTime time.Time   `json:"mod_time"`
	Type    EntryType   `json:"type"`
}

// IsDir reports whether the entry is a directory.
func (fi FileInfo) IsDir() bool {
	return fi.Type == TypeDirectory
}

// FileStat is the size/mode pair tracked by the metadata cache. Other
// FileInfo fields (times, type) are never cached.
type FileStat struct {
	Size Bytes       `json:"size"`
	Mode fs.FileMode `json:"mode"`
}

// DefaultFileMode is assumed when a backend cannot report permissions.
const DefaultFileMode fs.FileMode = 0o644
