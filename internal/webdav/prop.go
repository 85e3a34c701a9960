package webdav

import (
	"path"
	"strings"
)

// ResourceType classifies a remote resource. Collections are the WebDAV
// equivalent of directories.
type ResourceType int

const (
	// TypeInvalid is the accumulator default before resourcetype has been
	// parsed. It never appears in a finalized Prop.
	TypeInvalid ResourceType = iota
	// TypeFile is a regular file.
	TypeFile
	// TypeCollection is a folder.
	TypeCollection
)

func (t ResourceType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeCollection:
		return "collection"
	default:
		return "invalid"
	}
}

// Prop holds the metadata WebDAV reports for a single remote resource.
type Prop struct {
	// Etag is stable as long as the resource has not changed.
	Etag string
	// Path is the decoded href, relative to the server root.
	Path string
	// Size in bytes. Meaningful for files only; collections report none.
	Size int64
	// MTime is the unix timestamp of the last modification.
	MTime int64
	// Type of the resource.
	Type ResourceType
}

// Name returns the last path segment. Collections carry a trailing slash in
// their href, which does not count as a segment.
func (p Prop) Name() string {
	return path.Base(strings.TrimSuffix(p.Path, "/"))
}

// IsCollection reports whether the prop describes a folder.
func (p Prop) IsCollection() bool {
	return p.Type == TypeCollection
}
