package vfs

import (
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/davmount/davmount/internal/webdav"
)

// Kind classifies a registry entry.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// SyncState tracks where an entry's content lives relative to the server.
// Only Local (root), RemoteOnly (freshly discovered), and ChangedRemote
// (etag moved under us) are produced today; the remaining states are declared
// for the read-write evolution and have no transitions yet.
type SyncState int

const (
	StateLocal SyncState = iota
	StateRemoteOnly
	StateChangedLocally
	StateChangedRemote
	StateConflict
	StateDownloading
	StateUploading
)

func (s SyncState) String() string {
	switch s {
	case StateLocal:
		return "local"
	case StateRemoteOnly:
		return "remote-only"
	case StateChangedLocally:
		return "changed-locally"
	case StateChangedRemote:
		return "changed-remote"
	case StateConflict:
		return "conflict"
	case StateDownloading:
		return "downloading"
	case StateUploading:
		return "uploading"
	default:
		return "unknown"
	}
}

// FileRecord is the cached attribute record for one inode.
type FileRecord struct {
	Name  string
	Size  int64 // bytes, meaningful for files only
	MTime int64 // unix seconds
	Kind  Kind
	State SyncState
	Etag  string
}

// RecordFromProp converts a parsed property record into a registry record.
// The parser guarantees the resource type is resolved; an invalid type
// reaching this conversion is a contract violation, not a recoverable error.
func RecordFromProp(p webdav.Prop) FileRecord {
	var kind Kind
	switch p.Type {
	case webdav.TypeFile:
		kind = KindFile
	case webdav.TypeCollection:
		kind = KindDirectory
	default:
		panic(fmt.Sprintf("vfs: prop %q has invalid resource type", p.Path))
	}
	return FileRecord{
		Name:  p.Name(),
		Size:  p.Size,
		MTime: p.MTime,
		Kind:  kind,
		State: StateRemoteOnly,
		Etag:  p.Etag,
	}
}

// attrBlockSize is the block unit reported to the kernel.
const attrBlockSize = 512

const (
	fileMode = 0644 | syscall.S_IFREG
	dirMode  = 0755 | syscall.S_IFDIR
)

// Attr is the kernel-facing attribute projection of a FileRecord.
type Attr struct {
	Ino    Ino
	Size   int64
	Blocks int64
	MTime  int64 // also used for atime and ctime
	Mode   uint32
	Uid    uint32
	Gid    uint32
}

// Attr projects the record into the kernel attribute shape. WebDAV carries no
// POSIX ownership, so the serving process's own credentials are reported.
func (r FileRecord) Attr(id Ino) Attr {
	mode := uint32(fileMode)
	if r.Kind == KindDirectory {
		mode = dirMode
	}
	return Attr{
		Ino:    id,
		Size:   r.Size,
		Blocks: r.Size / attrBlockSize,
		MTime:  r.MTime,
		Mode:   mode,
		Uid:    uint32(os.Getuid()),
		Gid:    uint32(os.Getgid()),
	}
}

// Registry is the per-inode attribute cache.
type Registry struct {
	mu      sync.RWMutex
	records map[Ino]FileRecord
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[Ino]FileRecord)}
}

// Get returns the record for id.
func (g *Registry) Get(id Ino) (FileRecord, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.records[id]
	if !ok {
		return FileRecord{}, fmt.Errorf("%w: inode %d", ErrRecordMissing, id)
	}
	return rec, nil
}

// Put stores or replaces the record for id.
func (g *Registry) Put(id Ino, rec FileRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records[id] = rec
}

// Len returns the number of records.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records)
}
