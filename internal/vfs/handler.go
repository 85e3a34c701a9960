package vfs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/davmount/davmount/internal/logging"
	"github.com/davmount/davmount/internal/metrics"
	"github.com/davmount/davmount/internal/webdav"
)

// Lister is the remote protocol surface the handler needs.
type Lister interface {
	List(ctx context.Context, path string, depth webdav.Depth) ([]webdav.Prop, error)
}

// DirEntry is one readdir result row.
type DirEntry struct {
	Ino  Ino
	Name string
	Kind Kind
}

// Handler implements lookup, readdir, and getattr over the inode table and
// file registry, populating both lazily from the remote server. All
// persistent state lives in the table and registry; the handler itself is a
// stateless mapper over per-call inputs.
type Handler struct {
	remote   Lister
	inodes   *InodeTable
	registry *Registry
	basePath string

	// Population fetches for the same directory path are coalesced so
	// concurrent readdir/lookup calls can never allocate two inode ids for
	// one logical entry.
	group singleflight.Group
}

// NewHandler creates a handler with a fresh root. basePath is the path
// component of the server base URL, stripped from hrefs to translate them
// back into mount-relative paths.
func NewHandler(remote Lister, basePath string) *Handler {
	h := &Handler{
		remote:   remote,
		inodes:   NewInodeTable(),
		registry: NewRegistry(),
		basePath: strings.TrimSuffix(basePath, "/"),
	}
	h.registry.Put(RootIno, FileRecord{
		Name:  "/",
		Kind:  KindDirectory,
		State: StateLocal,
		MTime: time.Now().Unix(),
	})
	return h
}

// Inodes exposes the inode table for introspection.
func (h *Handler) Inodes() *InodeTable {
	return h.inodes
}

// Lookup resolves name under parent and returns its inode id and attributes.
// A parent with no registered children is populated from the server first.
func (h *Handler) Lookup(ctx context.Context, parent Ino, name string) (Ino, Attr, error) {
	id, attr, err := h.lookup(ctx, parent, name)
	metrics.RecordOp("lookup", err)
	return id, attr, err
}

func (h *Handler) lookup(ctx context.Context, parent Ino, name string) (Ino, Attr, error) {
	populated, err := h.inodes.HasChildren(parent)
	if err != nil {
		return 0, Attr{}, fmt.Errorf("lookup %q: %w", name, err)
	}
	if !populated {
		if _, err := h.populate(ctx, parent); err != nil {
			return 0, Attr{}, fmt.Errorf("lookup %q: %w", name, err)
		}
	}

	id, err := h.inodes.Resolve(parent, name)
	if err != nil {
		return 0, Attr{}, err
	}
	rec, err := h.registry.Get(id)
	if err != nil {
		// Every registered inode must have a record; log the violation and
		// fail only this request.
		logging.Error("inode has no file record",
			logging.Uint64("ino", uint64(id)),
			logging.String("name", name),
		)
		return 0, Attr{}, err
	}
	return id, rec.Attr(id), nil
}

// Readdir fetches dir's listing from the server and returns its entries.
// "." and ".." are synthesized as the first two rows when offset is zero;
// offset is applied as a skip count over the freshly fetched list.
func (h *Handler) Readdir(ctx context.Context, dir Ino, offset int) ([]DirEntry, error) {
	entries, err := h.readdir(ctx, dir, offset)
	metrics.RecordOp("readdir", err)
	return entries, err
}

func (h *Handler) readdir(ctx context.Context, dir Ino, offset int) ([]DirEntry, error) {
	parent, err := h.inodes.Parent(dir)
	if err != nil {
		return nil, fmt.Errorf("readdir: %w", err)
	}

	children, err := h.populate(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("readdir: %w", err)
	}

	entries := make([]DirEntry, 0, len(children)+2)
	entries = append(entries,
		DirEntry{Ino: dir, Name: ".", Kind: KindDirectory},
		DirEntry{Ino: parent, Name: "..", Kind: KindDirectory},
	)
	entries = append(entries, children...)

	if offset >= len(entries) {
		return nil, nil
	}
	return entries[offset:], nil
}

// Getattr returns the attributes for id from the registry. No network call
// is made; a missing record is not-found, never a defaulted attribute.
func (h *Handler) Getattr(id Ino) (Attr, error) {
	attr, err := h.getattr(id)
	metrics.RecordOp("getattr", err)
	return attr, err
}

func (h *Handler) getattr(id Ino) (Attr, error) {
	rec, err := h.registry.Get(id)
	if err != nil {
		return Attr{}, err
	}
	return rec.Attr(id), nil
}

// populate fetches dir's children from the server and folds them into the
// inode table and registry. Concurrent calls for the same path share one
// in-flight fetch.
func (h *Handler) populate(ctx context.Context, dir Ino) ([]DirEntry, error) {
	dirPath, err := h.inodes.PathOf(dir)
	if err != nil {
		logging.Error("path reconstruction failed",
			logging.Uint64("ino", uint64(dir)),
			logging.Err(err),
		)
		return nil, err
	}

	v, err, _ := h.group.Do(dirPath, func() (interface{}, error) {
		return h.fetchDir(ctx, dir, dirPath)
	})
	if err != nil {
		return nil, err
	}
	return v.([]DirEntry), nil
}

func (h *Handler) fetchDir(ctx context.Context, dir Ino, dirPath string) ([]DirEntry, error) {
	props, err := h.remote.List(ctx, dirPath, webdav.DepthWithChildren)
	if err != nil {
		logging.Error("directory fetch failed",
			logging.String("path", dirPath),
			logging.Err(err),
		)
		return nil, err
	}
	metrics.RecordDirPopulation()

	entries := make([]DirEntry, 0, len(props))
	for _, prop := range props {
		rel := h.relativePath(prop.Path)
		if rel == normalizePath(dirPath) {
			// Depth "1" includes the collection itself as the first response.
			continue
		}

		name := prop.Name()
		rec := RecordFromProp(prop)

		id, err := h.inodes.Resolve(dir, name)
		switch {
		case err == nil:
			// Known entry: keep its inode id. A moved etag means the remote
			// content changed under us.
			if old, gerr := h.registry.Get(id); gerr == nil && old.Etag != "" && old.Etag != rec.Etag {
				rec.State = StateChangedRemote
				logging.Debug("remote change detected",
					logging.String("path", rel),
					logging.String("old_etag", old.Etag),
					logging.String("new_etag", rec.Etag),
				)
			}
			h.registry.Put(id, rec)
		default:
			id = h.inodes.Allocate()
			if rerr := h.inodes.RegisterChild(dir, name, id); rerr != nil {
				logging.Error("child registration failed",
					logging.String("path", rel),
					logging.Err(rerr),
				)
				return nil, rerr
			}
			h.registry.Put(id, rec)
		}

		entries = append(entries, DirEntry{Ino: id, Name: name, Kind: rec.Kind})
	}

	metrics.SetInodesLive(h.inodes.Len())
	logging.Debug("directory populated",
		logging.String("path", dirPath),
		logging.Int("entries", len(entries)),
	)
	return entries, nil
}

// relativePath translates a decoded href into a path relative to the mount
// root by stripping the server base path.
func (h *Handler) relativePath(href string) string {
	p := normalizePath(href)
	if h.basePath != "" && strings.HasPrefix(p, h.basePath) {
		p = p[len(h.basePath):]
	}
	return normalizePath(p)
}

func normalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
