// Package fuse bridges the operation handler onto the kernel FUSE interface.
package fuse

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"

	"github.com/davmount/davmount/internal/logging"
	"github.com/davmount/davmount/internal/vfs"
	"github.com/davmount/davmount/internal/webdav"
)

// Config holds FUSE bridge configuration.
type Config struct {
	// AttrTimeout is how long the kernel may reuse returned attributes and
	// entries without re-querying.
	AttrTimeout time.Duration
	// Debug enables go-fuse protocol debugging.
	Debug bool
}

// DavFS owns the operation handler and mounts it.
type DavFS struct {
	handler *vfs.Handler
	cfg     Config
}

// NewDavFS creates the filesystem around an operation handler.
func NewDavFS(handler *vfs.Handler, cfg Config) *DavFS {
	if cfg.AttrTimeout == 0 {
		cfg.AttrTimeout = time.Second
	}
	return &DavFS{handler: handler, cfg: cfg}
}

// DavNode represents a file or directory in the mounted tree. Its kernel
// inode number is pinned to the handler's inode id through StableAttr, so
// the same logical entry keeps the same identifier for the whole session.
type DavNode struct {
	fs.Inode

	fsys *DavFS
	ino  vfs.Ino
}

var (
	_ fs.InodeEmbedder = (*DavNode)(nil)
	_ fs.NodeGetattrer = (*DavNode)(nil)
	_ fs.NodeLookuper  = (*DavNode)(nil)
	_ fs.NodeReaddirer = (*DavNode)(nil)
)

// errno collapses handler errors into the outcome set the kernel accepts.
// Richer detail has already been logged below this boundary.
func errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	if vfs.IsNotFound(err) {
		return syscall.ENOENT
	}
	return syscall.EIO
}

func fillAttr(out *gofuse.Attr, a vfs.Attr) {
	out.Ino = uint64(a.Ino)
	out.Size = uint64(a.Size)
	out.Blocks = uint64(a.Blocks)
	out.Mode = a.Mode
	out.Mtime = uint64(a.MTime)
	out.Atime = out.Mtime
	out.Ctime = out.Mtime
	out.Uid = a.Uid
	out.Gid = a.Gid
}

// Getattr returns attributes from the file registry; it never touches the
// network.
func (n *DavNode) Getattr(ctx context.Context, fh fs.FileHandle, out *gofuse.AttrOut) syscall.Errno {
	attr, err := n.fsys.handler.Getattr(n.ino)
	if err != nil {
		return errno(err)
	}
	fillAttr(&out.Attr, attr)
	return 0
}

// Lookup finds a child by name, populating the directory from the server
// when it has not been listed yet.
func (n *DavNode) Lookup(ctx context.Context, name string, out *gofuse.EntryOut) (*fs.Inode, syscall.Errno) {
	id, attr, err := n.fsys.handler.Lookup(ctx, n.ino, name)
	if err != nil {
		return nil, errno(err)
	}

	fillAttr(&out.Attr, attr)
	child := &DavNode{fsys: n.fsys, ino: id}
	stable := fs.StableAttr{
		Mode: attr.Mode & syscall.S_IFMT,
		Ino:  uint64(id),
	}
	return n.NewInode(ctx, child, stable), 0
}

// Readdir lists directory contents, re-fetching from the server. The handler
// synthesizes "." and ".." at offset zero; the stream paginates over that
// snapshot, so kernel-visible listings stay stable within a handle.
func (n *DavNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	rows, err := n.fsys.handler.Readdir(ctx, n.ino, 0)
	if err != nil {
		return nil, errno(err)
	}

	entries := make([]gofuse.DirEntry, 0, len(rows))
	for _, row := range rows {
		mode := uint32(syscall.S_IFREG)
		if row.Kind == vfs.KindDirectory {
			mode = syscall.S_IFDIR
		}
		entries = append(entries, gofuse.DirEntry{
			Name: row.Name,
			Mode: mode,
			Ino:  uint64(row.Ino),
		})
	}
	return fs.NewListDirStream(entries), 0
}

// Prefetch walks the whole remote tree once with a recursive PROPFIND. It
// only warms the parser and connection; population stays per-directory.
func (f *DavFS) Prefetch(ctx context.Context, client *webdav.Client) {
	props, err := client.List(ctx, "/", webdav.DepthRecursive)
	if err != nil {
		logging.Warn("prefetch failed", logging.Err(err))
		return
	}
	logging.Info("prefetch complete", logging.Int("entries", len(props)))
}

// Mount mounts the filesystem read-only at mountPoint.
func (f *DavFS) Mount(mountPoint string) (*gofuse.Server, error) {
	if err := os.MkdirAll(mountPoint, 0755); err != nil {
		return nil, fmt.Errorf("create mount point: %w", err)
	}

	root := &DavNode{fsys: f, ino: vfs.RootIno}

	ttl := f.cfg.AttrTimeout
	opts := &fs.Options{
		MountOptions: gofuse.MountOptions{
			AllowOther: false,
			Debug:      f.cfg.Debug,
			FsName:     "davmount",
			Name:       "davmount",
			Options:    []string{"ro", "noatime"},
		},
		EntryTimeout: &ttl,
		AttrTimeout:  &ttl,
		UID:          uint32(os.Getuid()),
		GID:          uint32(os.Getgid()),
		RootStableAttr: &fs.StableAttr{
			Mode: syscall.S_IFDIR,
			Ino:  uint64(vfs.RootIno),
		},
	}

	server, err := fs.Mount(mountPoint, root, opts)
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}
	return server, nil
}
