// Package vfs holds the inode directory, file registry, and operation
// handler that bridge the path-addressed WebDAV protocol and the
// inode-addressed kernel interface.
package vfs

import (
	"fmt"
	"strings"
	"sync"
)

// Ino is a session-scoped inode identifier. Identifiers are monotonically
// increasing and never reused, so a logical entry keeps its identity for the
// lifetime of the mount.
type Ino uint64

// RootIno is the protocol-mandated root inode identifier.
const RootIno Ino = 1

// maxPathDepth bounds the parent-chain walk in PathOf. A chain longer than
// this means the tree has a cycle, which is reported instead of recursed into.
const maxPathDepth = 256

// node is one directory entry holder: the parent link plus the child
// name-to-inode mapping. The root's parent is itself, which makes ".."
// resolution uniform.
type node struct {
	parent   Ino
	children map[string]Ino
}

// InodeTable is the bidirectional inode/path mapping. The remote protocol
// only speaks in paths; the kernel only speaks in inode numbers.
type InodeTable struct {
	mu    sync.RWMutex
	next  Ino
	nodes map[Ino]*node
}

// NewInodeTable creates a table holding only the root.
func NewInodeTable() *InodeTable {
	return &InodeTable{
		next: RootIno + 1,
		nodes: map[Ino]*node{
			RootIno: {parent: RootIno, children: make(map[string]Ino)},
		},
	}
}

// Allocate returns the next unused inode id and creates its empty node.
func (t *InodeTable) Allocate() Ino {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	t.nodes[id] = &node{children: make(map[string]Ino)}
	return id
}

// RegisterChild inserts child under parent with the given name and sets the
// child's parent link.
func (t *InodeTable) RegisterChild(parent Ino, name string, child Ino) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.nodes[parent]
	if !ok {
		return fmt.Errorf("%w: inode %d", ErrParentNotFound, parent)
	}
	c, ok := t.nodes[child]
	if !ok {
		return fmt.Errorf("%w: inode %d", ErrInodeNotFound, child)
	}
	p.children[name] = child
	c.parent = parent
	return nil
}

// Resolve looks up a child of parent by name.
func (t *InodeTable) Resolve(parent Ino, name string) (Ino, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.nodes[parent]
	if !ok {
		return 0, fmt.Errorf("%w: inode %d", ErrParentNotFound, parent)
	}
	child, ok := p.children[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q under inode %d", ErrChildNotFound, name, parent)
	}
	return child, nil
}

// Parent returns the parent of id. The root is its own parent.
func (t *InodeTable) Parent(id Ino) (Ino, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok {
		return 0, fmt.Errorf("%w: inode %d", ErrInodeNotFound, id)
	}
	return n.parent, nil
}

// HasChildren reports whether id has any registered children.
func (t *InodeTable) HasChildren(id Ino) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok {
		return false, fmt.Errorf("%w: inode %d", ErrInodeNotFound, id)
	}
	return len(n.children) > 0, nil
}

// Len returns the number of inodes in the table.
func (t *InodeTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// PathOf reconstructs the absolute path of id by walking parent links up to
// the root. Broken links are reported as structural errors, and the walk is
// depth-bounded so an accidental cycle cannot recurse forever.
func (t *InodeTable) PathOf(id Ino) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if id == RootIno {
		return "/", nil
	}

	var segments []string
	cur := id
	for depth := 0; depth < maxPathDepth; depth++ {
		if cur == RootIno {
			// Collected leaf-to-root; reverse into root-to-leaf order.
			for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
				segments[i], segments[j] = segments[j], segments[i]
			}
			return "/" + strings.Join(segments, "/"), nil
		}

		n, ok := t.nodes[cur]
		if !ok {
			return "", fmt.Errorf("%w: inode %d", ErrInodeNotFound, cur)
		}
		p, ok := t.nodes[n.parent]
		if !ok {
			return "", fmt.Errorf("%w: inode %d of %d", ErrParentNotFound, n.parent, cur)
		}

		name := ""
		for nm, ch := range p.children {
			if ch == cur {
				name = nm
				break
			}
		}
		if name == "" {
			return "", fmt.Errorf("%w: inode %d not registered under parent %d", ErrChildNotFound, cur, n.parent)
		}

		segments = append(segments, name)
		cur = n.parent
	}
	return "", fmt.Errorf("%w: parent chain of inode %d exceeds depth %d, cycle suspected", ErrParentNotFound, id, maxPathDepth)
}
