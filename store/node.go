package store

import (
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// RootName is the name the root directory answers to
const RootName = "/"

// PermMask keeps only permission, setuid/setgid and sticky bits
const PermMask = 0o7777

// Kind tells files and directories apart
type Kind uint8

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	if k == KindDirectory {
		return "dir"
	}
	return "file"
}

// TypeBits returns the S_IF* bits for the kind
func (k Kind) TypeBits() uint32 {
	if k == KindDirectory {
		return syscall.S_IFDIR
	}
	return syscall.S_IFREG
}

// Attr is a point-in-time copy of a node's attributes
type Attr struct {
	Ino   uint64
	Kind  Kind
	Mode  uint32 // permission bits only; see [Attr.FullMode]
	Size  uint64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// FullMode returns the permission bits combined with the type bits
func (a Attr) FullMode() uint32 {
	return a.Kind.TypeBits() | a.Mode
}

// IsDir reports whether the attributes describe a directory
func (a Attr) IsDir() bool {
	return a.Kind == KindDirectory
}

// NodeInfo is the read-only view of a node handed out by [Store.Find]
type NodeInfo struct {
	ID   uuid.UUID
	Name string
	Attr
}

// Node is a single entry in the store.
// Every field except atime is guarded by the owning Store's lock.
type Node struct {
	id      uuid.UUID
	ino     uint64
	name    string
	kind    Kind
	mode    uint32
	content []byte
	atime   atomic.Int64 // unix nanos; refreshed by readers holding only the read lock
	mtime   time.Time
	ctime   time.Time
}

func newNode(ino uint64, name string, kind Kind, mode uint32, now time.Time) *Node {
	n := &Node{
		id:    uuid.New(),
		ino:   ino,
		name:  name,
		kind:  kind,
		mode:  mode & PermMask,
		mtime: now,
		ctime: now,
	}
	n.atime.Store(now.UnixNano())
	return n
}

func (n *Node) size() uint64 {
	return uint64(len(n.content))
}

func (n *Node) touchAtime(now time.Time) {
	n.atime.Store(now.UnixNano())
}

func (n *Node) attr() Attr {
	return Attr{
		Ino:   n.ino,
		Kind:  n.kind,
		Mode:  n.mode,
		Size:  n.size(),
		Atime: time.Unix(0, n.atime.Load()),
		Mtime: n.mtime,
		Ctime: n.ctime,
	}
}

func (n *Node) info() NodeInfo {
	return NodeInfo{ID: n.id, Name: n.name, Attr: n.attr()}
}

// release drops the content buffer so it can be collected
func (n *Node) release() {
	n.content = nil
}
