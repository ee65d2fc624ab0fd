// Package store holds the in-memory node table backing the filesystem: a single
// root directory plus a flat set of regular files kept in newest-first order.
package store

import (
	"container/list"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Bootstrap file seeded when [config.Config.DemoFile] is set
const (
	DemoFileName = "hello.txt"
	DemoFileMode = 0o644
)

// DemoFileContent is the content of [DemoFileName]
var DemoFileContent = []byte("Hello World\n")

// NameMax is the longest accepted node name in bytes
const NameMax = 255

const rootMode = 0o755

// Store owns every node of the filesystem.
//
// A single RWMutex guards the whole collection: name uniqueness spans all nodes,
// so create and remove must be serialized against everything else. Readers
// share the read lock and refresh access times atomically.
type Store struct {
	mu          sync.RWMutex
	root        *Node
	index       map[string]*list.Element // name -> element in order
	order       *list.List               // non-root *Node values, newest first
	sb          Superblock
	lastIno     uint64 // last inode number handed out
	maxFileSize uint64
	now         func() time.Time
}

// New creates a store holding only the root directory, plus the demo file
// when cfg.DemoFile is set. A nil cfg uses the defaults.
func New(cfg *config.Config) *Store {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	s := &Store{
		index:       make(map[string]*list.Element),
		order:       list.New(),
		lastIno:     fuse.FUSE_ROOT_ID,
		maxFileSize: uint64(cfg.MaxFileSize),
		now:         time.Now,
	}
	now := s.now()
	s.root = newNode(fuse.FUSE_ROOT_ID, RootName, KindDirectory, rootMode, now)
	s.sb = newSuperblock(cfg, now)

	if cfg.DemoFile {
		s.bootstrap()
	}
	return s
}

func (s *Store) bootstrap() {
	logger := util.GetLogger("Store.bootstrap")

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.createLocked(DemoFileName, DemoFileMode)
	if err != nil {
		logger.Error().Err(err).Str("name", DemoFileName).Msg("Failed to create demo file")
		return
	}
	if _, err := s.writeLocked(n, 0, DemoFileContent); err != nil {
		logger.Error().Err(err).Str("name", DemoFileName).Msg("Failed to fill demo file")
	}
}

// lookupLocked resolves a name to its node. Caller must hold s.mu.
func (s *Store) lookupLocked(name string) (*Node, error) {
	if name == RootName {
		return s.root, nil
	}
	if elem, ok := s.index[name]; ok {
		return elem.Value.(*Node), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Find returns a snapshot of the node called name. The root answers to [RootName].
func (s *Store) Find(name string) (NodeInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.lookupLocked(name)
	if err != nil {
		return NodeInfo{}, err
	}
	return n.info(), nil
}

// Attributes returns the attributes of the node called name
func (s *Store) Attributes(name string) (Attr, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.lookupLocked(name)
	if err != nil {
		return Attr{}, err
	}
	return n.attr(), nil
}

// ListChildren returns the names of all non-root nodes, newest first.
// The root itself and the "." / ".." entries are not included.
func (s *Store) ListChildren() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, s.order.Len())
	for e := s.order.Front(); e != nil; e = e.Next() {
		names = append(names, e.Value.(*Node).name)
	}
	return names
}

// Children returns snapshots of all non-root nodes, newest first
func (s *Store) Children() []NodeInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]NodeInfo, 0, s.order.Len())
	for e := s.order.Front(); e != nil; e = e.Next() {
		infos = append(infos, e.Value.(*Node).info())
	}
	return infos
}

// Len returns the number of non-root nodes
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Len()
}

// Create adds an empty regular file called name with the given permission bits.
// It fails with ErrExists when any node, the root included, already answers to name.
func (s *Store) Create(name string, perm uint32) (Attr, error) {
	logger := util.GetLogger("Store.Create")

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.createLocked(name, perm)
	if err != nil {
		logger.Debug().Err(err).Str("name", name).Msg("Create rejected")
		return Attr{}, err
	}
	logger.Debug().
		Str("name", name).
		Str("id", n.id.String()).
		Uint64("ino", n.ino).
		Msg("Created file node")
	return n.attr(), nil
}

func (s *Store) createLocked(name string, perm uint32) (*Node, error) {
	if name == "" || len(name) > NameMax {
		return nil, fmt.Errorf("%w: name %q", ErrInvalid, name)
	}
	if _, err := s.lookupLocked(name); err == nil {
		return nil, fmt.Errorf("%w: %q", ErrExists, name)
	}
	if s.lastIno == math.MaxUint64 {
		return nil, fmt.Errorf("%w: inode numbers exhausted", ErrNoMemory)
	}

	s.lastIno++
	n := newNode(s.lastIno, name, KindFile, perm, s.now())
	s.index[name] = s.order.PushFront(n)
	s.sb.allocInode()
	return n, nil
}

// Read returns up to maxLen bytes of name's content starting at offset.
// Reading at or past the end returns an empty slice, not an error.
// The returned slice is a copy owned by the caller.
func (s *Store) Read(name string, offset int64, maxLen int) ([]byte, error) {
	if offset < 0 || maxLen < 0 {
		return nil, fmt.Errorf("%w: offset %d, length %d", ErrInvalid, offset, maxLen)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.lookupLocked(name)
	if err != nil {
		return nil, err
	}
	if n.kind == KindDirectory {
		return nil, fmt.Errorf("%w: %q", ErrIsDir, name)
	}

	n.touchAtime(s.now())
	size := int64(len(n.content))
	if offset >= size {
		return []byte{}, nil
	}
	end := offset + min(int64(maxLen), size-offset)
	out := make([]byte, end-offset)
	copy(out, n.content[offset:end])
	return out, nil
}

// Write copies data into name's content at offset and returns the number of
// bytes written. Writing past the end grows the content to exactly
// offset+len(data); any gap between the old end and offset reads back as zeros.
// When the new size would exceed the configured maximum the write fails with
// ErrNoMemory and nothing is modified.
func (s *Store) Write(name string, offset int64, data []byte) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("%w: offset %d", ErrInvalid, offset)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.lookupLocked(name)
	if err != nil {
		return 0, err
	}
	if n.kind == KindDirectory {
		return 0, fmt.Errorf("%w: %q", ErrIsDir, name)
	}
	return s.writeLocked(n, offset, data)
}

func (s *Store) writeLocked(n *Node, offset int64, data []byte) (int, error) {
	end := offset + int64(len(data))
	oldSize := n.size()
	if end < offset {
		return 0, fmt.Errorf("%w: %q offset %d overflows", ErrNoMemory, n.name, offset)
	}
	if uint64(end) > oldSize {
		if uint64(end) > s.maxFileSize {
			return 0, fmt.Errorf("%w: %q would grow to %d bytes (max %d)", ErrNoMemory, n.name, end, s.maxFileSize)
		}
		n.content = resize(n.content, int(end))
	}
	copy(n.content[offset:], data)

	now := s.now()
	n.mtime = now
	s.sb.WriteTime = now
	s.sb.resize(oldSize, n.size())
	return len(data), nil
}

// Truncate sets name's size. Growing zero-fills, shrinking drops the tail.
func (s *Store) Truncate(name string, size int64) error {
	if size < 0 {
		return fmt.Errorf("%w: size %d", ErrInvalid, size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.lookupLocked(name)
	if err != nil {
		return err
	}
	if n.kind == KindDirectory {
		return fmt.Errorf("%w: %q", ErrIsDir, name)
	}
	if uint64(size) > s.maxFileSize {
		return fmt.Errorf("%w: %q truncate to %d bytes (max %d)", ErrNoMemory, name, size, s.maxFileSize)
	}

	oldSize := n.size()
	if size == 0 {
		n.release()
	} else {
		n.content = resize(n.content, int(size))
	}

	now := s.now()
	n.mtime, n.ctime = now, now
	s.sb.WriteTime = now
	s.sb.resize(oldSize, n.size())
	return nil
}

// Chmod replaces name's permission bits
func (s *Store) Chmod(name string, perm uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.lookupLocked(name)
	if err != nil {
		return err
	}
	n.mode = perm & PermMask
	n.ctime = s.now()
	return nil
}

// SetTimes updates the access and/or modification time of name; nil leaves a time as is
func (s *Store) SetTimes(name string, atime, mtime *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.lookupLocked(name)
	if err != nil {
		return err
	}
	if atime != nil {
		n.atime.Store(atime.UnixNano())
	}
	if mtime != nil {
		n.mtime = *mtime
	}
	n.ctime = s.now()
	return nil
}

// Remove deletes name and releases its content. The root can never be removed.
func (s *Store) Remove(name string) error {
	logger := util.GetLogger("Store.Remove")

	if name == RootName {
		return fmt.Errorf("%w: %q", ErrRootBusy, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.index[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	n := s.order.Remove(elem).(*Node)
	delete(s.index, name)

	s.sb.resize(n.size(), 0)
	s.sb.freeInode()
	n.release()
	s.root.ctime = s.now()

	logger.Debug().Str("name", name).Str("id", n.id.String()).Uint64("ino", n.ino).Msg("Removed file node")
	return nil
}

// Statfs returns a copy of the superblock
func (s *Store) Statfs() Superblock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sb
}

// Mount records a new mount in the superblock
func (s *Store) Mount() {
	logger := util.GetLogger("Store.Mount")

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sb.MountCount++
	s.sb.MountTime = s.now()
	if s.sb.MaxMountCount > 0 && s.sb.MountCount > s.sb.MaxMountCount {
		logger.Warn().
			Uint32("mountCount", s.sb.MountCount).
			Uint32("maxMountCount", s.sb.MaxMountCount).
			Msg("Maximal mount count reached")
	}
}

// Close releases every content buffer and drops all non-root nodes
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for e := s.order.Front(); e != nil; e = e.Next() {
		n := e.Value.(*Node)
		s.sb.resize(n.size(), 0)
		s.sb.freeInode()
		n.release()
	}
	s.order.Init()
	clear(s.index)
	return nil
}

// resize returns buf with exactly size bytes, zero-filling any new tail
func resize(buf []byte, size int) []byte {
	if size <= len(buf) {
		return buf[:size]
	}
	if size <= cap(buf) {
		old := len(buf)
		buf = buf[:size]
		clear(buf[old:])
		return buf
	}
	out := make([]byte, size)
	copy(out, buf)
	return out
}
