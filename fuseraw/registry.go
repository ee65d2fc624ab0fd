package fuseraw

import (
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"
)

// entry is a kernel-visible NodeID and the lookups the kernel still holds on it
type entry struct {
	name    string
	lookups uint64
}

// nodeRegistry maps kernel NodeIDs (store inode numbers) back to node names.
// The root is implicit and never stored.
type nodeRegistry struct {
	ids *xsync.Map[uint64, entry]
}

func newNodeRegistry() *nodeRegistry {
	return &nodeRegistry{ids: xsync.NewMap[uint64, entry]()}
}

// ref records one kernel lookup of id
func (r *nodeRegistry) ref(id uint64, name string) {
	if id == fuse.FUSE_ROOT_ID {
		return
	}
	r.ids.Compute(id, func(old entry, loaded bool) (entry, xsync.ComputeOp) {
		return entry{name: name, lookups: old.lookups + 1}, xsync.UpdateOp
	})
}

// forget drops n lookups from id and removes it once none are left
func (r *nodeRegistry) forget(id uint64, n uint64) {
	r.ids.Compute(id, func(old entry, loaded bool) (entry, xsync.ComputeOp) {
		if !loaded {
			return old, xsync.CancelOp
		}
		if n >= old.lookups {
			return old, xsync.DeleteOp
		}
		old.lookups -= n
		return old, xsync.UpdateOp
	})
}

// name returns the node name registered for id
func (r *nodeRegistry) name(id uint64) (string, bool) {
	if id == fuse.FUSE_ROOT_ID {
		return "/", true
	}
	e, ok := r.ids.Load(id)
	return e.name, ok
}

func (r *nodeRegistry) size() int {
	return r.ids.Size()
}
