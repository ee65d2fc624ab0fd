package store

import (
	"time"

	"github.com/brettbedarf/memfs/config"
)

// Superblock carries the filesystem-wide capacity figures and counters.
// The counters are informational: they are reported through statfs but never
// checked to refuse an operation.
type Superblock struct {
	FsSize        uint64 // Logical size of the filesystem in bytes
	BlockSize     uint32
	TotalBlocks   uint64
	FreeBlocks    uint64
	TotalInodes   uint64
	FreeInodes    uint64
	MountTime     time.Time // Last mount time
	WriteTime     time.Time // Last content mutation
	LastCheck     time.Time
	MaxMountCount uint32 // Mounts allowed before a check is due
	MountCount    uint32
}

func newSuperblock(cfg *config.Config, now time.Time) Superblock {
	totalBlocks := uint64(cfg.FsSize / cfg.BlockSize)
	totalInodes := uint64(cfg.TotalInodes)
	return Superblock{
		FsSize:      uint64(cfg.FsSize),
		BlockSize:   uint32(cfg.BlockSize),
		TotalBlocks: totalBlocks,
		// root takes one block and one inode
		FreeBlocks:    subSat(totalBlocks, 1),
		TotalInodes:   totalInodes,
		FreeInodes:    subSat(totalInodes, 1),
		MountTime:     now,
		WriteTime:     now,
		LastCheck:     now,
		MaxMountCount: uint32(cfg.MaxMountCount),
	}
}

// blocksFor rounds size up to whole blocks
func (sb *Superblock) blocksFor(size uint64) uint64 {
	bs := uint64(sb.BlockSize)
	if bs == 0 {
		return 0
	}
	return (size + bs - 1) / bs
}

// resize moves the free block counter by the block delta between two file sizes
func (sb *Superblock) resize(oldSize, newSize uint64) {
	oldBlocks, newBlocks := sb.blocksFor(oldSize), sb.blocksFor(newSize)
	if newBlocks > oldBlocks {
		sb.FreeBlocks = subSat(sb.FreeBlocks, newBlocks-oldBlocks)
	} else {
		sb.FreeBlocks = min(sb.FreeBlocks+(oldBlocks-newBlocks), subSat(sb.TotalBlocks, 1))
	}
}

func (sb *Superblock) allocInode() {
	sb.FreeInodes = subSat(sb.FreeInodes, 1)
}

func (sb *Superblock) freeInode() {
	sb.FreeInodes = min(sb.FreeInodes+1, subSat(sb.TotalInodes, 1))
}

// subSat subtracts without wrapping below zero
func subSat(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
