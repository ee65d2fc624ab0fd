package memfs

import (
	"errors"
	"time"
)

// ErrNoSource is returned when none of a request's sources produced content
var ErrNoSource = errors.New("no source produced content")

// NodeRequest has common fields embedded in concrete request types
type NodeRequest struct {
	Path  string
	Type  NodeCreateRequestType
	Perms uint32    // i.e. 0644
	Atime time.Time // Last Accessed at
	Mtime time.Time // Last Modified at
}

// NodeCreateRequestType valid types are FileNodeType "file", DirNodeType "dir"
type NodeCreateRequestType string

const (
	FileNodeType NodeCreateRequestType = "file"
	// DirNodeType is recognised so it can be rejected: the namespace is flat
	DirNodeType NodeCreateRequestType = "dir"
)

// FileCreateRequest describes one file to seed and where its content comes from
type FileCreateRequest struct {
	NodeRequest
	Sources []FileSource `json:"sources"`
}
