package requests

import (
	"encoding/json"
	"time"

	"github.com/brettbedarf/memfs"
)

// NodeRequestDTO is the JSON representation of [memfs.NodeRequest]
type NodeRequestDTO struct {
	Path  string                      `json:"path"`
	Type  memfs.NodeCreateRequestType `json:"type"`
	Atime *time.Time                  `json:"atime,omitempty"` // Last Accessed at (Default current time)
	Mtime *time.Time                  `json:"mtime,omitempty"` // Last Modified at (Default current time)
	Perms *uint32                     `json:"perms,omitempty"` // i.e. 420 (0644)
}

// FileRequestDTO is the JSON representation of [memfs.FileCreateRequest]
type FileRequestDTO struct {
	NodeRequestDTO
	Sources []json.RawMessage `json:"sources"`
}

// SourceConfigDTO is the JSON representation of static source fields
//
// Additional fields depend on the "type" value:
//
// Ex. For type="http" (see [adapters.HTTPSource]):
//
//	URL     string            `json:"url"`
//	Method  *string           `json:"method,omitempty"`
//	Headers map\[string\]string `json:"headers,omitempty"`
//
// See adapters package for built-ins complete field specifications.
type SourceConfigDTO struct {
	Type     string `json:"type"`
	Priority *int   `json:"priority,omitempty"` // Lower number = higher priority, defaults to array index
}
