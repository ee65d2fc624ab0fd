// Package requests decodes the nodes definition file used to seed the filesystem.
package requests

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brettbedarf/memfs"
	"github.com/brettbedarf/memfs/adapters"
	"github.com/brettbedarf/memfs/internal/util"
)

// DefaultPerms applies when a request omits perms
const DefaultPerms uint32 = 0o644

// ErrUnsupportedType is returned for node types the flat namespace cannot hold
var ErrUnsupportedType = errors.New("unsupported node type")

// GetNodeType extracts the node type from JSON without full unmarshaling
func GetNodeType(data []byte) (memfs.NodeCreateRequestType, error) {
	var meta struct {
		Type memfs.NodeCreateRequestType `json:"type"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", err
	}
	return meta.Type, nil
}

// UnmarshalFileRequest handles file-specific unmarshaling with sources
func UnmarshalFileRequest(data []byte, registry *adapters.Registry) (*memfs.FileCreateRequest, error) {
	var dto FileRequestDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, err
	}
	if dto.Type != memfs.FileNodeType {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, dto.Type)
	}

	node, err := convertNodeDTO(dto.NodeRequestDTO)
	if err != nil {
		return nil, err
	}

	sources, err := unmarshalSources(dto.Sources, registry)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", dto.Path, err)
	}

	return &memfs.FileCreateRequest{
		NodeRequest: node,
		Sources:     sources,
	}, nil
}

// UnmarshalNodes decodes a JSON array of node requests
func UnmarshalNodes(data []byte, registry *adapters.Registry) ([]*memfs.FileCreateRequest, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("nodes definition must be a JSON array: %w", err)
	}

	reqs := make([]*memfs.FileCreateRequest, 0, len(raws))
	for i, raw := range raws {
		typ, err := GetNodeType(raw)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		if typ != memfs.FileNodeType {
			return nil, fmt.Errorf("node %d: %w: %q", i, ErrUnsupportedType, typ)
		}
		req, err := UnmarshalFileRequest(raw, registry)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// LoadNodesFile reads and decodes a nodes definition file
func LoadNodesFile(path string, registry *adapters.Registry) ([]*memfs.FileCreateRequest, error) {
	logger := util.GetLogger("Requests.LoadNodesFile")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	reqs, err := UnmarshalNodes(data, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to parse nodes file %s: %w", path, err)
	}
	logger.Debug().Str("path", path).Int("count", len(reqs)).Msg("Loaded nodes definition")
	return reqs, nil
}

// Helper function to process sources array
func unmarshalSources(raws []json.RawMessage, registry *adapters.Registry) ([]memfs.FileSource, error) {
	if len(raws) == 0 {
		return nil, fmt.Errorf("at least one source is required")
	}

	sources := make([]memfs.FileSource, 0, len(raws))
	for i, raw := range raws {
		var meta SourceConfigDTO
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}

		adapter, err := registry.NewAdapter(raw)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}

		sources = append(sources, memfs.FileSource{
			Type:     meta.Type,
			Adapter:  adapter,
			Priority: util.ValueOrDefault(meta.Priority, i),
		})
	}
	return sources, nil
}

// Conversion logic with defaults in the unmarshaling layer
func convertNodeDTO(dto NodeRequestDTO) (memfs.NodeRequest, error) {
	path := strings.TrimPrefix(dto.Path, "/")
	if path == "" {
		return memfs.NodeRequest{}, fmt.Errorf("node path is required")
	}

	now := time.Now()
	return memfs.NodeRequest{
		Path:  path,
		Type:  dto.Type,
		Perms: util.ValueOrDefault(dto.Perms, DefaultPerms),
		Atime: util.ValueOrDefault(dto.Atime, now),
		Mtime: util.ValueOrDefault(dto.Mtime, now),
	}, nil
}
