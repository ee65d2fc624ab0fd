package mocks

import (
	"context"
	"io"

	"github.com/brettbedarf/memfs"
	"github.com/stretchr/testify/mock"
)

// MockContentAdapter implements memfs.ContentAdapter for testing across packages
type MockContentAdapter struct {
	mock.Mock
}

func (m *MockContentAdapter) Open(ctx context.Context) (io.ReadCloser, error) {
	args := m.Called(ctx)

	// Handle function return types (for complex tests)
	if fn, ok := args.Get(0).(func(context.Context) io.ReadCloser); ok {
		return fn(ctx), args.Error(1)
	}

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

var _ memfs.ContentAdapter = (*MockContentAdapter)(nil)

// MockAdapterProvider implements memfs.AdapterProvider for testing across packages
type MockAdapterProvider struct {
	mock.Mock
}

func (m *MockAdapterProvider) NewAdapter(raw []byte) (memfs.ContentAdapter, error) {
	args := m.Called(raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(memfs.ContentAdapter), args.Error(1)
}

var _ memfs.AdapterProvider = (*MockAdapterProvider)(nil)
