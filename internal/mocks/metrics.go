package mocks

import (
	"time"

	"github.com/brettbedarf/memfs/metrics"
	"github.com/stretchr/testify/mock"
)

// MockOpMetrics implements metrics.OpMetrics for testing across packages
type MockOpMetrics struct {
	mock.Mock
}

func (m *MockOpMetrics) RecordOp(op string, status string, duration time.Duration) {
	m.Called(op, status, duration)
}

func (m *MockOpMetrics) RecordBytes(direction string, n int) {
	m.Called(direction, n)
}

func (m *MockOpMetrics) SetCapacity(nodes int, freeInodes, freeBlocks uint64) {
	m.Called(nodes, freeInodes, freeBlocks)
}

var _ metrics.OpMetrics = (*MockOpMetrics)(nil)
