package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	financeapp "github.com/feeledger/backend/internal/application/finance"
	"github.com/feeledger/backend/internal/domain/finance"
)

var _ financeapp.ReportArchive = (*MemoryReportArchive)(nil)

// MemoryReportArchive keeps reports in process memory. It backs single-node
// deployments without object storage, and tests.
type MemoryReportArchive struct {
	mu      sync.RWMutex
	objects map[string][]byte
	BaseURL string
}

// NewMemoryReportArchive creates an empty archive
func NewMemoryReportArchive() *MemoryReportArchive {
	return &MemoryReportArchive{
		objects: make(map[string][]byte),
		BaseURL: "memory://reports",
	}
}

// Archive stores the encoded report
func (m *MemoryReportArchive) Archive(_ context.Context, report *finance.ReconciliationReport) (string, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	key := ReportKey("", report)
	m.mu.Lock()
	m.objects[key] = body
	m.mu.Unlock()
	return key, nil
}

// ReportURL returns a pseudo URL for a stored report
func (m *MemoryReportArchive) ReportURL(_ context.Context, location string) (string, time.Time, error) {
	m.mu.RLock()
	_, ok := m.objects[location]
	m.mu.RUnlock()
	if !ok {
		return "", time.Time{}, errors.New("report not found")
	}
	return m.BaseURL + "/" + location, time.Now().Add(15 * time.Minute), nil
}

// Get decodes a stored report
func (m *MemoryReportArchive) Get(location string) (*finance.ReconciliationReport, bool) {
	m.mu.RLock()
	body, ok := m.objects[location]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	var r finance.ReconciliationReport
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, false
	}
	return &r, true
}

// Len returns the number of stored reports
func (m *MemoryReportArchive) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
