package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/starford/landchain/internal/certificate"
	"github.com/starford/landchain/internal/ledger"
)

// Memory keeps snapshots in process memory. Fail, when set, is returned by
// every save and leaves the stored snapshot untouched. FailCertificates only
// affects certificate saves.
type Memory struct {
	mu               sync.Mutex
	ledger           ledger.Snapshot
	certs            certificate.Snapshot
	Fail             error
	FailCertificates error
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory { return &Memory{} }

// SetFail makes subsequent saves fail with err (nil clears it).
func (m *Memory) SetFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fail = err
}

// SetFailCertificates makes subsequent certificate saves fail with err
// while ledger saves keep succeeding (nil clears it).
func (m *Memory) SetFailCertificates(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailCertificates = err
}

func (m *Memory) LoadLedger(context.Context) (ledger.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ledger.Snapshot{Sequence: m.ledger.Sequence, Records: slices.Clone(m.ledger.Records)}, nil
}

func (m *Memory) SaveLedger(_ context.Context, snap ledger.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.ledger = ledger.Snapshot{Sequence: snap.Sequence, Records: slices.Clone(snap.Records)}
	return nil
}

func (m *Memory) LoadCertificates(context.Context) (certificate.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return certificate.Snapshot{Sequence: m.certs.Sequence, Certificates: slices.Clone(m.certs.Certificates)}, nil
}

func (m *Memory) SaveCertificates(_ context.Context, snap certificate.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	if m.FailCertificates != nil {
		return m.FailCertificates
	}
	m.certs = certificate.Snapshot{Sequence: snap.Sequence, Certificates: slices.Clone(snap.Certificates)}
	return nil
}

func (m *Memory) Close() error { return nil }
