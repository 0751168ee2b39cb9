package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/starford/landchain/internal/certificate"
	"github.com/starford/landchain/internal/ledger"
)

// Snapshot file names inside the File backend directory.
const (
	LedgerFile       = "ledger.json"
	CertificatesFile = "certificates.json"
)

// File stores each snapshot as a JSON document in a directory.
//
// A bare JSON array is accepted on load as a snapshot without a counter.
// For certificates any such array loads. For the ledger the array must hold
// records linked and hashed by this service (previous_hash, block_hash and
// created_at intact); anything else is rejected by the chain audit when the
// ledger opens.
type File struct {
	dir string

	mu sync.Mutex
}

// NewFile creates the directory if needed and returns a File backend.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("storage: file backend requires a path")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir: %w", err)
	}
	return &File{dir: abs}, nil
}

func (f *File) LoadLedger(context.Context) (ledger.Snapshot, error) {
	var snap ledger.Snapshot
	err := f.load(LedgerFile, &snap, &snap.Records)
	return snap, err
}

func (f *File) SaveLedger(ctx context.Context, snap ledger.Snapshot) error {
	return f.save(ctx, LedgerFile, snap)
}

func (f *File) LoadCertificates(context.Context) (certificate.Snapshot, error) {
	var snap certificate.Snapshot
	err := f.load(CertificatesFile, &snap, &snap.Certificates)
	return snap, err
}

func (f *File) SaveCertificates(ctx context.Context, snap certificate.Snapshot) error {
	return f.save(ctx, CertificatesFile, snap)
}

func (f *File) Close() error { return nil }

// load decodes name into snap, or into legacy when the file holds a bare
// array. A missing file yields an empty snapshot.
func (f *File) load(name string, snap, legacy any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("storage: read %s: %w", name, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	target := snap
	if data[0] == '[' {
		target = legacy
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("storage: decode %s: %w", name, err)
	}
	return nil
}

func (f *File) save(ctx context.Context, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", name, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeAtomic(filepath.Join(f.dir, name), data)
}

// writeAtomic writes content: tmp file → fsync → rename.
func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".landchain-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
