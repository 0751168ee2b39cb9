package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/landchain/internal/apperr"
	"github.com/starford/landchain/internal/certificate"
	"github.com/starford/landchain/internal/ledger"
)

func candidate(name, nid string) ledger.Candidate {
	return ledger.Candidate{
		OwnerDetails: ledger.OwnerDetails{
			OwnerName:       name,
			OwnerNationalID: nid,
			OwnerPhone:      "+91-98765-43210",
			OwnerEmail:      "owner@example.com",
		},
		PropertyDetails: ledger.PropertyDetails{
			PropertyAddress: "Villa 42, Tech City, Whitefield",
			District:        "Bangalore Urban",
			Province:        "Karnataka",
			LandSizeAcres:   0.25,
			LandType:        ledger.LandResidential,
		},
		Coordinates: ledger.Coordinates{Latitude: 12.9716, Longitude: 77.5946},
	}
}

// exerciseBackend appends through the real ledger and issuer, then reopens
// both from the same backend and checks that nothing was lost.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	l, err := ledger.Open(ctx, b)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	issuer, err := certificate.Open(ctx, b)
	if err != nil {
		t.Fatalf("certificate.Open: %v", err)
	}
	var regs []string
	for _, c := range []ledger.Candidate{
		candidate("Arjun Patel", "123456789012"),
		candidate("Priya Sharma", "987654321098"),
		candidate("Ravi Kumar", "111122223333"),
	} {
		rec, err := l.Append(ctx, c)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if _, _, err := issuer.Issue(ctx, rec); err != nil {
			t.Fatalf("Issue: %v", err)
		}
		regs = append(regs, rec.RegistrationNumber)
	}

	// Reopening runs the chain audit, so the timestamps and canonical
	// content survived the round trip.
	l2, err := ledger.Open(ctx, b)
	if err != nil {
		t.Fatalf("reopen ledger: %v", err)
	}
	if l2.Len() != 3 {
		t.Fatalf("reopened len = %d, want 3", l2.Len())
	}
	for _, reg := range regs {
		if _, ok := l2.FindByRegistrationNumber(reg); !ok {
			t.Errorf("%s missing after reopen", reg)
		}
	}
	issuer2, err := certificate.Open(ctx, b)
	if err != nil {
		t.Fatalf("reopen issuer: %v", err)
	}
	if issuer2.Count() != 3 {
		t.Errorf("reopened certificates = %d, want 3", issuer2.Count())
	}

	snap, err := b.LoadLedger(ctx)
	if err != nil {
		t.Fatalf("LoadLedger: %v", err)
	}
	if snap.Sequence != 3 {
		t.Errorf("persisted sequence = %d, want 3", snap.Sequence)
	}

	// A shorter snapshot replaces the longer one.
	short := ledger.Snapshot{Sequence: snap.Sequence, Records: snap.Records[:2]}
	if err := b.SaveLedger(ctx, short); err != nil {
		t.Fatalf("SaveLedger short: %v", err)
	}
	got, err := b.LoadLedger(ctx)
	if err != nil {
		t.Fatalf("LoadLedger: %v", err)
	}
	if len(got.Records) != 2 || got.Sequence != 3 {
		t.Errorf("after shrink: %d records seq %d, want 2 records seq 3", len(got.Records), got.Sequence)
	}
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemory())
}

func TestMemoryFailLeavesSnapshot(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.SaveLedger(ctx, ledger.Snapshot{Sequence: 1, Records: []ledger.PropertyRecord{{ID: "LAND001"}}}); err != nil {
		t.Fatal(err)
	}
	m.SetFail(errors.New("disk full"))
	if err := m.SaveLedger(ctx, ledger.Snapshot{Sequence: 2}); err == nil {
		t.Fatal("expected failure")
	}
	snap, _ := m.LoadLedger(ctx)
	if snap.Sequence != 1 || len(snap.Records) != 1 {
		t.Errorf("snapshot changed on failed save: %+v", snap)
	}
}

func TestFileBackend(t *testing.T) {
	f, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	exerciseBackend(t, f)
}

func TestFileMissingSnapshotIsEmpty(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "nested", "data"))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	snap, err := f.LoadLedger(context.Background())
	if err != nil {
		t.Fatalf("LoadLedger: %v", err)
	}
	if snap.Sequence != 0 || len(snap.Records) != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

func TestFileLegacyArray(t *testing.T) {
	dir := t.TempDir()
	legacy := []certificate.Certificate{
		{CertificateID: "CERT2025001", IssueDate: "2025-08-15"},
		{CertificateID: "CERT2025002", IssueDate: "2025-08-16"},
	}
	data, _ := json.Marshal(legacy)
	if err := os.WriteFile(filepath.Join(dir, CertificatesFile), data, 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := NewFile(dir)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := f.LoadCertificates(context.Background())
	if err != nil {
		t.Fatalf("LoadCertificates: %v", err)
	}
	if snap.Sequence != 0 {
		t.Errorf("legacy sequence = %d, want 0", snap.Sequence)
	}
	if len(snap.Certificates) != 2 || snap.Certificates[1].CertificateID != "CERT2025002" {
		t.Errorf("legacy certificates = %+v", snap.Certificates)
	}
}

func TestFileLedgerArrayWithoutCounter(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	l, err := ledger.Open(ctx, mem)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []ledger.Candidate{
		candidate("Arjun Patel", "123456789012"),
		candidate("Priya Sharma", "987654321098"),
	} {
		if _, err := l.Append(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	// Records written by this service load from a bare array and the
	// counter resumes from the record count.
	dir := t.TempDir()
	data, _ := json.Marshal(l.All())
	if err := os.WriteFile(filepath.Join(dir, LedgerFile), data, 0o644); err != nil {
		t.Fatal(err)
	}
	f, _ := NewFile(dir)
	reopened, err := ledger.Open(ctx, f)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	rec, err := reopened.Append(ctx, candidate("Ravi Kumar", "111122223333"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.RegistrationNumber[len(rec.RegistrationNumber)-3:] != "003" {
		t.Errorf("next registration = %s, want sequence 003", rec.RegistrationNumber)
	}

	// An array from elsewhere, without this chain's hashes, is refused.
	foreign := t.TempDir()
	raw := `[{"id":"LAND001","registration_number":"REG2025001","owner_name":"Arjun Patel","block_hash":"a1b2c3d4e5f6","previous_hash":"000000000000"}]`
	if err := os.WriteFile(filepath.Join(foreign, LedgerFile), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	ff, _ := NewFile(foreign)
	if _, err := ledger.Open(ctx, ff); !errors.Is(err, apperr.ErrChainBroken) {
		t.Errorf("foreign array err = %v, want ErrChainBroken", err)
	}
}

func TestFileCorruptSnapshotFails(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, LedgerFile), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, _ := NewFile(dir)
	if _, err := f.LoadLedger(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFileSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	f, _ := NewFile(dir)
	if err := f.SaveLedger(context.Background(), ledger.Snapshot{Sequence: 4}); err != nil {
		t.Fatalf("SaveLedger: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != LedgerFile {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("dir entries = %v, want only %s", names, LedgerFile)
	}
}

func TestFileSaveHonoursContext(t *testing.T) {
	f, _ := NewFile(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.SaveLedger(ctx, ledger.Snapshot{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Options{Driver: "tape"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
