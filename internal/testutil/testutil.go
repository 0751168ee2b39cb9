// Package testutil provides shared test helpers for building registries on
// temporary storage.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/landchain/internal/ledger"
	"github.com/starford/landchain/internal/registry"
	"github.com/starford/landchain/internal/storage"
)

// Clock is a deterministic time source that advances one second per call.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts a Clock at 2025-09-01 09:30 UTC.
func NewClock() *Clock {
	return &Clock{t: time.Date(2025, 9, 1, 9, 30, 0, 0, time.UTC)}
}

// Now returns the next tick.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// TestDB creates a temporary SQLite backend that is closed on cleanup.
func TestDB(t *testing.T) *storage.SQLite {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "landchain-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRegistry opens a registry over a temporary SQLite backend with a
// deterministic clock. Extra options are applied after the clock.
func TestRegistry(t *testing.T, opts ...registry.Option) *registry.Service {
	t.Helper()
	opts = append([]registry.Option{registry.WithClock(NewClock().Now)}, opts...)
	svc, err := registry.Open(context.Background(), TestDB(t), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

// Application returns a complete, valid application for the given owner.
func Application(name, nationalID string) registry.Application {
	return registry.Application{
		Owner: ledger.OwnerDetails{
			OwnerName:       name,
			OwnerNationalID: nationalID,
			OwnerPhone:      "+91-98765-43210",
			OwnerEmail:      "owner@example.com",
		},
		Property: ledger.PropertyDetails{
			PropertyAddress: "Villa 42, Tech City, Whitefield, Bangalore",
			District:        "Bangalore Urban",
			Province:        "Karnataka",
			LandSizeAcres:   0.25,
			LandType:        ledger.LandResidential,
		},
		PhotoRef: "3f2a9c1b0d4e5f60718293a4.jpg",
		Location: ledger.Coordinates{Latitude: 12.9716, Longitude: 77.5946},
	}
}
