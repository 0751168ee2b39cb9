// Package storage implements the persistence boundary for the ledger and
// the certificate store. Every backend writes a whole snapshot per call and
// reports failure without leaving a partial snapshot behind.
package storage

import (
	"context"
	"fmt"

	"github.com/starford/landchain/internal/certificate"
	"github.com/starford/landchain/internal/ledger"
)

// Drivers.
const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Backend persists ledger and certificate snapshots.
type Backend interface {
	ledger.Store
	certificate.Store
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver    string
	Path      string // sqlite file or snapshot directory
	RedisURL  string
	KeyPrefix string
}

// Open returns the backend selected by opts.Driver.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		return OpenSQLite(opts.Path)
	case DriverFile:
		return NewFile(opts.Path)
	case DriverRedis:
		return OpenRedis(ctx, opts.RedisURL, opts.KeyPrefix)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", opts.Driver)
	}
}

// Compile-time interface checks.
var (
	_ Backend = (*SQLite)(nil)
	_ Backend = (*File)(nil)
	_ Backend = (*Redis)(nil)
	_ Backend = (*Memory)(nil)
)
