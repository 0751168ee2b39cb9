// Package certificate issues and stores the certificates derived from
// ledger records.
package certificate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/landchain/internal/apperr"
	"github.com/starford/landchain/internal/ledger"
)

// Certificate is an issued snapshot of a ledger record. The embedded record
// is copied by value at issuance; its own CertificateID is shadowed by the
// certificate's.
type Certificate struct {
	ledger.PropertyRecord
	CertificateID string `json:"certificate_id"`
	IssueDate     string `json:"issue_date"`
}

// Snapshot is the persisted form of the certificate store.
type Snapshot struct {
	Sequence     uint64        `json:"sequence"`
	Certificates []Certificate `json:"certificates"`
}

// Store is the durable boundary for certificates.
type Store interface {
	LoadCertificates(ctx context.Context) (Snapshot, error)
	SaveCertificates(ctx context.Context, snap Snapshot) error
}

// Issuer derives certificates from records with lookup-or-create semantics
// keyed by registration number.
type Issuer struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger

	mu     sync.RWMutex
	certs  []Certificate
	byReg  map[string]int
	certID map[string]struct{}
	seq    uint64
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source used for the certificate year.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Issuer) { i.logger = logger }
}

// Open loads persisted certificates.
func Open(ctx context.Context, store Store, opts ...Option) (*Issuer, error) {
	i := &Issuer{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
		byReg:  make(map[string]int),
		certID: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}

	snap, err := store.LoadCertificates(ctx)
	if err != nil {
		return nil, fmt.Errorf("certificate: load: %w", err)
	}
	for _, c := range snap.Certificates {
		if _, dup := i.byReg[c.RegistrationNumber]; dup {
			i.logger.Warn("certificate: duplicate registration in snapshot", slog.String("registration_number", c.RegistrationNumber))
			continue
		}
		i.byReg[c.RegistrationNumber] = len(i.certs)
		i.certID[c.CertificateID] = struct{}{}
		i.certs = append(i.certs, c)
	}
	i.seq = max(snap.Sequence, uint64(len(i.certs)))
	return i, nil
}

// Issue returns the certificate for rec, creating and persisting it when
// none exists yet. created reports whether a new entry was stored.
func (i *Issuer) Issue(ctx context.Context, rec ledger.PropertyRecord) (cert Certificate, created bool, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if pos, ok := i.byReg[rec.RegistrationNumber]; ok {
		return i.certs[pos], false, nil
	}

	prevSeq := i.seq
	cert = i.deriveLocked(rec)
	i.addLocked(cert)

	if err := i.store.SaveCertificates(ctx, i.snapshotLocked()); err != nil {
		i.removeLastLocked(prevSeq)
		return Certificate{}, false, apperr.Persistence("save certificates", err)
	}
	i.logger.Debug("certificate: issued",
		slog.String("certificate_id", cert.CertificateID),
		slog.String("registration_number", rec.RegistrationNumber))
	return cert, true, nil
}

// Backfill issues certificates for every record that lacks one and
// persists them in a single write. It returns the number created.
func (i *Issuer) Backfill(ctx context.Context, records []ledger.PropertyRecord) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	prevSeq := i.seq
	prevLen := len(i.certs)
	for _, rec := range records {
		if _, ok := i.byReg[rec.RegistrationNumber]; ok {
			continue
		}
		i.addLocked(i.deriveLocked(rec))
	}
	created := len(i.certs) - prevLen
	if created == 0 {
		return 0, nil
	}
	if err := i.store.SaveCertificates(ctx, i.snapshotLocked()); err != nil {
		for len(i.certs) > prevLen {
			i.removeLastLocked(prevSeq)
		}
		return 0, apperr.Persistence("save certificates", err)
	}
	i.logger.Info("certificate: backfilled", slog.Int("count", created))
	return created, nil
}

// deriveLocked builds the certificate for rec, reusing a pre-assigned
// certificate id when it is still free.
func (i *Issuer) deriveLocked(rec ledger.PropertyRecord) Certificate {
	id := rec.CertificateID
	if id == "" || i.taken(id) {
		year := i.now().Year()
		for {
			i.seq++
			id = ledger.CertificateID(year, i.seq)
			if !i.taken(id) {
				break
			}
		}
	}
	return Certificate{
		PropertyRecord: rec,
		CertificateID:  id,
		IssueDate:      rec.RegistrationDate,
	}
}

func (i *Issuer) taken(id string) bool {
	_, ok := i.certID[id]
	return ok
}

func (i *Issuer) addLocked(c Certificate) {
	i.byReg[c.RegistrationNumber] = len(i.certs)
	i.certID[c.CertificateID] = struct{}{}
	i.certs = append(i.certs, c)
}

func (i *Issuer) removeLastLocked(seq uint64) {
	last := i.certs[len(i.certs)-1]
	delete(i.byReg, last.RegistrationNumber)
	delete(i.certID, last.CertificateID)
	i.certs = i.certs[:len(i.certs)-1]
	i.seq = seq
}

// Get returns the certificate for a registration number.
func (i *Issuer) Get(regNo string) (Certificate, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	pos, ok := i.byReg[regNo]
	if !ok {
		return Certificate{}, false
	}
	return i.certs[pos], true
}

// All returns every certificate in issuance order.
func (i *Issuer) All() []Certificate {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]Certificate, len(i.certs))
	copy(out, i.certs)
	return out
}

// Count returns the number of issued certificates.
func (i *Issuer) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.certs)
}

func (i *Issuer) snapshotLocked() Snapshot {
	out := make([]Certificate, len(i.certs))
	copy(out, i.certs)
	return Snapshot{Sequence: i.seq, Certificates: out}
}

// Flush writes the current state to the store.
func (i *Issuer) Flush(ctx context.Context) error {
	i.mu.RLock()
	snap := i.snapshotLocked()
	i.mu.RUnlock()
	if err := i.store.SaveCertificates(ctx, snap); err != nil {
		return apperr.Persistence("flush certificates", err)
	}
	return nil
}
