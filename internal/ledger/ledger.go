package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/landchain/internal/apperr"
	"github.com/starford/landchain/internal/hashchain"
)

// Store is the durable boundary for the ledger. SaveLedger receives the
// whole collection on every append.
type Store interface {
	LoadLedger(ctx context.Context) (Snapshot, error)
	SaveLedger(ctx context.Context, snap Snapshot) error
}

// Ledger is the append-only record sequence. Appends are serialized by a
// single write lock that also covers identifier allocation and the durable
// write; readers see either the state before or after an append.
type Ledger struct {
	store  Store
	now    func() time.Time
	nonce  func() string
	logger *slog.Logger

	mu      sync.RWMutex
	records []PropertyRecord
	seq     uint64
	idx     *lookup
	ids     map[string]struct{}
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithNonce overrides the random component of transaction hashes.
func WithNonce(nonce func() string) Option {
	return func(l *Ledger) { l.nonce = nonce }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// Open loads the persisted snapshot and checks its chain before accepting
// appends. A snapshot that fails the integrity audit is rejected.
func Open(ctx context.Context, store Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:  store,
		now:    time.Now,
		nonce:  func() string { return uuid.NewString() },
		logger: slog.Default(),
		idx:    newLookup(),
		ids:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	snap, err := store.LoadLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: load: %w", err)
	}
	if err := checkChain(snap.Records); err != nil {
		return nil, err
	}

	l.records = slices.Clone(snap.Records)
	for i, r := range l.records {
		if _, dup := l.ids[r.ID]; dup {
			l.logger.Warn("ledger: duplicate record id in snapshot", slog.String("id", r.ID), slog.Int("position", i))
		}
		l.ids[r.ID] = struct{}{}
		l.idx.add(i, r)
	}
	// Snapshots written before the counter existed only carry the records.
	l.seq = max(snap.Sequence, uint64(len(l.records)))

	l.logger.Info("ledger: loaded", slog.Int("records", len(l.records)), slog.Uint64("sequence", l.seq))
	return l, nil
}

// Append validates c, links it to the current tail, assigns identifiers and
// hashes, and persists the result. On validation failure nothing changes.
// On persistence failure the in-memory append is rolled back and a
// *apperr.PersistenceError is returned.
func (l *Ledger) Append(ctx context.Context, c Candidate) (PropertyRecord, error) {
	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return PropertyRecord{}, err
	}
	if err := ctx.Err(); err != nil {
		return PropertyRecord{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	seq := l.seq + 1
	for l.taken(now.Year(), seq) {
		seq++
	}

	prev := hashchain.Genesis
	if n := len(l.records); n > 0 {
		prev = l.records[n-1].BlockHash
	}

	rec := PropertyRecord{
		ID:                 RecordID(seq),
		RegistrationNumber: RegistrationNumber(now.Year(), seq),
		OwnerDetails:       c.OwnerDetails,
		PropertyDetails:    c.PropertyDetails,
		Coordinates:        c.Coordinates,
		RegistrationDate:   now.Format(DateLayout),
		CreatedAt:          now,
		PreviousHash:       prev,
		OwnerPhotoRef:      c.OwnerPhotoRef,
		Verified:           true,
	}
	rec.BlockHash = hashchain.BlockHash(rec.Canonical(), now)
	rec.TransactionHash = hashchain.TransactionHash(now, l.nonce())

	pos := len(l.records)
	prevSeq := l.seq
	l.records = append(l.records, rec)
	l.idx.add(pos, rec)
	l.ids[rec.ID] = struct{}{}
	l.seq = seq

	if err := l.store.SaveLedger(ctx, l.snapshotLocked()); err != nil {
		l.records = l.records[:pos]
		l.idx.remove(pos, rec)
		delete(l.ids, rec.ID)
		l.seq = prevSeq
		l.logger.Error("ledger: append rolled back",
			slog.String("registration_number", rec.RegistrationNumber),
			slog.String("error", err.Error()))
		return PropertyRecord{}, apperr.Persistence("save ledger", err)
	}

	l.logger.Debug("ledger: appended",
		slog.String("registration_number", rec.RegistrationNumber),
		slog.String("block_hash", rec.BlockHash))
	return rec, nil
}

// taken reports whether the identifiers for seq collide with a loaded record.
func (l *Ledger) taken(year int, seq uint64) bool {
	if _, ok := l.ids[RecordID(seq)]; ok {
		return true
	}
	_, ok := l.idx.byRegistration[registrationKey(RegistrationNumber(year, seq))]
	return ok
}

// FindByRegistrationNumber matches case-insensitively.
func (l *Ledger) FindByRegistrationNumber(regNo string) (PropertyRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.idx.byRegistration[registrationKey(regNo)]
	if !ok {
		return PropertyRecord{}, false
	}
	return l.records[pos], true
}

// FindByNationalID returns the earliest record owned by nationalID.
func (l *Ledger) FindByNationalID(nationalID string) (PropertyRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.idx.byNationalID[nationalID]
	if !ok {
		return PropertyRecord{}, false
	}
	return l.records[pos], true
}

// Locate returns the earliest record matching either key. Empty keys are
// ignored.
func (l *Ledger) Locate(regNo, nationalID string) (PropertyRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	best := -1
	if regNo != "" {
		if pos, ok := l.idx.byRegistration[registrationKey(regNo)]; ok {
			best = pos
		}
	}
	if nationalID != "" {
		if pos, ok := l.idx.byNationalID[nationalID]; ok && (best < 0 || pos < best) {
			best = pos
		}
	}
	if best < 0 {
		return PropertyRecord{}, false
	}
	return l.records[best], true
}

// All returns a copy of the records in chain order.
func (l *Ledger) All() []PropertyRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.records)
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Snapshot returns the current persisted form.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() Snapshot {
	return Snapshot{Sequence: l.seq, Records: slices.Clone(l.records)}
}

// Flush writes the current state to the store.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.RLock()
	snap := l.snapshotLocked()
	l.mu.RUnlock()
	if err := l.store.SaveLedger(ctx, snap); err != nil {
		return apperr.Persistence("flush ledger", err)
	}
	return nil
}

// VerifyChain audits linkage and recomputes every block hash.
func (l *Ledger) VerifyChain() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return checkChain(l.records)
}

func checkChain(records []PropertyRecord) error {
	prev := hashchain.Genesis
	for i, r := range records {
		if r.PreviousHash != prev {
			return fmt.Errorf("%w: record %d (%s): previous hash %q, want %q",
				apperr.ErrChainBroken, i, r.RegistrationNumber, r.PreviousHash, prev)
		}
		if got := hashchain.BlockHash(r.Canonical(), r.CreatedAt); got != r.BlockHash {
			return fmt.Errorf("%w: record %d (%s): block hash %q does not match content (%q)",
				apperr.ErrChainBroken, i, r.RegistrationNumber, r.BlockHash, got)
		}
		prev = r.BlockHash
	}
	return nil
}
