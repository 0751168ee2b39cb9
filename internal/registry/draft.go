package registry

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/landchain/internal/apperr"
	"github.com/starford/landchain/internal/ledger"
)

// DraftTTL is how long an untouched draft is kept.
const DraftTTL = 24 * time.Hour

// Draft is an in-progress registration collected phase by phase.
type Draft struct {
	ID          string      `json:"id"`
	Application Application `json:"application"`
	Completed   []Phase     `json:"completed"`
	NextPhase   Phase       `json:"next_phase,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Ready reports whether every phase has been completed.
func (d Draft) Ready() bool {
	return d.NextPhase == "" && len(d.Completed) == len(Phases)
}

func (d *Draft) done(p Phase) bool {
	return slices.Contains(d.Completed, p)
}

func (d *Draft) refresh() {
	d.NextPhase = ""
	for _, p := range Phases {
		if !d.done(p) {
			d.NextPhase = p
			return
		}
	}
}

func (d Draft) clone() Draft {
	d.Completed = slices.Clone(d.Completed)
	return d
}

// draftBook is the in-memory store of open drafts.
type draftBook struct {
	now func() time.Time

	mu     sync.Mutex
	drafts map[string]*Draft
}

func newDraftBook(now func() time.Time) *draftBook {
	return &draftBook{now: now, drafts: make(map[string]*Draft)}
}

func (b *draftBook) create() Draft {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked()

	now := b.now()
	d := &Draft{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	d.refresh()
	b.drafts[d.ID] = d
	return d.clone()
}

func (b *draftBook) get(id string) (Draft, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.drafts[id]
	if !ok {
		return Draft{}, fmt.Errorf("draft %s: %w", id, apperr.ErrNotFound)
	}
	return d.clone(), nil
}

// take removes a draft so that only one caller can submit it.
func (b *draftBook) take(id string) (Draft, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.drafts[id]
	if !ok {
		return Draft{}, fmt.Errorf("draft %s: %w", id, apperr.ErrNotFound)
	}
	delete(b.drafts, id)
	return d.clone(), nil
}

// restore puts back a draft removed by take.
func (b *draftBook) restore(d Draft) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drafts[d.ID] = &d
}

func (b *draftBook) discard(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.drafts[id]; !ok {
		return fmt.Errorf("draft %s: %w", id, apperr.ErrNotFound)
	}
	delete(b.drafts, id)
	return nil
}

// update applies fill for phase p. Earlier phases must be complete; the
// phase's fields are validated as a batch before the draft is changed.
func (b *draftBook) update(id string, p Phase, fill func(*Application)) (Draft, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.drafts[id]
	if !ok {
		return Draft{}, fmt.Errorf("draft %s: %w", id, apperr.ErrNotFound)
	}
	for _, earlier := range Phases {
		if earlier == p {
			break
		}
		if !d.done(earlier) {
			return Draft{}, fmt.Errorf("%w: phase %s requires %s first", apperr.ErrIncomplete, p, earlier)
		}
	}

	app := d.Application
	fill(&app)
	if err := app.validatePhase(p); err != nil {
		return Draft{}, err
	}
	app.Owner = app.Owner.Normalize()
	app.Property = app.Property.Normalize()

	d.Application = app
	if !d.done(p) {
		d.Completed = append(d.Completed, p)
	}
	d.UpdatedAt = b.now()
	d.refresh()
	return d.clone(), nil
}

func (b *draftBook) pruneLocked() {
	cutoff := b.now().Add(-DraftTTL)
	for id, d := range b.drafts {
		if d.UpdatedAt.Before(cutoff) {
			delete(b.drafts, id)
		}
	}
}

// NewDraft opens a draft at the owner phase.
func (s *Service) NewDraft() Draft {
	return s.drafts.create()
}

// Draft returns an open draft.
func (s *Service) Draft(id string) (Draft, error) {
	return s.drafts.get(id)
}

// DiscardDraft drops an open draft.
func (s *Service) DiscardDraft(id string) error {
	return s.drafts.discard(id)
}

// SetOwner completes the owner identity phase.
func (s *Service) SetOwner(id string, owner ledger.OwnerDetails) (Draft, error) {
	return s.drafts.update(id, PhaseOwner, func(a *Application) { a.Owner = owner })
}

// SetProperty completes the property details phase.
func (s *Service) SetProperty(id string, property ledger.PropertyDetails) (Draft, error) {
	return s.drafts.update(id, PhaseProperty, func(a *Application) { a.Property = property })
}

// SetPhoto completes the owner photo phase. ref must be non-empty.
func (s *Service) SetPhoto(id, ref string) (Draft, error) {
	return s.drafts.update(id, PhasePhoto, func(a *Application) { a.PhotoRef = strings.TrimSpace(ref) })
}

// SetLocation completes the geolocation phase.
func (s *Service) SetLocation(id string, loc ledger.Coordinates) (Draft, error) {
	return s.drafts.update(id, PhaseLocation, func(a *Application) { a.Location = loc })
}
