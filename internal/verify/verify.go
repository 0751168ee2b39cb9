// Package verify answers verification queries over the ledger.
package verify

import (
	"strings"

	"github.com/starford/landchain/internal/apperr"
	"github.com/starford/landchain/internal/ledger"
)

// Source locates records by either lookup key.
type Source interface {
	// Locate returns the earliest record in ledger order that matches
	// regNo (case-insensitively) or nationalID (exactly). Empty keys are
	// ignored.
	Locate(regNo, nationalID string) (ledger.PropertyRecord, bool)
}

// Query holds the two alternative lookup keys.
type Query struct {
	RegistrationNumber string `json:"registration_number"`
	NationalID         string `json:"national_id"`
}

// Index is the verification front for a Source.
type Index struct {
	src Source
}

// New creates an Index over src.
func New(src Source) *Index {
	return &Index{src: src}
}

// Verify returns the record matching either key. The keys are alternatives:
// a record that matches only one of two supplied keys still verifies.
// It fails with apperr.ErrInvalidQuery when both keys are empty and with
// apperr.ErrNotFound when nothing matches.
func (x *Index) Verify(q Query) (ledger.PropertyRecord, error) {
	reg := strings.TrimSpace(q.RegistrationNumber)
	nid := strings.TrimSpace(q.NationalID)
	if reg == "" && nid == "" {
		return ledger.PropertyRecord{}, apperr.ErrInvalidQuery
	}
	rec, ok := x.src.Locate(reg, nid)
	if !ok {
		return ledger.PropertyRecord{}, apperr.ErrNotFound
	}
	return rec, nil
}
