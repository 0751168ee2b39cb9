package verify

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/landchain/internal/apperr"
	"github.com/starford/landchain/internal/ledger"
)

// sliceSource scans records in order, which is the reference behaviour the
// ledger's positional index must agree with.
type sliceSource []ledger.PropertyRecord

func (s sliceSource) Locate(regNo, nationalID string) (ledger.PropertyRecord, bool) {
	for _, r := range s {
		if (regNo != "" && strings.EqualFold(r.RegistrationNumber, regNo)) ||
			(nationalID != "" && r.OwnerNationalID == nationalID) {
			return r, true
		}
	}
	return ledger.PropertyRecord{}, false
}

func rec(regNo, nid string) ledger.PropertyRecord {
	return ledger.PropertyRecord{
		RegistrationNumber: regNo,
		OwnerDetails:       ledger.OwnerDetails{OwnerNationalID: nid},
	}
}

func TestVerifyEitherKeyMatches(t *testing.T) {
	idx := New(sliceSource{rec("REG2025001", "000000000000")})

	got, err := idx.Verify(Query{RegistrationNumber: "REG2025001", NationalID: "999999999999"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.RegistrationNumber != "REG2025001" {
		t.Errorf("got %s", got.RegistrationNumber)
	}

	got, err = idx.Verify(Query{RegistrationNumber: "REG2099999", NationalID: "000000000000"})
	if err != nil || got.RegistrationNumber != "REG2025001" {
		t.Errorf("national id alone should match: %v %v", got.RegistrationNumber, err)
	}
}

func TestVerifyCaseInsensitiveRegistration(t *testing.T) {
	idx := New(sliceSource{rec("REG2025001", "000000000000")})
	if _, err := idx.Verify(Query{RegistrationNumber: "  reg2025001 "}); err != nil {
		t.Errorf("lower-case query: %v", err)
	}
}

func TestVerifyNationalIDIsExact(t *testing.T) {
	idx := New(sliceSource{rec("REG2025001", "000000000000")})
	if _, err := idx.Verify(Query{NationalID: "00000000000"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("prefix national id: err = %v, want not found", err)
	}
}

func TestVerifyRequiresAKey(t *testing.T) {
	idx := New(sliceSource{rec("REG2025001", "000000000000")})
	for _, q := range []Query{{}, {RegistrationNumber: "  ", NationalID: "\t"}} {
		if _, err := idx.Verify(q); !errors.Is(err, apperr.ErrInvalidQuery) {
			t.Errorf("Verify(%+v) err = %v, want ErrInvalidQuery", q, err)
		}
	}
}

func TestVerifyReturnsFirstOnDuplicates(t *testing.T) {
	first := rec("REG2025001", "111111111111")
	first.ID = "LAND001"
	dup := rec("REG2025001", "111111111111")
	dup.ID = "LAND009"
	idx := New(sliceSource{first, dup})

	got, err := idx.Verify(Query{NationalID: "111111111111"})
	if err != nil || got.ID != "LAND001" {
		t.Errorf("got %s, %v; want LAND001", got.ID, err)
	}
}

func TestVerifyNotFound(t *testing.T) {
	idx := New(sliceSource{})
	if _, err := idx.Verify(Query{RegistrationNumber: "REG2025001"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
