package registry

import (
	"strings"

	"github.com/starford/landchain/internal/ledger"
)

// Filter narrows a record listing.
type Filter struct {
	// Query is matched case-insensitively as a substring of the owner name,
	// registration number, address, district and province.
	Query    string
	LandType ledger.LandType
}

func (f Filter) match(r ledger.PropertyRecord) bool {
	if f.LandType != "" && r.LandType != f.LandType {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	for _, field := range []string{r.OwnerName, r.RegistrationNumber, r.PropertyAddress, r.District, r.Province} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// List returns the records matching f in chain order.
func (s *Service) List(f Filter) []ledger.PropertyRecord {
	all := s.ledger.All()
	out := make([]ledger.PropertyRecord, 0, len(all))
	for _, r := range all {
		if f.match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Stats summarises the registry for dashboards.
type Stats struct {
	TotalProperties     int                     `json:"total_properties"`
	VerifiedProperties  int                     `json:"verified_properties"`
	RecentRegistrations int                     `json:"recent_registrations"`
	TotalCertificates   int                     `json:"total_certificates"`
	ByLandType          map[ledger.LandType]int `json:"by_land_type"`
	ChainHead           string                  `json:"chain_head"`
}

// Stats computes registry statistics. Recent registrations are those dated
// in the current calendar month.
func (s *Service) Stats() Stats {
	all := s.ledger.All()
	month := s.now().UTC().Format("2006-01")
	st := Stats{
		TotalProperties:   len(all),
		TotalCertificates: s.issuer.Count(),
		ByLandType:        make(map[ledger.LandType]int, len(ledger.LandTypes)),
	}
	for _, lt := range ledger.LandTypes {
		st.ByLandType[lt] = 0
	}
	for _, r := range all {
		if r.Verified {
			st.VerifiedProperties++
		}
		if strings.HasPrefix(r.RegistrationDate, month) {
			st.RecentRegistrations++
		}
		st.ByLandType[r.LandType]++
	}
	if n := len(all); n > 0 {
		st.ChainHead = all[n-1].BlockHash
	}
	return st
}
