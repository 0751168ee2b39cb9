package registry

import (
	"context"
	"log/slog"

	"github.com/starford/landchain/internal/ledger"
)

// sampleCandidates are appended on first start when seeding is enabled.
// They carry no owner photo.
var sampleCandidates = []ledger.Candidate{
	{
		OwnerDetails: ledger.OwnerDetails{
			OwnerName:       "Arjun Patel",
			OwnerNationalID: "123456789012",
			OwnerPhone:      "+91-98765-43210",
			OwnerEmail:      "arjun.patel@email.com",
		},
		PropertyDetails: ledger.PropertyDetails{
			PropertyAddress: "Villa 42, Tech City, Whitefield, Bangalore",
			District:        "Bangalore Urban",
			Province:        "Karnataka",
			LandSizeAcres:   0.25,
			LandType:        ledger.LandResidential,
		},
		Coordinates: ledger.Coordinates{Latitude: 12.9716, Longitude: 77.5946},
	},
	{
		OwnerDetails: ledger.OwnerDetails{
			OwnerName:       "Priya Sharma",
			OwnerNationalID: "987654321098",
			OwnerPhone:      "+91-87654-32109",
			OwnerEmail:      "priya.sharma@email.com",
		},
		PropertyDetails: ledger.PropertyDetails{
			PropertyAddress: "Farm House 45, Agricultural Zone, Mumbai Outskirts",
			District:        "Thane",
			Province:        "Maharashtra",
			LandSizeAcres:   5.0,
			LandType:        ledger.LandAgricultural,
		},
		Coordinates: ledger.Coordinates{Latitude: 19.2183, Longitude: 72.9781},
	},
}

// seedSamples appends the sample records directly to the ledger. Their
// certificates come from the backfill that follows in Open.
func (s *Service) seedSamples(ctx context.Context) error {
	for _, c := range sampleCandidates {
		rec, err := s.ledger.Append(ctx, c)
		if err != nil {
			return err
		}
		s.logger.Info("registry: seeded sample record", slog.String("registration_number", rec.RegistrationNumber))
	}
	return nil
}
