package registry

import (
	"strings"

	"github.com/starford/landchain/internal/apperr"
	"github.com/starford/landchain/internal/ledger"
)

// Phase is one step of the registration workflow.
type Phase string

const (
	PhaseOwner    Phase = "owner"
	PhaseProperty Phase = "property"
	PhasePhoto    Phase = "photo"
	PhaseLocation Phase = "location"
)

// Phases lists the workflow phases in the order they must be completed.
var Phases = []Phase{PhaseOwner, PhaseProperty, PhasePhoto, PhaseLocation}

// ParsePhase maps a string to a Phase.
func ParsePhase(s string) (Phase, bool) {
	for _, p := range Phases {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// Application is the full set of fields collected by the workflow.
type Application struct {
	Owner    ledger.OwnerDetails    `json:"owner"`
	Property ledger.PropertyDetails `json:"property"`
	PhotoRef string                 `json:"photo_ref"`
	Location ledger.Coordinates     `json:"location"`
}

// ValidatePhoto enforces the blocking photo precondition. The ledger itself
// accepts records without a photo.
func ValidatePhoto(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return apperr.Field("owner_photo_ref", "owner photo is required")
	}
	return nil
}

// validatePhase checks the fields that belong to p.
func (a Application) validatePhase(p Phase) error {
	switch p {
	case PhaseOwner:
		return a.Owner.Normalize().Validate()
	case PhaseProperty:
		return a.Property.Normalize().Validate()
	case PhasePhoto:
		return ValidatePhoto(a.PhotoRef)
	case PhaseLocation:
		return a.Location.Validate()
	}
	return nil
}

// Validate checks every phase and batches all field errors.
func (a Application) Validate() error {
	errs := make([]error, 0, len(Phases))
	for _, p := range Phases {
		errs = append(errs, a.validatePhase(p))
	}
	return apperr.Merge(errs...)
}

// Candidate converts the application into ledger input.
func (a Application) Candidate() ledger.Candidate {
	return ledger.Candidate{
		OwnerDetails:    a.Owner,
		PropertyDetails: a.Property,
		Coordinates:     a.Location,
		OwnerPhotoRef:   a.PhotoRef,
	}
}
