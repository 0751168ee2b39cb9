package ledger

import (
	"errors"
	"math"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/landchain/internal/apperr"
)

var (
	ownerNameRe = regexp.MustCompile(`^[a-zA-Z\s.]+$`)
	digitsRe    = regexp.MustCompile(`^[0-9]+$`)
	phoneRe     = regexp.MustCompile(`^\+?[\d\s\-()]{10,15}$`)
	emailRe     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// NationalIDLength is the exact number of ASCII digits in a national id.
const NationalIDLength = 12

var finite = validation.By(func(v any) error {
	f, _ := v.(float64)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.New("must be a finite number")
	}
	return nil
})

// Normalize trims surrounding whitespace from every text field.
func (o OwnerDetails) Normalize() OwnerDetails {
	o.OwnerName = strings.TrimSpace(o.OwnerName)
	o.OwnerNationalID = strings.TrimSpace(o.OwnerNationalID)
	o.OwnerPhone = strings.TrimSpace(o.OwnerPhone)
	o.OwnerEmail = strings.TrimSpace(o.OwnerEmail)
	return o
}

// Validate checks the owner identity fields, reporting every failing field.
func (o OwnerDetails) Validate() error {
	return apperr.FromValidation(validation.ValidateStruct(&o,
		validation.Field(&o.OwnerName,
			validation.Required.Error("owner name is required"),
			validation.RuneLength(2, 0).Error("name must be at least 2 characters"),
			validation.Match(ownerNameRe).Error("name can only contain letters, spaces, and periods")),
		validation.Field(&o.OwnerNationalID,
			validation.Required.Error("national id is required"),
			validation.Match(digitsRe).Error("national id must contain only digits"),
			validation.Length(NationalIDLength, NationalIDLength).Error("national id must be exactly 12 digits")),
		validation.Field(&o.OwnerPhone,
			validation.Required.Error("phone number is required"),
			validation.Match(phoneRe).Error("invalid phone number")),
		validation.Field(&o.OwnerEmail,
			validation.Required.Error("email is required"),
			validation.Match(emailRe).Error("invalid email address")),
	))
}

// Normalize trims surrounding whitespace from every text field.
func (p PropertyDetails) Normalize() PropertyDetails {
	p.PropertyAddress = strings.TrimSpace(p.PropertyAddress)
	p.District = strings.TrimSpace(p.District)
	p.Province = strings.TrimSpace(p.Province)
	p.LandType = LandType(strings.TrimSpace(string(p.LandType)))
	return p
}

// Validate checks the parcel fields, reporting every failing field.
func (p PropertyDetails) Validate() error {
	types := make([]any, len(LandTypes))
	for i, lt := range LandTypes {
		types[i] = lt
	}
	return apperr.FromValidation(validation.ValidateStruct(&p,
		validation.Field(&p.PropertyAddress,
			validation.Required.Error("property address is required"),
			validation.RuneLength(10, 0).Error("address must be at least 10 characters")),
		validation.Field(&p.District,
			validation.Required.Error("district is required"),
			validation.RuneLength(2, 0).Error("district must be at least 2 characters")),
		validation.Field(&p.Province,
			validation.Required.Error("province is required")),
		validation.Field(&p.LandSizeAcres,
			validation.Required.Error("land size must be greater than 0"),
			finite,
			validation.Min(0.0).Exclusive().Error("land size must be greater than 0"),
			validation.Max(MaxLandSizeAcres).Error("land size exceeds 10000 acres")),
		validation.Field(&p.LandType,
			validation.Required.Error("land type is required"),
			validation.In(types...).Error("unknown land type")),
	))
}

// Validate checks latitude ∈ [-90,90] and longitude ∈ [-180,180].
func (c Coordinates) Validate() error {
	return apperr.FromValidation(validation.ValidateStruct(&c,
		validation.Field(&c.Latitude,
			finite,
			validation.Min(-90.0).Error("latitude must be between -90 and 90 degrees"),
			validation.Max(90.0).Error("latitude must be between -90 and 90 degrees")),
		validation.Field(&c.Longitude,
			finite,
			validation.Min(-180.0).Error("longitude must be between -180 and 180 degrees"),
			validation.Max(180.0).Error("longitude must be between -180 and 180 degrees")),
	))
}

// Normalize trims every text field of the candidate.
func (c Candidate) Normalize() Candidate {
	c.OwnerDetails = c.OwnerDetails.Normalize()
	c.PropertyDetails = c.PropertyDetails.Normalize()
	c.OwnerPhotoRef = strings.TrimSpace(c.OwnerPhotoRef)
	return c
}

// Validate checks every field constraint and returns one batched
// *apperr.ValidationError covering all failing fields.
func (c Candidate) Validate() error {
	return apperr.Merge(
		c.OwnerDetails.Validate(),
		c.PropertyDetails.Validate(),
		c.Coordinates.Validate(),
	)
}
