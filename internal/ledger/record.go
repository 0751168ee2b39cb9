// Package ledger implements the append-only, hash-linked registry of
// property records.
package ledger

import (
	"encoding/json"
	"time"
)

// LandType classifies a registered parcel.
type LandType string

const (
	LandResidential  LandType = "Residential"
	LandCommercial   LandType = "Commercial"
	LandAgricultural LandType = "Agricultural"
	LandIndustrial   LandType = "Industrial"
)

// LandTypes lists every accepted land type.
var LandTypes = []LandType{LandResidential, LandCommercial, LandAgricultural, LandIndustrial}

// MaxLandSizeAcres is the sanity ceiling for a single parcel.
const MaxLandSizeAcres = 10000.0

// DateLayout is the format of RegistrationDate.
const DateLayout = "2006-01-02"

// OwnerDetails identifies the registering owner.
type OwnerDetails struct {
	OwnerName       string `json:"owner_name"`
	OwnerNationalID string `json:"owner_national_id"`
	OwnerPhone      string `json:"owner_phone"`
	OwnerEmail      string `json:"owner_email"`
}

// PropertyDetails describes the parcel.
type PropertyDetails struct {
	PropertyAddress string   `json:"property_address"`
	District        string   `json:"district"`
	Province        string   `json:"province"`
	LandSizeAcres   float64  `json:"land_size_acres"`
	LandType        LandType `json:"land_type"`
}

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Candidate holds the fields of a record that the caller supplies. The
// ledger assigns identifiers, dates and hashes.
type Candidate struct {
	OwnerDetails
	PropertyDetails
	Coordinates   Coordinates `json:"coordinates"`
	OwnerPhotoRef string      `json:"owner_photo_ref,omitempty"`
}

// PropertyRecord is an immutable ledger entry.
type PropertyRecord struct {
	ID                 string `json:"id"`
	RegistrationNumber string `json:"registration_number"`
	// CertificateID is only present on records carried over from snapshots
	// that pre-assigned a certificate; the issuer reuses it.
	CertificateID string `json:"certificate_id,omitempty"`
	OwnerDetails
	PropertyDetails
	Coordinates      Coordinates `json:"coordinates"`
	RegistrationDate string      `json:"registration_date"`
	CreatedAt        time.Time   `json:"created_at"`
	BlockHash        string      `json:"block_hash"`
	PreviousHash     string      `json:"previous_hash"`
	TransactionHash  string      `json:"transaction_hash"`
	OwnerPhotoRef    string      `json:"owner_photo_ref,omitempty"`
	Verified         bool        `json:"verified"`
}

// canonicalContent is the hashed view of a record: everything except the
// hashes, the verified flag and the carried-over certificate id.
type canonicalContent struct {
	ID                 string `json:"id"`
	RegistrationNumber string `json:"registration_number"`
	OwnerDetails
	PropertyDetails
	Coordinates      Coordinates `json:"coordinates"`
	RegistrationDate string      `json:"registration_date"`
	OwnerPhotoRef    string      `json:"owner_photo_ref,omitempty"`
}

// Canonical returns the deterministic serialization that BlockHash covers.
func (r PropertyRecord) Canonical() []byte {
	data, err := json.Marshal(canonicalContent{
		ID:                 r.ID,
		RegistrationNumber: r.RegistrationNumber,
		OwnerDetails:       r.OwnerDetails,
		PropertyDetails:    r.PropertyDetails,
		Coordinates:        r.Coordinates,
		RegistrationDate:   r.RegistrationDate,
		OwnerPhotoRef:      r.OwnerPhotoRef,
	})
	if err != nil {
		// Only plain strings and finite floats reach here; validation rejects NaN/Inf.
		panic("ledger: canonical encoding: " + err.Error())
	}
	return data
}

// Snapshot is the persisted form of a ledger. Sequence is the last issued
// record sequence number.
type Snapshot struct {
	Sequence uint64           `json:"sequence"`
	Records  []PropertyRecord `json:"records"`
}
