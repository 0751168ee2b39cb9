package api

import (
	"github.com/starford/landchain/internal/certificate"
	"github.com/starford/landchain/internal/ledger"
	"github.com/starford/landchain/internal/registry"
)

// RegisterRequest is the one-shot registration body.
type RegisterRequest = registry.Application

// RegistrationResponse is returned after a successful registration.
type RegistrationResponse = registry.Registration

// PendingRegistrationResponse is returned with 202 when the record was
// appended but its certificate could not be saved yet. Clients must not
// resubmit; the certificate is issued on the next load.
type PendingRegistrationResponse struct {
	Record ledger.PropertyRecord `json:"record" validate:"required"`
	Error  string                `json:"error" example:"record saved, certificate pending" validate:"required"`
}

// PhotoPhaseRequest is the body of PUT /drafts/{id}/photo.
type PhotoPhaseRequest struct {
	PhotoRef string `json:"photo_ref" example:"3f2a9c1b0d4e5f60718293a4.jpg" validate:"required"`
}

// RecordListResponse wraps property listings.
type RecordListResponse struct {
	Records []ledger.PropertyRecord `json:"records" validate:"required"`
	Total   int                     `json:"total" example:"2" validate:"required"`
}

// CertificateListResponse wraps certificate listings.
type CertificateListResponse struct {
	Certificates []certificate.Certificate `json:"certificates" validate:"required"`
	Total        int                       `json:"total" example:"2" validate:"required"`
}

// IntegrityResponse reports the outcome of a chain audit.
type IntegrityResponse struct {
	Valid  bool   `json:"valid"`
	Height int    `json:"height" example:"2"`
	Head   string `json:"head,omitempty" example:"a1b2c3d4e5f6"`
	Error  string `json:"error,omitempty"`
}

// PhotoUploadResponse is returned after a successful photo upload.
type PhotoUploadResponse struct {
	Ref string `json:"ref" example:"3f2a9c1b0d4e5f60718293a4.jpg" validate:"required"`
	URL string `json:"url" example:"/photos/3f2a9c1b0d4e5f60718293a4.jpg" validate:"required"`
}
