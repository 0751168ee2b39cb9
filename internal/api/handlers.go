package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/landchain/internal/apperr"
	"github.com/starford/landchain/internal/ledger"
	"github.com/starford/landchain/internal/photos"
	"github.com/starford/landchain/internal/registry"
	"github.com/starford/landchain/internal/verify"
)

// Handler holds API route handlers.
type Handler struct {
	svc    *registry.Service
	photos *photos.Store
}

// NewHandler creates a new Handler. photos may be nil, in which case photo
// references are not checked against the blob store.
func NewHandler(svc *registry.Service, store *photos.Store) *Handler {
	return &Handler{svc: svc, photos: store}
}

// Register handles POST /api/registrations.
//
//	@Summary		Register a property in one request
//	@Tags			registrations
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RegisterRequest	true	"All four phases"
//	@Success		201		{object}	RegistrationResponse
//	@Success		202		{object}	PendingRegistrationResponse
//	@Failure		422		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/registrations [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.checkPhoto(req.PhotoRef); err != nil {
		writeError(w, "register", err)
		return
	}
	reg, err := h.svc.Register(r.Context(), req)
	writeRegistration(w, "register", reg, err)
}

// writeRegistration answers 201 on success and 202 when the record is
// durable but its certificate is still pending.
func writeRegistration(w http.ResponseWriter, op string, reg registry.Registration, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, reg)
	case errors.Is(err, apperr.ErrCertificatePending) && reg.Record.RegistrationNumber != "":
		writeJSON(w, http.StatusAccepted, PendingRegistrationResponse{
			Record: reg.Record,
			Error:  apperr.ErrCertificatePending.Error(),
		})
	default:
		writeError(w, op, err)
	}
}

// checkPhoto rejects references the blob store does not hold. Empty refs
// are left to the workflow's own photo check.
func (h *Handler) checkPhoto(ref string) error {
	ref = strings.TrimSpace(ref)
	if h.photos == nil || ref == "" || h.photos.Exists(ref) {
		return nil
	}
	return apperr.Field("owner_photo_ref", "unknown photo reference")
}

// CreateDraft handles POST /api/drafts.
func (h *Handler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, h.svc.NewDraft())
}

// GetDraft handles GET /api/drafts/{id}.
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Draft(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get draft", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DeleteDraft handles DELETE /api/drafts/{id}.
func (h *Handler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DiscardDraft(chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete draft", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateDraftPhase handles PUT /api/drafts/{id}/{phase}. The body is the
// phase's own fields: owner details, property details, {"photo_ref"} or
// coordinates.
//
//	@Summary		Complete one phase of a draft
//	@Tags			drafts
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string	true	"Draft id"
//	@Param			phase	path		string	true	"Phase"	Enums(owner, property, photo, location)
//	@Success		200		{object}	registry.Draft
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/drafts/{id}/{phase} [put]
func (h *Handler) UpdateDraftPhase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	phase, ok := registry.ParsePhase(chi.URLParam(r, "phase"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("unknown phase"))
		return
	}

	var (
		d   registry.Draft
		err error
	)
	switch phase {
	case registry.PhaseOwner:
		var body ledger.OwnerDetails
		if !decodeBody(w, r, &body) {
			return
		}
		d, err = h.svc.SetOwner(id, body)
	case registry.PhaseProperty:
		var body ledger.PropertyDetails
		if !decodeBody(w, r, &body) {
			return
		}
		d, err = h.svc.SetProperty(id, body)
	case registry.PhasePhoto:
		var body PhotoPhaseRequest
		if !decodeBody(w, r, &body) {
			return
		}
		if err = h.checkPhoto(body.PhotoRef); err == nil {
			d, err = h.svc.SetPhoto(id, body.PhotoRef)
		}
	case registry.PhaseLocation:
		var body ledger.Coordinates
		if !decodeBody(w, r, &body) {
			return
		}
		d, err = h.svc.SetLocation(id, body)
	}
	if err != nil {
		writeError(w, "update draft", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// SubmitDraft handles POST /api/drafts/{id}/submit.
func (h *Handler) SubmitDraft(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.SubmitDraft(r.Context(), chi.URLParam(r, "id"))
	writeRegistration(w, "submit draft", reg, err)
}

// Verify handles GET /api/verify?registration_number=&national_id=.
//
//	@Summary		Verify a property by registration number or national id
//	@Tags			verification
//	@Produce		json
//	@Param			registration_number	query		string	false	"Registration number (case-insensitive)"
//	@Param			national_id			query		string	false	"Owner national id"
//	@Success		200					{object}	ledger.PropertyRecord
//	@Failure		400					{object}	errResponse
//	@Failure		404					{object}	errResponse
//	@Router			/verify [get]
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rec, err := h.svc.Verify(verify.Query{
		RegistrationNumber: q.Get("registration_number"),
		NationalID:         q.Get("national_id"),
	})
	if err != nil {
		writeError(w, "verify", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListProperties handles GET /api/properties?q=&land_type=.
func (h *Handler) ListProperties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := registry.Filter{Query: q.Get("q")}
	if lt := q.Get("land_type"); lt != "" {
		f.LandType = ledger.LandType(lt)
		if !knownLandType(f.LandType) {
			writeJSON(w, http.StatusBadRequest, errorBody("unknown land_type"))
			return
		}
	}
	recs := h.svc.List(f)
	writeJSON(w, http.StatusOK, RecordListResponse{Records: recs, Total: len(recs)})
}

func knownLandType(lt ledger.LandType) bool {
	for _, t := range ledger.LandTypes {
		if t == lt {
			return true
		}
	}
	return false
}

// GetProperty handles GET /api/properties/{regNo}.
func (h *Handler) GetProperty(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Record(chi.URLParam(r, "regNo"))
	if err != nil {
		writeError(w, "get property", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListCertificates handles GET /api/certificates.
func (h *Handler) ListCertificates(w http.ResponseWriter, r *http.Request) {
	certs := h.svc.Certificates()
	writeJSON(w, http.StatusOK, CertificateListResponse{Certificates: certs, Total: len(certs)})
}

// GetCertificate handles GET /api/certificates/{regNo}.
func (h *Handler) GetCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := h.svc.CertificateFor(chi.URLParam(r, "regNo"))
	if err != nil {
		writeError(w, "get certificate", err)
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

// Stats handles GET /api/ledger/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}

// Integrity handles GET /api/ledger/integrity. A broken chain is reported
// with 409 so monitors can alert on the status code alone.
func (h *Handler) Integrity(w http.ResponseWriter, r *http.Request) {
	st := h.svc.Stats()
	resp := IntegrityResponse{Valid: true, Height: st.TotalProperties, Head: st.ChainHead}
	if err := h.svc.VerifyChain(); err != nil {
		if !errors.Is(err, apperr.ErrChainBroken) {
			writeError(w, "verify chain", err)
			return
		}
		resp.Valid = false
		resp.Error = err.Error()
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
