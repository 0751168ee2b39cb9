package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/landchain/internal/photos"
	"github.com/starford/landchain/internal/registry"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced on writes and
// on the event stream; verification and read-only queries stay public.
// sseHandler, if non-nil, is mounted at GET /events.
// store, if non-nil, enables photo upload and photo reference checks.
func NewRouter(svc *registry.Service, store *photos.Store, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, store)

	r := chi.NewRouter()

	// Public lookups.
	r.Get("/verify", h.Verify)
	r.Get("/properties", h.ListProperties)
	r.Get("/properties/{regNo}", h.GetProperty)
	r.Get("/certificates", h.ListCertificates)
	r.Get("/certificates/{regNo}", h.GetCertificate)
	r.Get("/ledger/stats", h.Stats)
	r.Get("/ledger/integrity", h.Integrity)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))

		r.Post("/registrations", h.Register)

		r.Post("/drafts", h.CreateDraft)
		r.Get("/drafts/{id}", h.GetDraft)
		r.Delete("/drafts/{id}", h.DeleteDraft)
		r.Put("/drafts/{id}/{phase}", h.UpdateDraftPhase)
		r.Post("/drafts/{id}/submit", h.SubmitDraft)

		if store != nil {
			r.Post("/photos", NewPhotoHandler(store).Upload)
		}

		if sseHandler != nil {
			r.Get("/events", sseHandler.ServeHTTP)
		}
	})

	return r
}
