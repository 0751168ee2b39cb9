// Package registry orchestrates property registration: it owns the ledger,
// the certificate issuer and the verification index, and drives the
// multi-phase workflow that ends in a single atomic append.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/landchain/internal/apperr"
	"github.com/starford/landchain/internal/certificate"
	"github.com/starford/landchain/internal/ledger"
	"github.com/starford/landchain/internal/metrics"
	"github.com/starford/landchain/internal/verify"
)

// Backend persists both the ledger and the certificate store.
type Backend interface {
	ledger.Store
	certificate.Store
}

// Publisher is notified after each successful registration.
type Publisher interface {
	PublishRegistration(regNo, certID string)
}

// Registration is the result of a successful registration.
type Registration struct {
	Record      ledger.PropertyRecord   `json:"record"`
	Certificate certificate.Certificate `json:"certificate"`
}

// Service is the registry. Create it with Open and release it with Close.
type Service struct {
	ledger  *ledger.Ledger
	issuer  *certificate.Issuer
	index   *verify.Index
	drafts  *draftBook
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
	pub     Publisher
	seed    bool
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source for the ledger, the issuer and drafts.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPublisher sets the registration event sink.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

// WithSeedSamples appends the sample records when the loaded ledger is empty.
func WithSeedSamples(enabled bool) Option {
	return func(s *Service) { s.seed = enabled }
}

// Open loads the ledger and certificates from backend, optionally seeds the
// sample records, and backfills certificates for any record without one.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Service, error) {
	s := &Service{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	l, err := ledger.Open(ctx, backend, ledger.WithClock(s.now), ledger.WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	issuer, err := certificate.Open(ctx, backend, certificate.WithClock(s.now), certificate.WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	s.ledger = l
	s.issuer = issuer
	s.index = verify.New(l)
	s.drafts = newDraftBook(s.now)

	if s.seed && l.Len() == 0 {
		if err := s.seedSamples(ctx); err != nil {
			return nil, fmt.Errorf("registry: seed: %w", err)
		}
	}
	if _, err := issuer.Backfill(ctx, l.All()); err != nil {
		return nil, fmt.Errorf("registry: backfill: %w", err)
	}
	s.metrics.SetSizes(l.Len(), issuer.Count())
	return s, nil
}

// Register validates every phase of app, appends the record and issues its
// certificate.
func (s *Service) Register(ctx context.Context, app Application) (Registration, error) {
	start := time.Now()
	reg, err := s.register(ctx, app)
	s.metrics.ObserveRegistration(classify(err), time.Since(start))
	return reg, err
}

func (s *Service) register(ctx context.Context, app Application) (Registration, error) {
	if err := app.Validate(); err != nil {
		return Registration{}, err
	}
	rec, err := s.ledger.Append(ctx, app.Candidate())
	if err != nil {
		return Registration{}, err
	}
	// Append and Issue lock separately, so under concurrent registrations
	// the REG and CERT sequence numbers are not guaranteed to pair up.
	cert, _, err := s.issuer.Issue(ctx, rec)
	if err != nil {
		// The record is durable; Open backfills its certificate next time.
		s.logger.Error("registry: certificate issuance failed",
			slog.String("registration_number", rec.RegistrationNumber),
			slog.String("error", err.Error()))
		return Registration{Record: rec}, fmt.Errorf("%w: %s: %w", apperr.ErrCertificatePending, rec.RegistrationNumber, err)
	}

	s.metrics.SetSizes(s.ledger.Len(), s.issuer.Count())
	s.logger.Info("registry: property registered",
		slog.String("registration_number", rec.RegistrationNumber),
		slog.String("certificate_id", cert.CertificateID),
		slog.String("block_hash", rec.BlockHash))
	if s.pub != nil {
		s.pub.PublishRegistration(rec.RegistrationNumber, cert.CertificateID)
	}
	return Registration{Record: rec, Certificate: cert}, nil
}

// SubmitDraft registers a draft whose phases are all complete and discards
// it on success.
func (s *Service) SubmitDraft(ctx context.Context, id string) (Registration, error) {
	d, err := s.drafts.take(id)
	if err != nil {
		return Registration{}, err
	}
	if !d.Ready() {
		s.drafts.restore(d)
		err := fmt.Errorf("%w: phase %s not completed", apperr.ErrIncomplete, d.NextPhase)
		s.metrics.ObserveRegistration(classify(err), 0)
		return Registration{}, err
	}
	reg, err := s.Register(ctx, d.Application)
	if err != nil && reg.Record.RegistrationNumber == "" {
		// Nothing was appended, so the draft can be corrected and resubmitted.
		s.drafts.restore(d)
	}
	return reg, err
}

// Verify looks up a record by registration number or national id.
func (s *Service) Verify(q verify.Query) (ledger.PropertyRecord, error) {
	rec, err := s.index.Verify(q)
	switch {
	case err == nil:
		s.metrics.ObserveVerification(metrics.VerifyFound)
	case errors.Is(err, apperr.ErrInvalidQuery):
		s.metrics.ObserveVerification(metrics.VerifyInvalid)
	default:
		s.metrics.ObserveVerification(metrics.VerifyNotFound)
	}
	return rec, err
}

// Record returns the record with the given registration number.
func (s *Service) Record(regNo string) (ledger.PropertyRecord, error) {
	rec, ok := s.ledger.FindByRegistrationNumber(regNo)
	if !ok {
		return ledger.PropertyRecord{}, fmt.Errorf("record %s: %w", regNo, apperr.ErrNotFound)
	}
	return rec, nil
}

// Records returns every record in chain order.
func (s *Service) Records() []ledger.PropertyRecord {
	return s.ledger.All()
}

// CertificateFor returns the certificate issued for a registration number.
func (s *Service) CertificateFor(regNo string) (certificate.Certificate, error) {
	if rec, ok := s.ledger.FindByRegistrationNumber(regNo); ok {
		regNo = rec.RegistrationNumber
	}
	cert, ok := s.issuer.Get(regNo)
	if !ok {
		return certificate.Certificate{}, fmt.Errorf("certificate for %s: %w", regNo, apperr.ErrNotFound)
	}
	return cert, nil
}

// Certificates returns every issued certificate.
func (s *Service) Certificates() []certificate.Certificate {
	return s.issuer.All()
}

// VerifyChain audits the whole ledger.
func (s *Service) VerifyChain() error {
	return s.ledger.VerifyChain()
}

// Close flushes the ledger and certificates to the backend.
func (s *Service) Close(ctx context.Context) error {
	return errors.Join(s.ledger.Flush(ctx), s.issuer.Flush(ctx))
}

func classify(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, apperr.ErrValidation):
		return metrics.ResultValidation
	case errors.Is(err, apperr.ErrIncomplete):
		return metrics.ResultIncomplete
	case errors.Is(err, apperr.ErrPersistence):
		return metrics.ResultPersistence
	default:
		return metrics.ResultError
	}
}
