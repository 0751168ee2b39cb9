// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes LandChain registry tools for LLM integration via stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/landchain/internal/apperr"
	"github.com/starford/landchain/internal/ledger"
	"github.com/starford/landchain/internal/photos"
	"github.com/starford/landchain/internal/registry"
	"github.com/starford/landchain/internal/verify"
)

const formatURI = "landchain://registration-format"

// Server wraps the MCP server with registry tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *registry.Service
	photos *photos.Store
}

// New creates a new MCP server with all registry tools registered. store
// may be nil, which disables upload_owner_photo.
func New(svc *registry.Service, store *photos.Store) *Server {
	s := &Server{svc: svc, photos: store}

	s.mcp = server.NewMCPServer(
		"LandChain",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	landTypes := make([]string, len(ledger.LandTypes))
	for i, lt := range ledger.LandTypes {
		landTypes[i] = string(lt)
	}

	s.mcp.AddTool(mcp.NewTool("register_property",
		mcp.WithDescription("Register a property and issue its certificate. "+
			"All fields are validated together; read the registration format first via "+
			"get_registration_format or the "+formatURI+" resource."),
		mcp.WithString("owner_name", mcp.Required(), mcp.Description("Owner full name")),
		mcp.WithString("owner_national_id", mcp.Required(), mcp.Description("12-digit national id")),
		mcp.WithString("owner_phone", mcp.Required(), mcp.Description("Owner phone number")),
		mcp.WithString("owner_email", mcp.Required(), mcp.Description("Owner email address")),
		mcp.WithString("property_address", mcp.Required(), mcp.Description("Street address of the parcel")),
		mcp.WithString("district", mcp.Required(), mcp.Description("District")),
		mcp.WithString("province", mcp.Required(), mcp.Description("Province or state")),
		mcp.WithNumber("land_size_acres", mcp.Required(), mcp.Description("Parcel size in acres")),
		mcp.WithString("land_type", mcp.Required(), mcp.Enum(landTypes...), mcp.Description("Land use category")),
		mcp.WithString("owner_photo_ref", mcp.Required(), mcp.Description("Reference returned by upload_owner_photo")),
		mcp.WithNumber("latitude", mcp.Required(), mcp.Description("Latitude in decimal degrees")),
		mcp.WithNumber("longitude", mcp.Required(), mcp.Description("Longitude in decimal degrees")),
	), s.registerProperty)

	s.mcp.AddTool(mcp.NewTool("verify_property",
		mcp.WithDescription("Look up a registered property by registration number or owner national id. "+
			"At least one is required; either matching is enough."),
		mcp.WithString("registration_number", mcp.Description("Registration number, e.g. REG2025001 (case-insensitive)")),
		mcp.WithString("national_id", mcp.Description("Owner national id (exact)")),
	), s.verifyProperty)

	s.mcp.AddTool(mcp.NewTool("get_certificate",
		mcp.WithDescription("Return the ownership certificate for a registration number."),
		mcp.WithString("registration_number", mcp.Required(), mcp.Description("Registration number")),
	), s.getCertificate)

	s.mcp.AddTool(mcp.NewTool("list_properties",
		mcp.WithDescription("List registered properties in ledger order, optionally filtered."),
		mcp.WithString("query", mcp.Description("Case-insensitive text matched against owner, registration number, address, district and province")),
		mcp.WithString("land_type", mcp.Enum(landTypes...), mcp.Description("Exact land type")),
	), s.listProperties)

	s.mcp.AddTool(mcp.NewTool("ledger_stats",
		mcp.WithDescription("Registry statistics: totals, registrations this month, counts per land type."),
	), s.ledgerStats)

	s.mcp.AddTool(mcp.NewTool("verify_chain",
		mcp.WithDescription("Audit the ledger: genesis, hash linkage and recomputed block hashes."),
	), s.verifyChain)

	s.mcp.AddTool(mcp.NewTool("get_registration_format",
		mcp.WithDescription("Returns the registration field rules. Call this before register_property."),
	), s.getRegistrationFormat)

	s.mcp.AddTool(mcp.NewTool("upload_owner_photo",
		mcp.WithDescription("Store an owner photo and return the reference to pass as owner_photo_ref."),
		mcp.WithString("url", mcp.Required(), mcp.Description("A base64 data URI or an http(s) URL of a JPEG, PNG, GIF or WebP image")),
	), s.uploadOwnerPhoto)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Registration Format",
			mcp.WithResourceDescription("Field rules for property registration."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRegistrationFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// errorResult renders a domain error for the model. Validation errors list
// every failing field on its own line.
func errorResult(err error) *mcp.CallToolResult {
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		return mcp.NewToolResultError(err.Error())
	}
	keys := make([]string, 0, len(ve.Fields))
	for k := range ve.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("validation failed:")
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s: %s", k, ve.Fields[k])
	}
	return mcp.NewToolResultError(b.String())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) registerProperty(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var missing []string
	str := func(key string) string {
		v, err := req.RequireString(key)
		if err != nil {
			missing = append(missing, key)
		}
		return v
	}
	num := func(key string) float64 {
		v, err := req.RequireFloat(key)
		if err != nil {
			missing = append(missing, key)
		}
		return v
	}

	app := registry.Application{
		Owner: ledger.OwnerDetails{
			OwnerName:       str("owner_name"),
			OwnerNationalID: str("owner_national_id"),
			OwnerPhone:      str("owner_phone"),
			OwnerEmail:      str("owner_email"),
		},
		Property: ledger.PropertyDetails{
			PropertyAddress: str("property_address"),
			District:        str("district"),
			Province:        str("province"),
			LandSizeAcres:   num("land_size_acres"),
			LandType:        ledger.LandType(str("land_type")),
		},
		PhotoRef: str("owner_photo_ref"),
		Location: ledger.Coordinates{
			Latitude:  num("latitude"),
			Longitude: num("longitude"),
		},
	}
	if len(missing) > 0 {
		return mcp.NewToolResultError("missing required arguments: " + strings.Join(missing, ", ")), nil
	}
	if s.photos != nil && !s.photos.Exists(strings.TrimSpace(app.PhotoRef)) {
		return errorResult(apperr.Field("owner_photo_ref", "unknown photo reference")), nil
	}

	reg, err := s.svc.Register(ctx, app)
	if errors.Is(err, apperr.ErrCertificatePending) && reg.Record.RegistrationNumber != "" {
		return jsonResult(pendingResult{
			Record:  reg.Record,
			Status:  "certificate_pending",
			Message: fmt.Sprintf("%s is recorded on the ledger; its certificate will be issued on the next load. Do not register it again.", reg.Record.RegistrationNumber),
		}), nil
	}
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(reg), nil
}

// pendingResult reports a durable record whose certificate was not saved.
type pendingResult struct {
	Record  ledger.PropertyRecord `json:"record"`
	Status  string                `json:"status"`
	Message string                `json:"message"`
}

func (s *Server) verifyProperty(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rec, err := s.svc.Verify(verify.Query{
		RegistrationNumber: req.GetString("registration_number", ""),
		NationalID:         req.GetString("national_id", ""),
	})
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultText("no matching property record"), nil
	}
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) getCertificate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	regNo, err := req.RequireString("registration_number")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cert, err := s.svc.CertificateFor(regNo)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no certificate for %s", regNo)), nil
	}
	return jsonResult(cert), nil
}

func (s *Server) listProperties(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recs := s.svc.List(registry.Filter{
		Query:    req.GetString("query", ""),
		LandType: ledger.LandType(req.GetString("land_type", "")),
	})
	if len(recs) == 0 {
		return mcp.NewToolResultText("no properties found"), nil
	}
	lines := make([]string, len(recs))
	for i, r := range recs {
		lines[i] = fmt.Sprintf("%s\t%s\t%s, %s\t%s\t%g acres",
			r.RegistrationNumber, r.OwnerName, r.District, r.Province, r.LandType, r.LandSizeAcres)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) ledgerStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Stats()), nil
}

func (s *Server) verifyChain(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.svc.VerifyChain(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st := s.svc.Stats()
	return mcp.NewToolResultText(fmt.Sprintf("chain intact: %d records, head %s", st.TotalProperties, st.ChainHead)), nil
}

func (s *Server) getRegistrationFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RegistrationFormat), nil
}

func (s *Server) readRegistrationFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     RegistrationFormat,
		},
	}, nil
}
