package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/landchain/internal/photos"
	"github.com/starford/landchain/internal/registry"
	"github.com/starford/landchain/internal/storage"
	"github.com/starford/landchain/internal/testutil"
)

// testEnv builds a registry on temporary SQLite and a router over it.
// An empty authToken means auth is disabled.
func testEnv(t *testing.T, authToken string) (*registry.Service, http.Handler) {
	t.Helper()
	svc := testutil.TestRegistry(t)
	return svc, NewRouter(svc, nil, authToken != "", authToken, nil)
}

func testEnvWithPhotos(t *testing.T) (*registry.Service, *photos.Store, http.Handler) {
	t.Helper()
	svc := testutil.TestRegistry(t)
	store, err := photos.New(t.TempDir(), 1<<10)
	if err != nil {
		t.Fatal(err)
	}
	return svc, store, NewRouter(svc, store, false, "", nil)
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegisterCertificatePendingReturnsRecord(t *testing.T) {
	backend := storage.NewMemory()
	svc, err := registry.Open(context.Background(), backend, registry.WithClock(testutil.NewClock().Now))
	if err != nil {
		t.Fatal(err)
	}
	router := NewRouter(svc, nil, false, "", nil)

	backend.SetFailCertificates(errors.New("disk full"))
	w := do(t, router, http.MethodPost, "/registrations", testutil.Application("Arjun Patel", "123456789012"))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body = %s", w.Code, w.Body.String())
	}
	var pending PendingRegistrationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &pending); err != nil {
		t.Fatal(err)
	}
	if pending.Record.RegistrationNumber != "REG2025001" {
		t.Errorf("record = %q, want REG2025001", pending.Record.RegistrationNumber)
	}
	if pending.Error == "" || bytes.Contains(w.Body.Bytes(), []byte("nothing was recorded")) {
		t.Errorf("error = %q", pending.Error)
	}

	// The record is visible even though its certificate is not.
	if w := do(t, router, http.MethodGet, "/verify?registration_number=REG2025001", nil); w.Code != http.StatusOK {
		t.Errorf("verify status = %d", w.Code)
	}

	// A failure before the append still reports that nothing was recorded.
	backend.SetFail(errors.New("disk full"))
	w = do(t, router, http.MethodPost, "/registrations", testutil.Application("Priya Sharma", "987654321098"))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("nothing was recorded")) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestRegisterAndVerify(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/registrations", testutil.Application("Arjun Patel", "123456789012"))
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", w.Code, w.Body.String())
	}
	var reg RegistrationResponse
	_ = json.Unmarshal(w.Body.Bytes(), &reg)
	if reg.Record.RegistrationNumber != "REG2025001" || reg.Certificate.CertificateID != "CERT2025001" {
		t.Fatalf("registration = %s / %s", reg.Record.RegistrationNumber, reg.Certificate.CertificateID)
	}

	w = do(t, router, http.MethodGet, "/verify?registration_number=reg2025001", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify status = %d", w.Code)
	}
	var rec map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &rec)
	if rec["owner_name"] != "Arjun Patel" || rec["block_hash"] != reg.Record.BlockHash {
		t.Errorf("verified record = %v", rec)
	}

	w = do(t, router, http.MethodGet, "/verify?national_id=123456789012", nil)
	if w.Code != http.StatusOK {
		t.Errorf("verify by national id = %d", w.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	_, router := testEnv(t, "")
	bad := testutil.Application("A", "12345")
	bad.Location.Longitude = 200

	tests := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{"validation", http.MethodPost, "/registrations", bad, http.StatusUnprocessableEntity},
		{"invalid json", http.MethodPost, "/registrations", "not an object", http.StatusBadRequest},
		{"empty verify query", http.MethodGet, "/verify", nil, http.StatusBadRequest},
		{"verify miss", http.MethodGet, "/verify?national_id=000000000000", nil, http.StatusNotFound},
		{"unknown property", http.MethodGet, "/properties/REG2025009", nil, http.StatusNotFound},
		{"unknown certificate", http.MethodGet, "/certificates/REG2025009", nil, http.StatusNotFound},
		{"unknown land type", http.MethodGet, "/properties?land_type=Lunar", nil, http.StatusBadRequest},
		{"unknown draft", http.MethodGet, "/drafts/nope", nil, http.StatusNotFound},
		{"unknown phase", http.MethodPut, "/drafts/nope/payment", map[string]string{}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.method, tt.target, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestValidationResponseListsFields(t *testing.T) {
	_, router := testEnv(t, "")
	bad := testutil.Application("A", "12345")
	bad.PhotoRef = ""

	w := do(t, router, http.MethodPost, "/registrations", bad)
	var resp errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	for _, f := range []string{"owner_name", "owner_national_id", "owner_photo_ref"} {
		if _, ok := resp.Fields[f]; !ok {
			t.Errorf("missing field %s in %v", f, resp.Fields)
		}
	}
}

func TestDraftWorkflow(t *testing.T) {
	svc, router := testEnv(t, "")
	app := testutil.Application("Priya Sharma", "987654321098")

	w := do(t, router, http.MethodPost, "/drafts", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create draft = %d", w.Code)
	}
	var d registry.Draft
	_ = json.Unmarshal(w.Body.Bytes(), &d)

	w = do(t, router, http.MethodPut, "/drafts/"+d.ID+"/property", app.Property)
	if w.Code != http.StatusConflict {
		t.Errorf("out-of-order phase = %d, want 409", w.Code)
	}

	w = do(t, router, http.MethodPost, "/drafts/"+d.ID+"/submit", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("early submit = %d, want 409", w.Code)
	}

	phases := []struct {
		phase string
		body  any
	}{
		{"owner", app.Owner},
		{"property", app.Property},
		{"photo", PhotoPhaseRequest{PhotoRef: app.PhotoRef}},
		{"location", app.Location},
	}
	for _, p := range phases {
		w = do(t, router, http.MethodPut, "/drafts/"+d.ID+"/"+p.phase, p.body)
		if w.Code != http.StatusOK {
			t.Fatalf("phase %s = %d, body = %s", p.phase, w.Code, w.Body.String())
		}
	}

	w = do(t, router, http.MethodPost, "/drafts/"+d.ID+"/submit", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit = %d, body = %s", w.Code, w.Body.String())
	}
	if len(svc.Records()) != 1 {
		t.Errorf("records = %d, want 1", len(svc.Records()))
	}

	w = do(t, router, http.MethodGet, "/drafts/"+d.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("submitted draft = %d, want 404", w.Code)
	}
}

func TestDeleteDraft(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/drafts", nil)
	var d registry.Draft
	_ = json.Unmarshal(w.Body.Bytes(), &d)

	if w := do(t, router, http.MethodDelete, "/drafts/"+d.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/drafts/"+d.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestListingsAndStats(t *testing.T) {
	svc, router := testEnv(t, "")
	ctx := context.Background()
	for _, o := range [][2]string{{"Arjun Patel", "123456789012"}, {"Priya Sharma", "987654321098"}} {
		if _, err := svc.Register(ctx, testutil.Application(o[0], o[1])); err != nil {
			t.Fatal(err)
		}
	}

	w := do(t, router, http.MethodGet, "/properties?q=priya", nil)
	var list RecordListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 || list.Records[0].OwnerName != "Priya Sharma" {
		t.Errorf("filtered list = %+v", list)
	}

	w = do(t, router, http.MethodGet, "/certificates", nil)
	var certs CertificateListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &certs)
	if certs.Total != 2 {
		t.Errorf("certificates = %d", certs.Total)
	}

	w = do(t, router, http.MethodGet, "/certificates/REG2025002", nil)
	if w.Code != http.StatusOK {
		t.Errorf("certificate lookup = %d", w.Code)
	}

	w = do(t, router, http.MethodGet, "/ledger/stats", nil)
	var st registry.Stats
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.TotalProperties != 2 || st.TotalCertificates != 2 {
		t.Errorf("stats = %+v", st)
	}

	w = do(t, router, http.MethodGet, "/ledger/integrity", nil)
	var integ IntegrityResponse
	_ = json.Unmarshal(w.Body.Bytes(), &integ)
	if w.Code != http.StatusOK || !integ.Valid || integ.Height != 2 || integ.Head != st.ChainHead {
		t.Errorf("integrity = %d %+v", w.Code, integ)
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, router := testEnv(t, "secret123")
	app := testutil.Application("Arjun Patel", "123456789012")
	raw, _ := json.Marshal(app)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"wrong token", "Bearer wrong", http.StatusUnauthorized},
		{"basic scheme", "Basic secret123", http.StatusUnauthorized},
		{"empty credentials", "Bearer ", http.StatusUnauthorized},
		{"valid token", "Bearer secret123", http.StatusCreated},
		{"lowercase scheme", "bearer secret123", http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/registrations", bytes.NewReader(raw))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if w.Code == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate challenge")
			}
		})
	}

	// Verification stays public.
	if w := do(t, router, http.MethodGet, "/verify?registration_number=REG2025001", nil); w.Code != http.StatusOK {
		t.Errorf("public verify = %d, want 200", w.Code)
	}
}

func TestSSEEventsAuth(t *testing.T) {
	svc := testutil.TestRegistry(t)
	// Minimal SSE handler stub: writes headers and blocks until context done.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		<-r.Context().Done()
	})
	router := NewRouter(svc, nil, true, "tok", sseHandler)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req = httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}

// Photo tests.

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func uploadPhoto(t *testing.T, router http.Handler, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "owner.png")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/photos", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadPhotoThenRegister(t *testing.T) {
	_, store, router := testEnvWithPhotos(t)

	w := uploadPhoto(t, router, pngBytes)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var up PhotoUploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &up)
	if !store.Exists(up.Ref) || up.URL != "/photos/"+up.Ref {
		t.Fatalf("upload response = %+v", up)
	}

	app := testutil.Application("Arjun Patel", "123456789012")
	app.PhotoRef = "ffffffffffffffffffffffff.png"
	if w := do(t, router, http.MethodPost, "/registrations", app); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown photo ref = %d, want 422", w.Code)
	}

	app.PhotoRef = up.Ref
	if w := do(t, router, http.MethodPost, "/registrations", app); w.Code != http.StatusCreated {
		t.Errorf("register with uploaded photo = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestUploadPhotoRejectsNonImage(t *testing.T) {
	_, _, router := testEnvWithPhotos(t)
	w := uploadPhoto(t, router, []byte("plain text is not a photo"))
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("non-image upload = %d, want 422", w.Code)
	}
}

func TestUploadPhotoMissingFileField(t *testing.T) {
	_, _, router := testEnvWithPhotos(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "x")
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/photos", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing file field = %d, want 400", w.Code)
	}
}
