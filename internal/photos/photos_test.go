package photos

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/starford/landchain/internal/apperr"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func tempStore(t *testing.T, max int64) *Store {
	t.Helper()
	s, err := New(t.TempDir(), max)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestPutIsContentAddressed(t *testing.T) {
	s := tempStore(t, 0)
	img := append(append([]byte{}, pngHeader...), []byte("pixels")...)
	ref1, err := s.Put(bytes.NewReader(img))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasSuffix(ref1, ".png") || len(ref1) != refHexLen+len(".png") {
		t.Errorf("ref = %q", ref1)
	}
	ref2, err := s.Put(bytes.NewReader(img))
	if err != nil {
		t.Fatalf("Put again: %v", err)
	}
	if ref1 != ref2 {
		t.Errorf("same content gave %q and %q", ref1, ref2)
	}
	if !s.Exists(ref1) {
		t.Error("stored photo not found")
	}
}

func TestPutRejects(t *testing.T) {
	s := tempStore(t, 32)
	tests := []struct {
		name string
		body []byte
	}{
		{"empty", nil},
		{"not an image", []byte("hello, this is plain text")},
		{"too large", append(append([]byte{}, pngHeader...), bytes.Repeat([]byte("x"), 64)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Put(bytes.NewReader(tt.body))
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("err = %v, want validation error", err)
			}
		})
	}
}

func TestPathRejectsTraversal(t *testing.T) {
	s := tempStore(t, 0)
	for _, ref := range []string{"", "../etc/passwd", "a/b.png", ".photo-tmp-1"} {
		if _, err := s.Path(ref); err == nil {
			t.Errorf("Path(%q) accepted", ref)
		}
	}
}

func TestServeHTTP(t *testing.T) {
	s := tempStore(t, 0)
	ref, err := s.Put(bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/photos/"+ref, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), pngHeader) {
		t.Error("served body differs")
	}

	w = httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/photos/missing.png", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing status = %d", w.Code)
	}
}
