// Package photos stores owner photo blobs under content-addressed
// references. The registry only ever sees the reference.
package photos

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/landchain/internal/apperr"
)

// DefaultMaxBytes caps a single photo upload.
const DefaultMaxBytes = 5 << 20

// refHexLen is the number of hash characters in a reference.
const refHexLen = 24

// extensions maps sniffed content types to the stored file extension.
var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store is a directory of photo blobs.
type Store struct {
	dir      string
	maxBytes int64
}

// New creates dir if needed. maxBytes <= 0 selects DefaultMaxBytes.
func New(dir string, maxBytes int64) (*Store, error) {
	if dir == "" {
		return nil, errors.New("photos: path is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("photos: resolve dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("photos: mkdir: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Store{dir: abs, maxBytes: maxBytes}, nil
}

// MaxBytes returns the upload limit.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Put stores the image read from r and returns its reference. Identical
// content always yields the same reference.
func (s *Store) Put(r io.Reader) (string, error) {
	tmp, err := os.CreateTemp(s.dir, ".photo-tmp-*")
	if err != nil {
		return "", fmt.Errorf("photos: create temp: %w", err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	h := sha256.New()
	limited := io.LimitReader(r, s.maxBytes+1)
	head := make([]byte, 512)
	n, err := io.ReadFull(limited, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("photos: read: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return "", apperr.Field("owner_photo", "photo is empty")
	}
	ext, ok := extensions[http.DetectContentType(head)]
	if !ok {
		return "", apperr.Field("owner_photo", "photo must be a JPEG, PNG, GIF or WebP image")
	}

	w := io.MultiWriter(tmp, h)
	if _, err := w.Write(head); err != nil {
		return "", fmt.Errorf("photos: write temp: %w", err)
	}
	rest, err := io.Copy(w, limited)
	if err != nil {
		return "", fmt.Errorf("photos: write temp: %w", err)
	}
	if int64(n)+rest > s.maxBytes {
		return "", apperr.Field("owner_photo", fmt.Sprintf("photo exceeds %d bytes", s.maxBytes))
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("photos: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("photos: close temp: %w", err)
	}

	ref := hex.EncodeToString(h.Sum(nil))[:refHexLen] + ext
	if err := os.Rename(tmpName, filepath.Join(s.dir, ref)); err != nil {
		return "", fmt.Errorf("photos: rename: %w", err)
	}
	success = true
	return ref, nil
}

// Path resolves ref to a file inside the store. It rejects anything that is
// not a plain file name.
func (s *Store) Path(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("photos: ref is required: %w", apperr.ErrNotFound)
	}
	cleaned := filepath.Clean(ref)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") || strings.HasPrefix(cleaned, ".") {
		return "", fmt.Errorf("photos: invalid ref %q: %w", ref, apperr.ErrNotFound)
	}
	return filepath.Join(s.dir, cleaned), nil
}

// Exists reports whether ref names a stored photo.
func (s *Store) Exists(ref string) bool {
	p, err := s.Path(ref)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// ServeHTTP serves GET /photos/{ref}; the ref is the last path element.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	if !s.Exists(ref) {
		http.NotFound(w, r)
		return
	}
	p, _ := s.Path(ref)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeFile(w, r, p)
}
