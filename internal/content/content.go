// Package content stores uploaded file bytes and fingerprints them.
//
// Two backends exist: Dir keeps bytes in a local content directory and
// Minio keeps them in an S3-compatible bucket. Both compute the SHA-256
// fingerprint over exactly the bytes they persist, so callers never have
// to trust a client-supplied hash.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"path/filepath"
	"strings"

	"github.com/segmentio/ksuid"

	"secure-file-share/internal/apperr"
)

// Object describes bytes that were persisted by Put.
type Object struct {
	Name   string
	Size   int64
	SHA256 string
}

type Store interface {
	// Put writes the full stream under name and returns its fingerprint.
	// name must not already exist.
	Put(ctx context.Context, name string, r io.Reader) (Object, error)
	// Open returns the stored bytes; unknown names are apperr NotFound.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Remove(ctx context.Context, name string) error
	// Check reports whether the backend is reachable.
	Check(ctx context.Context) error
}

// StoredName derives a server-chosen, collision-resistant name for an upload.
func StoredName(ownerID int64, originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	return fmt.Sprintf("%d_%s%s", ownerID, ksuid.New().String(), ext)
}

// ValidName rejects names that could escape the content namespace.
func ValidName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") || strings.ContainsRune(name, 0) {
		return apperr.InvalidArgument(fmt.Sprintf("invalid stored name %q", name))
	}
	return nil
}

// hashingReader fingerprints everything read through it.
type hashingReader struct {
	r io.Reader
	h hash.Hash
	n int64
}

func newHashingReader(r io.Reader) *hashingReader {
	return &hashingReader{r: r, h: sha256.New()}
}

func (hr *hashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		hr.h.Write(p[:n])
		hr.n += int64(n)
	}
	return n, err
}

func (hr *hashingReader) sum() string {
	return hex.EncodeToString(hr.h.Sum(nil))
}

// Digest re-reads a stored object and returns its SHA-256 as lowercase hex.
func Digest(ctx context.Context, s Store, name string) (string, error) {
	rc, err := s.Open(ctx, name)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", apperr.StorageFailure("failed hashing stored file").WithCause(err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
