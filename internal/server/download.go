package server

import (
	"context"
	"io"
	"mime"
	"net/http"
	"time"

	hr "github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"

	"secure-file-share/internal/apperr"
	"secure-file-share/internal/catalog"
	"secure-file-share/internal/content"
)

// handleDownload serves a stored file to its owner or to a share receiver.
// The bytes are re-hashed first; the result goes out as X-SHA256 and must
// match the fingerprint recorded at upload time.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, p hr.Params) {
	u, _ := currentUser(r.Context())
	storedName := p.ByName("stored_filename")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	f, access, err := s.files.AuthorizeStored(ctx, u, storedName)
	if err != nil {
		s.metrics.RecordDownloadError()
		writeError(w, r, err)
		return
	}
	if access == catalog.Denied {
		s.metrics.RecordDownloadError()
		audit(r, AuditEntry{Action: AuditActionFileDownload, UserID: u.ID, Username: u.Username, Resource: f.StoredName})
		writeError(w, r, apperr.Forbidden("Access denied. File not uploaded by you or shared with you."))
		return
	}

	digest, err := content.Digest(ctx, s.content, f.StoredName)
	if err != nil {
		s.metrics.RecordDownloadError()
		writeError(w, r, err)
		return
	}
	if digest != f.Fingerprint {
		s.metrics.RecordDownloadError()
		writeError(w, r, apperr.StorageFailure("stored file does not match its recorded fingerprint"))
		return
	}

	rc, err := s.content.Open(ctx, f.StoredName)
	if err != nil {
		s.metrics.RecordDownloadError()
		writeError(w, r, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-SHA256", digest)
	// Encourage safe download behavior in browsers.
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.OriginalName}))
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, rc)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"rid":         RequestIDFromContext(r.Context()),
			"stored_name": f.StoredName,
			"bytes":       n,
		}).Warn("download interrupted")
		return
	}
	s.metrics.RecordDownload()
	audit(r, AuditEntry{
		Action:   AuditActionFileDownload,
		UserID:   u.ID,
		Username: u.Username,
		Resource: f.StoredName,
		Success:  true,
		Details:  log.Fields{"file_id": f.ID, "access": access.String(), "bytes": n},
	})
}
