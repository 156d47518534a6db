package server

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	hr "github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"

	"secure-file-share/internal/apperr"
	"secure-file-share/internal/content"
)

// uploadResp is the JSON response returned after a successful file upload.
type uploadResp struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	Filename       string `json:"filename"`
	StoredFilename string `json:"stored_filename"`
	SHA256         string `json:"sha256"`
	FileID         int64  `json:"file_id"`
}

// nextFilePart advances mr to the multipart field named "file".
func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, apperr.InvalidArgument("No file part")
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, err
			}
			return nil, apperr.InvalidArgument("No file part").WithCause(err)
		}
		if part.FormName() == "file" {
			return part, nil
		}
		_ = part.Close()
	}
}

// handleUpload streams the "file" field into the content store, hashing it
// on the way, and records it in the catalog. The stored bytes are removed
// again if anything after the write fails, so no record ever points at
// missing or unhashed content.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	u, _ := currentUser(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, apperr.InvalidArgument("No file part").WithCause(err))
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer func() { _ = part.Close() }()

	if part.FileName() == "" {
		writeError(w, r, apperr.InvalidArgument("No selected file"))
		return
	}
	// Check the extension on the raw name too, so hostile names are
	// refused before any rewriting happens.
	if !allowedFile(part.FileName()) {
		writeError(w, r, apperr.InvalidArgument("File type not allowed"))
		return
	}
	originalName := SanitizeFilename(part.FileName())
	if !allowedFile(originalName) {
		writeError(w, r, apperr.InvalidArgument("File type not allowed"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	storedName := content.StoredName(u.ID, originalName)
	obj, err := s.content.Put(ctx, storedName, part)
	if err != nil {
		s.metrics.RecordUploadError()
		writeError(w, r, err)
		return
	}

	f, err := s.files.RegisterFile(ctx, u, originalName, obj.SHA256, storedName)
	if err != nil {
		s.metrics.RecordUploadError()
		// Use a fresh context: the request one may be what failed.
		rmCtx, rmCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer rmCancel()
		if rmErr := s.content.Remove(rmCtx, storedName); rmErr != nil {
			log.WithError(rmErr).WithField("stored_name", storedName).Error("failed removing orphaned upload")
		}
		writeError(w, r, err)
		return
	}

	s.metrics.RecordUpload(obj.Size)
	audit(r, AuditEntry{
		Action:   AuditActionFileUpload,
		UserID:   u.ID,
		Username: u.Username,
		Resource: f.StoredName,
		Success:  true,
		Details:  log.Fields{"file_id": f.ID, "bytes": obj.Size},
	})

	writeJSON(w, http.StatusOK, uploadResp{
		Status:         statusSuccess,
		Message:        "File uploaded successfully",
		Filename:       f.OriginalName,
		StoredFilename: f.StoredName,
		SHA256:         f.Fingerprint,
		FileID:         f.ID,
	})
}
