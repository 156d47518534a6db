package server

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"secure-file-share/internal/apperr"
)

const (
	statusSuccess = "success"
	statusWarning = "warning"
	statusError   = "error"
)

// envelope is the common JSON body; handlers add their own fields.
type envelope map[string]any

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeStatus(w http.ResponseWriter, code int, status, message string) {
	writeJSON(w, code, envelope{"status": status, "message": message})
}

// writeError maps err to a status code and an error body. Storage failures
// are logged with their cause chain and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeStatus(w, http.StatusRequestEntityTooLarge, statusError, "File too large")
		return
	}

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.StorageFailure("unexpected error").WithCause(err)
	}
	if appErr.Code == apperr.CodeStorageFailure {
		log.WithFields(log.Fields{
			"rid":  RequestIDFromContext(r.Context()),
			"path": r.URL.Path,
		}).Error(appErr.Trace())
	}
	writeStatus(w, appErr.StatusCode(), statusError, appErr.PublicMessage())
}
