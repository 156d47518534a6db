package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	hr "github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"

	"secure-file-share/internal/apperr"
	"secure-file-share/internal/catalog"
	"secure-file-share/internal/notify"
)

// shareInfo is one entry of /shared_files.
type shareInfo struct {
	ID               int64           `json:"id"`
	FileID           int64           `json:"file_id"`
	FileInfo         notify.FileInfo `json:"file_info"`
	SenderID         int64           `json:"sender_id"`
	SenderUsername   string          `json:"sender_username"`
	ReceiverID       int64           `json:"receiver_id"`
	ReceiverUsername string          `json:"receiver_username"`
	ShareTimestamp   int64           `json:"share_timestamp"`
}

func newShareInfo(g catalog.ShareGrant) shareInfo {
	return shareInfo{
		ID:               g.ID,
		FileID:           g.File.ID,
		FileInfo:         notify.NewFileInfo(g.File),
		SenderID:         g.SenderID,
		SenderUsername:   g.SenderName,
		ReceiverID:       g.ReceiverID,
		ReceiverUsername: g.ReceiverName,
		ShareTimestamp:   g.CreatedAt.Unix(),
	}
}

func (s *Server) handleMyFiles(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	u, _ := currentUser(r.Context())
	files, err := s.files.ListOwned(r.Context(), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]notify.FileInfo, 0, len(files))
	for _, f := range files {
		out = append(out, notify.NewFileInfo(f))
	}
	writeJSON(w, http.StatusOK, envelope{"status": statusSuccess, "files": out})
}

func (s *Server) handleSharedFiles(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	u, _ := currentUser(r.Context())
	grants, err := s.files.ListSharedWithMe(r.Context(), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]shareInfo, 0, len(grants))
	for _, g := range grants {
		out = append(out, newShareInfo(g))
	}
	writeJSON(w, http.StatusOK, envelope{"status": statusSuccess, "files": out})
}

// fileID accepts both a JSON number and a numeric string, as browsers send
// either depending on where the value came from.
type fileID int64

func (id *fileID) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	if raw == "" || raw == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid file id %q", raw)
	}
	*id = fileID(n)
	return nil
}

type shareRequest struct {
	FileID           fileID `json:"file_id"`
	ReceiverUsername string `json:"receiver_username"`
}

func (s *Server) handleShareFile(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	u, _ := currentUser(r.Context())

	var body shareRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		writeError(w, r, apperr.InvalidArgument("File ID and receiver username are required").WithCause(err))
		return
	}
	receiver := strings.TrimSpace(body.ReceiverUsername)
	if body.FileID <= 0 || receiver == "" {
		writeError(w, r, apperr.InvalidArgument("File ID and receiver username are required"))
		return
	}

	entry := AuditEntry{
		Action:   AuditActionFileShare,
		UserID:   u.ID,
		Username: u.Username,
		Resource: strconv.FormatInt(int64(body.FileID), 10),
		Details:  log.Fields{"receiver": receiver},
	}
	g, duplicate, err := s.files.Grant(r.Context(), u, int64(body.FileID), receiver)
	if err != nil {
		entry.Details["reason"] = err.Error()
		audit(r, entry)
		writeError(w, r, err)
		return
	}
	s.metrics.RecordShare(duplicate)
	entry.Success = true
	entry.Details["duplicate"] = duplicate
	audit(r, entry)
	if duplicate {
		writeStatus(w, http.StatusOK, statusWarning, "File already shared with this user")
		return
	}
	writeStatus(w, http.StatusOK, statusSuccess,
		fmt.Sprintf("File '%s' shared with '%s'", g.File.OriginalName, g.ReceiverName))
}
