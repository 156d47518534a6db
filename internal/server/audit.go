package server

import (
	"net/http"

	log "github.com/sirupsen/logrus"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionRegister     AuditAction = "register"
	AuditActionLogin        AuditAction = "login"
	AuditActionLogout       AuditAction = "logout"
	AuditActionFileUpload   AuditAction = "file_upload"
	AuditActionFileDownload AuditAction = "file_download"
	AuditActionFileShare    AuditAction = "file_share"
)

// AuditEntry is one security-relevant action. Entries go to the service log
// tagged audit=true so they can be filtered downstream.
type AuditEntry struct {
	Action   AuditAction
	UserID   int64
	Username string
	Resource string // stored name, file id, ...
	Success  bool
	Details  log.Fields
}

// audit records e with the request's id and client address.
func audit(r *http.Request, e AuditEntry) {
	fields := log.Fields{
		"audit":   true,
		"action":  e.Action,
		"success": e.Success,
		"rid":     RequestIDFromContext(r.Context()),
		"ip":      getClientIP(r),
	}
	if e.UserID != 0 {
		fields["user_id"] = e.UserID
	}
	if e.Username != "" {
		fields["username"] = e.Username
	}
	if e.Resource != "" {
		fields["resource"] = e.Resource
	}
	for k, v := range e.Details {
		fields[k] = v
	}
	entry := log.WithFields(fields)
	if e.Success {
		entry.Info("audit")
		return
	}
	entry.Warn("audit")
}
