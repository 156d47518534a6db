package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	hr "github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"

	"secure-file-share/internal/apperr"
	"secure-file-share/internal/identity"
)

// credentials is the JSON payload of /register and /login.
type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentials, error) {
	var body credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		return body, apperr.InvalidArgument("Username and password are required").WithCause(err)
	}
	return body, nil
}

// handleRegister creates an account. It does not log the new user in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	body, err := decodeCredentials(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.accounts.Register(r.Context(), body.Username, body.Password)
	if err != nil {
		audit(r, AuditEntry{Action: AuditActionRegister, Username: body.Username, Details: log.Fields{"reason": err.Error()}})
		writeError(w, r, err)
		return
	}
	s.metrics.RecordRegistration()
	audit(r, AuditEntry{Action: AuditActionRegister, UserID: u.ID, Username: u.Username, Success: true})
	writeStatus(w, http.StatusCreated, statusSuccess, "Registration successful")
}

// handleLogin verifies credentials and issues a signed session cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	body, err := decodeCredentials(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	username := strings.TrimSpace(body.Username)
	if locked, _ := s.lockout.isLocked(username); locked {
		s.metrics.RecordLogin(false)
		writeStatus(w, http.StatusTooManyRequests, statusError, "Too many failed login attempts. Please try again later.")
		return
	}

	u, err := s.accounts.Authenticate(r.Context(), username, body.Password)
	if err != nil {
		if apperr.Is(err, apperr.CodeUnauthorized) {
			s.metrics.RecordLogin(false)
			entry := AuditEntry{Action: AuditActionLogin, Username: username}
			if locked, until := s.lockout.recordFailure(username); locked {
				entry.Details = log.Fields{"locked_until": until.Format(time.RFC3339)}
			}
			audit(r, entry)
		}
		writeError(w, r, err)
		return
	}
	s.lockout.recordSuccess(username)
	if err := s.cfg.Auth.setSessionCookie(w, u.ID); err != nil {
		writeError(w, r, apperr.StorageFailure("failed issuing session").WithCause(err))
		return
	}
	s.metrics.RecordLogin(true)
	audit(r, AuditEntry{Action: AuditActionLogin, UserID: u.ID, Username: u.Username, Success: true})
	writeJSON(w, http.StatusOK, envelope{
		"status":  statusSuccess,
		"message": "Login successful",
		"user":    u,
	})
}

// handleLogout clears the session cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	u, _ := currentUser(r.Context())
	s.cfg.Auth.clearSessionCookie(w)
	audit(r, AuditEntry{Action: AuditActionLogout, UserID: u.ID, Username: u.Username, Success: true})
	writeStatus(w, http.StatusOK, statusSuccess, "Logged out successfully")
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	u, _ := currentUser(r.Context())
	writeJSON(w, http.StatusOK, envelope{"status": statusSuccess, "user": u})
}

// handleUsers lists every user except the caller, as share targets.
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	u, _ := currentUser(r.Context())
	others, err := s.accounts.ListOthers(r.Context(), u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if others == nil {
		others = []identity.User{}
	}
	writeJSON(w, http.StatusOK, envelope{"status": statusSuccess, "users": others})
}
