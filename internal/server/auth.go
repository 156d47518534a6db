// auth.go - Stateless session cookies and the authentication guard.
//
// Sessions are HMAC-signed cookies whose subject is the user id; the guard
// resolves the subject to a user and stores it on the request context.
package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	hr "github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"

	"secure-file-share/internal/apperr"
	"secure-file-share/internal/identity"
)

// AuthConfig holds the session cookie settings.
type AuthConfig struct {
	SessionSecret string
	SessionTTL    time.Duration
	CookieName    string
	// CookieSecure marks the cookie HTTPS-only. Tests and plain-http
	// development runs turn it off.
	CookieSecure bool
}

type sessionPayload struct {
	Sub string `json:"sub"`
	Exp int64  `json:"exp"`
}

func (a AuthConfig) cookieName() string {
	if a.CookieName == "" {
		return "sfs_session"
	}
	return a.CookieName
}

func (a AuthConfig) ttl() time.Duration {
	if a.SessionTTL <= 0 {
		return 12 * time.Hour
	}
	return a.SessionTTL
}

func (a AuthConfig) secretBytes() []byte {
	return []byte(a.SessionSecret)
}

func signPayload(secret []byte, msg string) string {
	m := hmac.New(sha256.New, secret)
	_, _ = m.Write([]byte(msg))
	return hex.EncodeToString(m.Sum(nil))
}

func encodeSession(p sessionPayload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func decodeSession(token string) (sessionPayload, error) {
	var p sessionPayload
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return p, err
	}
	return p, nil
}

// makeToken returns "payload.signature"
func (a AuthConfig) makeToken(sub string) (string, time.Time, error) {
	exp := time.Now().Add(a.ttl())
	p := sessionPayload{Sub: sub, Exp: exp.Unix()}
	payload, err := encodeSession(p)
	if err != nil {
		return "", time.Time{}, err
	}
	sig := signPayload(a.secretBytes(), payload)
	return payload + "." + sig, exp, nil
}

func (a AuthConfig) verifyToken(tok string) (sessionPayload, error) {
	var p sessionPayload
	parts := strings.Split(tok, ".")
	if len(parts) != 2 {
		return p, errors.New("invalid token format")
	}
	payload := parts[0]
	sig := parts[1]
	want := signPayload(a.secretBytes(), payload)
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return p, errors.New("invalid signature")
	}
	decoded, err := decodeSession(payload)
	if err != nil {
		return p, err
	}
	if decoded.Exp <= time.Now().Unix() {
		return p, errors.New("expired")
	}
	return decoded, nil
}

func (a AuthConfig) setSessionCookie(w http.ResponseWriter, userID int64) error {
	tok, exp, err := a.makeToken(strconv.FormatInt(userID, 10))
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName(),
		Value:    tok,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.CookieSecure,
	})
	return nil
}

// clearSessionCookie overwrites the session with an expired cookie.
func (a AuthConfig) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName(),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.CookieSecure,
	})
}

// sessionUserID extracts the subject of a valid session cookie.
func (a AuthConfig) sessionUserID(r *http.Request) (int64, error) {
	c, err := r.Cookie(a.cookieName())
	if err != nil {
		return 0, errors.New("no session cookie")
	}
	payload, err := a.verifyToken(c.Value)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(payload.Sub, 10, 64)
}

type userCtxKey struct{}

func withUser(ctx context.Context, u identity.User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// currentUser returns the user stored by requireAuth.
func currentUser(ctx context.Context) (identity.User, bool) {
	u, ok := ctx.Value(userCtxKey{}).(identity.User)
	return u, ok
}

// resolveSession returns the user behind the request's session cookie.
func (s *Server) resolveSession(r *http.Request) (identity.User, error) {
	id, err := s.cfg.Auth.sessionUserID(r)
	if err != nil {
		return identity.User{}, apperr.Unauthorized("Unauthorized").WithCause(err)
	}
	u, err := s.accounts.UserByID(r.Context(), id)
	if err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			return identity.User{}, apperr.Unauthorized("Unauthorized").WithCause(err)
		}
		return identity.User{}, err
	}
	return u, nil
}

// requireAuth rejects API calls without a valid session with 401.
func (s *Server) requireAuth(next hr.Handle) hr.Handle {
	return func(w http.ResponseWriter, r *http.Request, p hr.Params) {
		u, err := s.resolveSession(r)
		if err != nil {
			if !apperr.Is(err, apperr.CodeUnauthorized) {
				log.WithError(err).Error("session lookup failed")
			}
			writeError(w, r, err)
			return
		}
		next(w, r.WithContext(withUser(r.Context(), u)), p)
	}
}

// requirePage sends unauthenticated page requests to the login page.
func (s *Server) requirePage(next hr.Handle) hr.Handle {
	return func(w http.ResponseWriter, r *http.Request, p hr.Params) {
		u, err := s.resolveSession(r)
		if err != nil {
			http.Redirect(w, r, "/login_page", http.StatusFound)
			return
		}
		next(w, r.WithContext(withUser(r.Context(), u)), p)
	}
}
