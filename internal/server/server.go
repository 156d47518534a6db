package server

import (
	"context"
	"net"
	"net/http"
	"time"

	hr "github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"

	"secure-file-share/internal/catalog"
	"secure-file-share/internal/content"
	"secure-file-share/internal/identity"
	"secure-file-share/internal/notify"
)

type Config struct {
	Addr           string // e.g. ":8080"
	Auth           AuthConfig
	MaxUploadBytes int64
	// ClientDir holds index.html, login.html and static assets. Empty
	// disables page serving.
	ClientDir  string
	Version    string
	AuthRate   int
	AuthWindow time.Duration
	// TrustedProxies are the IPs or CIDRs whose X-Forwarded-For and
	// X-Real-IP headers identify the client.
	TrustedProxies []string
}

// Accounts is the identity surface the handlers use.
type Accounts interface {
	Register(ctx context.Context, username, password string) (identity.User, error)
	Authenticate(ctx context.Context, username, password string) (identity.User, error)
	UserByID(ctx context.Context, id int64) (identity.User, error)
	ListOthers(ctx context.Context, self int64) ([]identity.User, error)
}

// Files is the catalog surface the handlers use.
type Files interface {
	RegisterFile(ctx context.Context, actor identity.User, originalName, fingerprint, storedName string) (catalog.FileRecord, error)
	Grant(ctx context.Context, actor identity.User, fileID int64, receiverName string) (catalog.ShareGrant, bool, error)
	AuthorizeStored(ctx context.Context, actor identity.User, storedName string) (catalog.FileRecord, catalog.Access, error)
	ListOwned(ctx context.Context, actor identity.User) ([]catalog.FileRecord, error)
	ListSharedWithMe(ctx context.Context, actor identity.User) ([]catalog.ShareGrant, error)
}

// Checker is a dependency polled by the health endpoints.
type Checker interface {
	Check(ctx context.Context) error
}

type Deps struct {
	Accounts Accounts
	Files    Files
	Content  content.Store
	Hub      *notify.Hub
	// Checks are polled by /health and /ready, keyed by component name.
	Checks map[string]Checker
}

type Server struct {
	cfg        Config
	accounts   Accounts
	files      Files
	content    content.Store
	hub        *notify.Hub
	checks     map[string]Checker
	metrics    *Metrics
	limiter    *rateLimiter
	lockout    *accountLockout
	handler    http.Handler
	httpServer *http.Server
}

func New(cfg Config, deps Deps) *Server {
	if cfg.AuthRate <= 0 {
		cfg.AuthRate = 20
	}
	if cfg.AuthWindow <= 0 {
		cfg.AuthWindow = time.Minute
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 16 << 20
	}
	hub := deps.Hub
	if hub == nil {
		hub = notify.NewHub()
	}

	s := &Server{
		cfg:      cfg,
		accounts: deps.Accounts,
		files:    deps.Files,
		content:  deps.Content,
		hub:      hub,
		checks:   deps.Checks,
		limiter:  newRateLimiter(cfg.AuthRate, cfg.AuthWindow),
		lockout:  newAccountLockout(5, 15*time.Minute, 10*time.Minute),
	}
	s.metrics = NewMetrics(func() float64 { return float64(hub.Sessions()) })

	proxies, err := parseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.WithError(err).Warn("ignoring invalid trusted proxies")
	}

	// Wrap middleware: client IP -> requestID -> logging -> security headers -> router
	var handler http.Handler = s.routes()
	handler = securityHeadersMiddleware(cfg.Auth.CookieSecure)(handler)
	handler = s.loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = proxies.middleware(handler)
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Middleware decorates a routed handle.
type Middleware func(hr.Handle) hr.Handle

// Chain applies ms so that the first one runs outermost.
func Chain(h hr.Handle, ms ...Middleware) hr.Handle {
	for i := len(ms) - 1; i >= 0; i-- {
		h = ms[i](h)
	}
	return h
}

func (s *Server) routes() *hr.Router {
	r := hr.New()
	r.PanicHandler = panicHandler
	authed := func(h hr.Handle) hr.Handle { return Chain(h, s.requireAuth) }
	limited := func(h hr.Handle) hr.Handle { return Chain(h, s.limiter.middleware) }

	r.POST("/register", limited(s.handleRegister))
	r.POST("/login", limited(s.handleLogin))
	r.POST("/logout", authed(s.handleLogout))
	r.GET("/get_current_user", authed(s.handleCurrentUser))
	r.GET("/users", authed(s.handleUsers))

	r.POST("/upload", authed(s.handleUpload))
	r.GET("/download/:stored_filename", authed(s.handleDownload))
	r.GET("/my_files", authed(s.handleMyFiles))
	r.GET("/shared_files", authed(s.handleSharedFiles))
	r.POST("/share_file", authed(s.handleShareFile))

	r.GET("/ws", authed(s.handleSocket))

	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	r.GET("/live", s.handleLive)
	r.Handler(http.MethodGet, "/metrics", s.metrics.Handler())

	r.GET("/", Chain(s.handleIndex, s.requirePage))
	r.GET("/login_page", s.handleLoginPage)
	r.NotFound = http.HandlerFunc(s.handleStatic)
	return r
}

// Handler exposes the fully wrapped handler for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the live notification hub.
func (s *Server) Hub() *notify.Hub {
	return s.hub
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

// Shutdown stops accepting requests and closes live sessions, which the
// http.Server does not track once upgraded.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.hub.CloseAll()
	return err
}
