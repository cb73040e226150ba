package rest

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/evnchn/3D-Print-Me/config"
	"github.com/evnchn/3D-Print-Me/domain/port/inbound"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

// RequestObserver records per-route request metrics
type RequestObserver interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
}

// Handler wires every REST endpoint onto a gorilla/mux router
type Handler struct {
	auth           *AuthHandler
	portal         *PortalHandler
	jwt            *AuthMiddleware
	hybrid         *HybridMiddleware
	authz          inbound.AuthorizationService
	config         *config.Config
	observer       RequestObserver
	metricsHandler http.Handler
	logger         outbound.Logger
}

type Services struct {
	Credentials   inbound.CredentialService
	Tokens        inbound.TokenService
	Authorization inbound.AuthorizationService
	Factories     inbound.FactoryService
	Jobs          inbound.JobService
}

// NewHandler builds the REST adapter; jobFeed, observer and metricsHandler may be nil
func NewHandler(
	services Services,
	jobFeed JobFeed,
	cfg *config.Config,
	observer RequestObserver,
	metricsHandler http.Handler,
	logger outbound.Logger,
) *Handler {
	jwt := NewAuthMiddleware(services.Tokens, logger)
	apiKey := NewAPIKeyMiddleware(services.Tokens, logger)

	return &Handler{
		auth:           NewAuthHandler(services.Credentials, services.Tokens, services.Authorization, cfg, logger),
		portal:         NewPortalHandler(services.Factories, services.Jobs, jobFeed, int64(cfg.Portal.MaxUploadMB)<<20, logger),
		jwt:            jwt,
		hybrid:         NewHybridMiddleware(apiKey, jwt, logger),
		authz:          services.Authorization,
		config:         cfg,
		observer:       observer,
		metricsHandler: metricsHandler,
		logger:         logger,
	}
}

// Router returns the complete HTTP handler. CORS wraps the router so preflights reach it
// before method matching.
func (h *Handler) Router() http.Handler {
	router := mux.NewRouter()
	h.SetupRoutes(router)
	if h.config.HTTP.CORS.Enabled {
		return h.corsMiddleware(router)
	}
	return router
}

// SetupRoutes registers every route on router
func (h *Handler) SetupRoutes(router *mux.Router) {
	router.StrictSlash(true)
	router.Use(h.recoverMiddleware, h.requestMiddleware)

	// public
	router.HandleFunc("/health", h.healthCheck).Methods("GET")
	router.HandleFunc("/token", h.auth.Login).Methods("POST")
	router.HandleFunc("/api/userauth/create_user", h.auth.CreateUser).Methods("POST")
	router.HandleFunc("/api/userauth/check_credentials", h.auth.CheckCredentials).Methods("POST")
	router.HandleFunc("/api/mint_token", h.auth.MintAPIToken).Methods("POST")
	router.HandleFunc("/api/verify_token", h.auth.VerifyAPIToken).Methods("POST")
	router.HandleFunc("/api/verify_session", h.auth.VerifySessionToken).Methods("POST")
	if h.metricsHandler != nil {
		router.Handle("/metrics", h.metricsHandler).Methods("GET")
	}

	// session token only
	session := router.NewRoute().Subrouter()
	session.Use(h.jwt.Middleware)
	session.HandleFunc("/api/token/refresh", h.auth.RefreshToken).Methods("POST")

	// session token or API key
	user := router.NewRoute().Subrouter()
	user.Use(h.hybrid.Middleware)
	user.HandleFunc("/user/me", h.auth.Me).Methods("GET")
	user.HandleFunc("/user/me/am_i_admin", h.auth.AmIAdmin).Methods("GET")
	user.HandleFunc("/api/tokens/{token}", h.auth.RevokeAPIToken).Methods("DELETE")

	user.HandleFunc("/api/factories", h.portal.ListFactories).Methods("GET")
	user.HandleFunc("/api/factories/{factory}", h.portal.GetFactory).Methods("GET")
	user.HandleFunc("/api/factories/{factory}/cover", h.portal.CoverImage).Methods("GET")

	user.HandleFunc("/api/jobs", h.portal.ListMyJobs).Methods("GET")
	user.HandleFunc("/api/jobs", h.portal.NewJob).Methods("POST")
	user.HandleFunc("/api/jobs/{job}", h.portal.GetJob).Methods("GET")
	user.HandleFunc("/api/jobs/{job}", h.portal.DeleteJob).Methods("DELETE")
	user.HandleFunc("/api/jobs/{job}/fields", h.portal.SubmitFields).Methods("PUT")
	user.HandleFunc("/api/jobs/{job}/file", h.portal.UploadFile).Methods("POST")
	user.HandleFunc("/api/jobs/{job}/file", h.portal.DownloadFile).Methods("GET")

	// administrators
	admin := router.PathPrefix("/api/admin").Subrouter()
	admin.Use(h.hybrid.Middleware, RequireAdmin(h.authz, h.logger))
	admin.HandleFunc("/users", h.auth.ListUsers).Methods("GET")
	admin.HandleFunc("/users/{username}", h.auth.DeleteUser).Methods("DELETE")
	admin.HandleFunc("/config", h.auth.PublicConfig).Methods("GET")
	admin.HandleFunc("/jobs", h.portal.ListJobs).Methods("GET")
	admin.HandleFunc("/jobs/purge", h.portal.PurgeJobs).Methods("POST")
	admin.HandleFunc("/jobs/{job}/status", h.portal.MarkStatus).Methods("PUT")

	feed := router.PathPrefix("/api/ws").Subrouter()
	feed.Use(h.hybrid.Middleware, RequireAdmin(h.authz, h.logger))
	feed.HandleFunc("/jobs", h.portal.JobEvents).Methods("GET")
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.Error("Panic while serving request", "method", r.Method, "path", r.URL.Path, "panic", rec)
				writeJSON(w, http.StatusInternalServerError, detailResponse{Detail: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestMiddleware logs each request and feeds the observer with the route template
func (h *Handler) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		elapsed := time.Since(start)

		h.logger.Debug("Request",
			"method", r.Method,
			"route", route,
			"status", rec.status,
			"duration", elapsed.String())
		if h.observer != nil {
			h.observer.ObserveRequest(route, r.Method, rec.status, elapsed)
		}
	})
}

func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(h.config.HTTP.CORS.AllowedOrigins))
	for _, o := range h.config.HTTP.CORS.AllowedOrigins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+APITokenHeader)
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the recorder
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
