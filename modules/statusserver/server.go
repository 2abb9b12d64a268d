package statusserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GoCodeAlone/modkit"
	"github.com/GoCodeAlone/modkit/health"
	"github.com/GoCodeAlone/modkit/lifecycle"
	"github.com/GoCodeAlone/modkit/logging"
)

var ErrNotRunning = errors.New("status server is not running")

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Name        string                 `json:"name"`
	State       lifecycle.State        `json:"state"`
	Mode        modkit.Mode            `json:"mode"`
	Modules     []string               `json:"modules"`
	Services    []ServiceStatus        `json:"services"`
	Requests    []string               `json:"requests,omitempty"`
	Observers   []modkit.ObserverInfo  `json:"observers,omitempty"`
	Transitions []lifecycle.Transition `json:"transitions"`
}

// ServiceStatus describes one registered service.
type ServiceStatus struct {
	Name      string `json:"name"`
	Module    string `json:"module"`
	Status    string `json:"status"`
	LastError string `json:"lastError,omitempty"`
}

// Server serves the application status and health over HTTP.
type Server struct {
	App    *modkit.Application `inject:""`
	Config *Config             `inject:"optional"`

	mu       sync.Mutex
	cfg      Config
	router   *chi.Mux
	server   *http.Server
	listener net.Listener
	served   chan struct{}
}

func (s *Server) logger() modkit.Logger {
	if s.App != nil {
		return s.App.Logger()
	}
	return logging.NewNop()
}

// Handler returns the router, building it on first use.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler()
}

// Router returns the chi router so callers can mount extra routes before
// the server starts.
func (s *Server) Router() chi.Router {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler()
}

func (s *Server) handler() *chi.Mux {
	if s.router != nil {
		return s.router
	}
	s.configure()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	routes := func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/healthz", s.handleHealth)
		r.Get("/healthz/{check}", s.handleCheck)
	}
	if s.cfg.BasePath != "" {
		r.Route(s.cfg.BasePath, routes)
	} else {
		routes(r)
	}

	s.router = r
	return r
}

func (s *Server) configure() {
	if s.Config != nil {
		s.cfg = *s.Config
	}
	s.cfg.SetDefaults()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		began := time.Now()
		next.ServeHTTP(ww, r)
		s.logger().Debug("Status request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(began),
			"requestID", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	app := s.App
	if app == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": ErrNotRunning.Error()})
		return
	}

	resp := StatusResponse{
		Name:        app.Name(),
		State:       app.Status(),
		Mode:        app.Mode(),
		Modules:     []string{},
		Services:    []ServiceStatus{},
		Requests:    app.RequestManager().Names(),
		Observers:   app.Observers(),
		Transitions: app.Transitions(),
	}
	for _, m := range app.ModuleManager().Modules() {
		resp.Modules = append(resp.Modules, m.Name())
	}
	for _, reg := range app.ServiceManager().Registrations() {
		st := ServiceStatus{Name: reg.Name(), Module: reg.Module.Name(), Status: "registered"}
		if entry, ok := app.ServiceManager().Status(reg.Token); ok {
			st.Status = string(entry.Status)
			st.LastError = entry.LastError
		}
		resp.Services = append(resp.Services, st)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.App == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": ErrNotRunning.Error()})
		return
	}

	status := s.App.Health().CheckAll(r.Context())
	code := http.StatusOK
	if s.App.Status() != lifecycle.StateRunning || !healthy(status.OverallStatus) {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if s.App == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": ErrNotRunning.Error()})
		return
	}

	name := chi.URLParam(r, "check")
	result, err := s.App.Health().CheckOne(r.Context(), name)
	if errors.Is(err, health.ErrHealthCheckNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	code := http.StatusOK
	if !healthy(result.Status) {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, result)
}

// healthy treats warnings as serving traffic.
func healthy(status health.Status) bool {
	return status == health.StatusHealthy || status == health.StatusWarning
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return nil
	}
	handler := s.handler()

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Address, err)
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}
	served := make(chan struct{})
	go func() {
		defer close(served)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger().Error("Status server stopped unexpectedly", "error", err)
		}
	}()

	s.server = server
	s.listener = listener
	s.served = served
	s.logger().Info("Status server listening", "address", listener.Addr().String())
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	<-s.served
	s.server = nil
	s.listener = nil
	if err != nil {
		return fmt.Errorf("shutdown status server: %w", err)
	}
	s.logger().Info("Status server stopped")
	return nil
}

// Addr returns the address the server listens on, or "" when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
