package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/openfroyo/editengine/pkg/edit"
	"github.com/openfroyo/editengine/pkg/telemetry"
)

const (
	// HeaderViewer carries the acting user's PHID.
	HeaderViewer = "X-Viewer"

	// HeaderViewerRoles carries the acting user's roles, comma separated.
	HeaderViewerRoles = "X-Viewer-Roles"

	maxBodyBytes = 1 << 20
)

// Server serves an edit engine over HTTP.
type Server struct {
	engine *edit.Engine
	tel    *telemetry.Telemetry
	logger zerolog.Logger
	mux    *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithTelemetry instruments every request and mounts /metrics.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(s *Server) { s.tel = tel }
}

// NewServer creates a server for engine.
func NewServer(engine *edit.Engine, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: logger.With().Str("component", "api").Logger(),
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.tel != nil && s.tel.Metrics != nil {
		s.mux.Handle("GET /metrics", s.tel.Metrics.Handler())
	}

	s.handle("POST /v1/{engine}/form", "form", s.handleForm)
	s.handle("POST /v1/{engine}/form/{object}", "form", s.handleForm)
	s.handle("POST /v1/{engine}/params", "params", s.handleParams)
	s.handle("POST /v1/{engine}/params/{object}", "params", s.handleParams)
	s.handle("GET /v1/{engine}/params", "docs", s.handleDocs)
	s.handle("POST /v1/{engine}/comment/{object}", "comment", s.handleComment)
	s.handle("POST /v1/{engine}/rpc", "rpc", s.handleRPC)
	s.handle("GET /v1/{engine}/objects/{object}/transactions", "transactions", s.handleTransactions)
	s.handle("GET /v1/{engine}/configurations", "configurations", s.handleListConfigurations)
	s.handle("PUT /v1/{engine}/configurations", "configurations.save", s.handleSaveConfiguration)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down http server: %w", err)
		}
		return nil
	}
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, viewer edit.Viewer)

// handle registers an instrumented route. The viewer is parsed once and
// recorded on the request context.
func (s *Server) handle(pattern, operation string, h handlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		viewer := viewerFromRequest(r)
		ctx := r.Context()
		if s.tel != nil {
			ctx = s.tel.WithContext(ctx)
		}
		ctx = telemetry.WithViewerContext(ctx, viewer.PHID)

		op := telemetry.StartOperation(ctx, "api."+operation,
			attribute.String("http.method", r.Method),
			attribute.String("edit.engine", r.PathValue("engine")),
		)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r.Body = http.MaxBytesReader(rec, r.Body, maxBodyBytes)

		h(rec, r.WithContext(op.Ctx), viewer)

		var err error
		if rec.status >= http.StatusInternalServerError {
			err = fmt.Errorf("%s %s returned %d", r.Method, r.URL.Path, rec.status)
		}
		op.End(err)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("viewer", viewer.PHID).
			Int("status", rec.status).
			Dur("duration", op.Timer.Duration()).
			Msg("Handled request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// viewerFromRequest reads the acting viewer from request headers.
func viewerFromRequest(r *http.Request) edit.Viewer {
	viewer := edit.Viewer{PHID: strings.TrimSpace(r.Header.Get(HeaderViewer))}
	for _, role := range strings.Split(r.Header.Get(HeaderViewerRoles), ",") {
		if role = strings.TrimSpace(role); role != "" {
			viewer.Roles = append(viewer.Roles, role)
		}
	}
	return viewer
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
