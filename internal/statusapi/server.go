// Package statusapi exposes a read-only HTTP view of a Pipeline's
// observable state, for host applications that prefer polling a loopback
// port over linking the Go process in-proc. Grounded on the teacher's
// huma/chi HTTP server, trimmed to the one read-only resource this domain
// needs.
package statusapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kestrelav/streamcore/internal/config"
	"github.com/kestrelav/streamcore/internal/orchestrator"
)

// Server serves the pipeline status resource over HTTP.
type Server struct {
	cfg        config.ServerConfig
	router     *chi.Mux
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds a Server bound to pipeline's observables.
func New(cfg config.ServerConfig, pipeline *orchestrator.Pipeline, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)

	humaConfig := huma.DefaultConfig("streamcore status API", version)
	humaConfig.Info.Description = "Read-only view of the pipeline's observable state"
	api := humachi.New(router, humaConfig)

	registerStatus(api, pipeline)

	return &Server{cfg: cfg, router: router, logger: logger}
}

// StatusOutput is the body of GET /status.
type StatusOutput struct {
	Body struct {
		State        string `json:"state"`
		IsOpen       bool   `json:"is_open"`
		IsStreaming  bool   `json:"is_streaming"`
		LastError    string `json:"last_error,omitempty"`
		AudioSource  string `json:"audio_source,omitempty"`
		VideoSource  string `json:"video_source,omitempty"`
	}
}

func registerStatus(api huma.API, pipeline *orchestrator.Pipeline) {
	huma.Register(api, huma.Operation{
		OperationID: "getStatus",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Pipeline status",
		Description: "Returns the orchestrator's current observable state",
		Tags:        []string{"status"},
	}, func(ctx context.Context, input *struct{}) (*StatusOutput, error) {
		out := &StatusOutput{}
		out.Body.State = string(pipeline.State().Get())
		out.Body.IsOpen = pipeline.IsOpen().Get()
		out.Body.IsStreaming = pipeline.IsStreaming().Get()
		if err := pipeline.LastError().Get(); err != nil {
			out.Body.LastError = err.Error()
		}
		out.Body.AudioSource = pipeline.AudioSource().Get()
		out.Body.VideoSource = pipeline.VideoSource().Get()
		return out, nil
	})
}

// ListenAndServe starts the server and blocks until ctx is canceled, then
// gracefully shuts down within cfg.ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting status API", slog.String("address", s.cfg.Address()))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("status API: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
