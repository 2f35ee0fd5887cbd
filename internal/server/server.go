// Package server exposes the flight service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/skyblocks/flightdeck/internal/compiler"
	"github.com/skyblocks/flightdeck/internal/dispatcher"
	"github.com/skyblocks/flightdeck/internal/handlers"
	"github.com/skyblocks/flightdeck/internal/sim"
	"github.com/skyblocks/flightdeck/internal/worker"
)

// MaxBodyBytes bounds a submitted workspace.
const MaxBodyBytes = 1 << 20

// Dispatcher routes a request to its handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, e dispatcher.Event) (any, error)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Server serves the HTTP API.
type Server struct {
	d      Dispatcher
	logger *slog.Logger
	srv    *http.Server
}

// New builds a server listening on addr. A nil logger discards log output.
func New(addr string, d Dispatcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{d: d, logger: logger}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthcheck", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("POST /compile", s.command(dispatcher.CmdCompile))
	mux.HandleFunc("POST /generate", s.command(dispatcher.CmdGenerate))
	mux.HandleFunc("POST /simulate", s.command(dispatcher.CmdSimulate))
	mux.HandleFunc("POST /send", s.command(dispatcher.CmdSend))
	mux.HandleFunc("GET /status", s.command(dispatcher.CmdStatus))
	return mux
}

// ListenAndServe blocks until the server stops. It returns nil after
// Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP API listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// WithBaseContext derives every request context from ctx, so cancelling it
// stops runs in flight at their next instruction boundary.
func (s *Server) WithBaseContext(ctx context.Context) *Server {
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }
	return s
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) command(cmd string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e := dispatcher.Event{
			Command: cmd,
			Params: map[string]string{
				worker.ParamName:   r.URL.Query().Get("name"),
				worker.ParamFormat: formatOf(r),
			},
		}
		if r.Method == http.MethodPost {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
			if err != nil {
				writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "BodyTooLarge", Detail: err.Error()})
				return
			}
			e.Payload = body
		}

		result, err := s.d.Dispatch(r.Context(), e)
		if err != nil {
			status, resp := errorResponse(err)
			if status >= http.StatusInternalServerError {
				s.logger.Error("Request failed", "command", cmd, "error", err)
			}
			writeJSON(w, status, resp)
			return
		}
		if result == dispatcher.Queued {
			writeJSON(w, http.StatusAccepted, map[string]string{"status": dispatcher.Queued})
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// formatOf picks the workspace format from ?format= or the content type.
func formatOf(r *http.Request) string {
	if f := r.URL.Query().Get("format"); f != "" {
		return f
	}
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	switch mt {
	case "application/json":
		return string(handlers.FormatJSON)
	case "application/yaml", "application/x-yaml", "text/yaml":
		return string(handlers.FormatYAML)
	}
	return ""
}

// errorResponse maps an error to its status code and body. Structural
// problems with a program are the client's fault and carry their code.
func errorResponse(err error) (int, ErrorResponse) {
	var se *compiler.StructuralError
	switch {
	case errors.As(err, &se):
		return http.StatusBadRequest, ErrorResponse{Error: string(se.Code), Detail: se.Detail, Path: se.Path}
	case errors.Is(err, handlers.ErrInvalidWorkspace):
		return http.StatusBadRequest, ErrorResponse{Error: "InvalidWorkspace", Detail: err.Error()}
	case errors.Is(err, handlers.ErrNothingToRun):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: string(compiler.EmptySequenceWarning), Detail: err.Error()}
	case errors.Is(err, sim.ErrRunActive):
		return http.StatusConflict, ErrorResponse{Error: "RunActive", Detail: err.Error()}
	case errors.Is(err, dispatcher.ErrQueueFull), errors.Is(err, dispatcher.ErrClosed):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "Unavailable", Detail: err.Error()}
	case errors.Is(err, handlers.ErrNoSender):
		return http.StatusNotImplemented, ErrorResponse{Error: "NoFlightBackend", Detail: err.Error()}
	case errors.Is(err, dispatcher.ErrUnknownCommand):
		return http.StatusNotFound, ErrorResponse{Error: "UnknownCommand", Detail: err.Error()}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "Internal", Detail: err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
