// Package panel implements the web status panel: a small HTML page
// showing the aggregate connection indicator, the pairing QR code for
// linking a new session, and a JSON status endpoint. It holds no state of
// its own; everything is read through StatusAPI.
package panel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// StatusAPI is the narrow view of the supervisor the panel renders from.
type StatusAPI interface {
	// Connected reports whether any session has a live connection.
	Connected() bool

	// LatestPairing returns the outstanding pairing challenge, if any.
	LatestPairing() (code string, ok bool)

	// StatusSnapshot returns every known session's status line.
	StatusSnapshot() map[string]string
}

// Server serves the status panel.
type Server struct {
	api    StatusAPI
	logger *slog.Logger
	http   *http.Server
}

// New creates a panel server listening on addr.
func New(addr string, api StatusAPI, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		api:    api,
		logger: logger.With("component", "panel"),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/qr", s.handleQRPage).Methods(http.MethodGet)
	r.HandleFunc("/qr.png", s.handleQRImage).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleAPIStatus).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("panel listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
