// Package server exposes the hierarchy viewer over HTTP: the embedded viewer
// page, the SSE hierarchy stream, and the synchronous mutation endpoints.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/browser"

	"github.com/danielolaszy/hierview/internal/config"
	"github.com/danielolaszy/hierview/internal/hierarchy"
	"github.com/danielolaszy/hierview/internal/logging"
	"github.com/danielolaszy/hierview/pkg/models"
)

// Gateway is everything the server needs from the tracker adapter.
type Gateway interface {
	hierarchy.Gateway

	// CreateEpic creates an epic under a strategic initiative.
	CreateEpic(ctx context.Context, req models.CreateEpicRequest) (models.Issue, error)

	// CreateTask creates a task under an epic.
	CreateTask(ctx context.Context, req models.CreateTaskRequest) (models.Issue, error)

	// AddComment appends a comment to an issue.
	AddComment(ctx context.Context, issueKey, body string) error

	// Ready reports whether the adapter credential is usable.
	Ready() bool
}

// Server routes HTTP requests to the assembler and the tracker adapter.
type Server struct {
	cfg       *config.Config
	gateway   Gateway
	assembler *hierarchy.Assembler
}

// New creates a server over the given gateway.
func New(cfg *config.Config, gateway Gateway) *Server {
	return &Server{
		cfg:       cfg,
		gateway:   gateway,
		assembler: hierarchy.NewAssembler(gateway, hierarchy.DefaultWorkers),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/hierarchy/stream", s.handleStream)
	mux.HandleFunc("/api/create-epic", s.handleCreateEpic)
	mux.HandleFunc("/api/create-task", s.handleCreateTask)
	mux.HandleFunc("/api/add-comment", s.handleAddComment)
	return mux
}

// connStreamKey carries the per-connection stream guard installed by
// ConnContext; at most one hierarchy stream may be active per connection.
type connStreamKey struct{}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		ConnContext: func(ctx context.Context, c net.Conn) context.Context {
			return context.WithValue(ctx, connStreamKey{}, new(atomic.Bool))
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logging.Info("server listening",
		"addr", addr,
		"viewer", fmt.Sprintf("http://localhost:%d/", s.cfg.Server.Port))

	if s.cfg.Server.OpenBrowser {
		go openViewer(s.cfg.Server.Port)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logging.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

// openViewer opens the viewer page in the default browser once the listener
// has had a moment to come up.
func openViewer(port int) {
	time.Sleep(time.Second)
	url := fmt.Sprintf("http://localhost:%d/", port)
	if err := browser.OpenURL(url); err != nil {
		logging.Warn("failed to open browser", "url", url, "error", err)
	}
}
