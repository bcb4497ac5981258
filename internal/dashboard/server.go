// Package dashboard serves the local HTTP surface of todosync: the REST API
// over the todo service, the WebSocket endpoint that streams item changes
// to clients subscribed per list, health and Prometheus metrics.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mschirtzinger/todosync/internal/metrics"
	"github.com/mschirtzinger/todosync/internal/notify"
	"github.com/mschirtzinger/todosync/internal/schema"
)

// Service is the subset of *todo.Service the API needs.
type Service interface {
	Lists(ctx context.Context) ([]schema.List, error)
	GetList(ctx context.Context, id int64) (schema.List, error)
	CreateList(ctx context.Context, name string) (schema.List, error)
	UpdateList(ctx context.Context, id int64, patch schema.ListPatch) (schema.List, error)
	DeleteList(ctx context.Context, id int64) error
	Items(ctx context.Context, listID int64) ([]schema.Item, error)
	CreateItem(ctx context.Context, listID int64, description string, done bool) (schema.Item, error)
	GetItem(ctx context.Context, listID, itemID int64) (schema.Item, error)
	EnqueueItemUpdate(ctx context.Context, listID, itemID int64, patch schema.ItemPatch) (schema.Item, error)
	DeleteItem(ctx context.Context, listID, itemID int64) error
}

// Hub manages per-list subscriptions. *notify.Notifier implements it.
type Hub interface {
	Subscribe(listID int64, sub notify.Subscriber) notify.Handle
	Unsubscribe(h notify.Handle)
	UnsubscribeAll(sub notify.Subscriber)
}

// Config holds server configuration.
type Config struct {
	// Addr to listen on, e.g. ":3000". Port 0 picks a free port.
	Addr string

	// Logger for server activity. Nil disables logging.
	Logger *zap.SugaredLogger

	// Metrics served on /metrics. Nil serves 404 there.
	Metrics *metrics.Metrics
}

// Server routes HTTP and WebSocket traffic.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	router   chi.Router

	service Service
	hub     Hub
	metrics *metrics.Metrics

	clients   map[*client]struct{}
	clientsMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *zap.SugaredLogger
}

// NewServer creates a Server. Call Start to listen, or mount Handler
// elsewhere.
func NewServer(cfg Config, svc Service, hub Hub) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:    cfg.Addr,
		service: svc,
		hub:     hub,
		metrics: cfg.Metrics,
		clients: make(map[*client]struct{}),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With("component", "dashboard"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/ws", s.handleWebSocket)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/todolists", func(r chi.Router) {
		r.Get("/", s.listLists)
		r.Post("/", s.createList)

		r.Route("/{listID}", func(r chi.Router) {
			r.Get("/", s.getList)
			r.Put("/", s.updateList)
			r.Patch("/", s.updateList)
			r.Delete("/", s.deleteList)

			r.Get("/items", s.listItems)
			r.Post("/items", s.createItem)
			r.Get("/items/{itemID}", s.getItem)
			r.Patch("/items/{itemID}", s.updateItem)
			r.Put("/items/{itemID}", s.updateItem)
			r.Delete("/items/{itemID}", s.deleteItem)
		})
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening and serving in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	// No WriteTimeout: it would cut off WebSocket streams.
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Infof("Listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("Server error: %v", err)
		}
	}()
	return nil
}

// Shutdown closes every WebSocket connection, stops the HTTP server and
// waits for connection handlers to return or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	s.clientsMu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}

	var shutdownErr error
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if shutdownErr == nil {
			shutdownErr = fmt.Errorf("timed out waiting for connections: %w", ctx.Err())
		}
	}

	s.logger.Info("Server stopped")
	return shutdownErr
}

// Addr returns the listening address once started, the configured one before.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debugf("HTTP %s %s %d %s %s",
			r.Method,
			r.URL.Path,
			ww.Status(),
			time.Since(start),
			middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
