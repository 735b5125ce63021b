package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vango-dev/observ/pkg/observ"
)

// ServerConfig configures the inspector server.
type ServerConfig struct {
	// Address is the listen address for ListenAndServe (default ":7070").
	Address string

	// Gatherer serves /metrics. Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Logger receives request and stream logs. Default: slog.Default().
	Logger *slog.Logger

	// CheckOrigin validates WebSocket origins. Default: same host only.
	CheckOrigin func(r *http.Request) bool

	// WriteTimeout bounds each WebSocket write (default 5s).
	WriteTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown (default 10s).
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns the default inspector configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:         ":7070",
		Gatherer:        prometheus.DefaultGatherer,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server serves a runtime's graph and recorded flushes.
type Server struct {
	rt     *observ.Runtime
	rec    *Recorder
	config ServerConfig
	logger *slog.Logger

	router   chi.Router
	upgrader websocket.Upgrader

	mu         sync.Mutex
	clients    map[string]*client
	httpServer *http.Server
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan Record
}

// Event is a message on the /events stream.
type Event struct {
	Type   string  `json:"type"`
	Client string  `json:"client,omitempty"`
	Record *Record `json:"record,omitempty"`
}

// NewServer creates an inspector for rt. rec may be nil, in which case
// flush endpoints report nothing.
func NewServer(rt *observ.Runtime, rec *Recorder, config ServerConfig) *Server {
	defaults := DefaultServerConfig()
	if config.Address == "" {
		config.Address = defaults.Address
	}
	if config.Gatherer == nil {
		config.Gatherer = defaults.Gatherer
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = NewRecorder(1)
	}

	s := &Server{
		rt:      rt,
		rec:     rec,
		config:  config,
		logger:  logger.With("component", "inspect"),
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     config.CheckOrigin,
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/graph", s.handleGraph)
	r.Get("/stats", s.handleStats)
	r.Get("/flushes", s.handleFlushes)
	r.Get("/flushes.jsonl", s.handleFlushesJSONL)
	r.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/events", s.handleEvents)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// Handler returns the HTTP handler, for mounting under another router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	graph := s.rt.Graph()
	if graph == nil {
		graph = []observ.NodeSubscribers{}
	}
	writeJSON(w, graph)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, struct {
		observ.Stats
		Session  string `json:"session"`
		Recorded int    `json:"recorded"`
		Dropped  uint64 `json:"dropped"`
		Clients  int    `json:"clients"`
	}{
		Stats:    s.rt.Stats(),
		Session:  s.rec.Session(),
		Recorded: s.rec.Len(),
		Dropped:  s.rec.Dropped(),
		Clients:  s.ClientCount(),
	})
}

func (s *Server) handleFlushes(w http.ResponseWriter, r *http.Request) {
	records := s.rec.Records()
	if records == nil {
		records = []Record{}
	}
	writeJSON(w, records)
}

func (s *Server) handleFlushesJSONL(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	if err := s.rec.WriteJSONL(w); err != nil {
		s.logger.Error("write trace failed", "error", err)
	}
}

// handleEvents streams every finished flush to a WebSocket client. The
// first message is a hello carrying the client id.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:   uuid.Must(uuid.NewV7()).String(),
		conn: conn,
		send: make(chan Record, 64),
	}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	unsubscribe := s.rec.Subscribe(func(rec Record) {
		select {
		case c.send <- rec:
		default:
			s.logger.Warn("inspector client too slow, dropping record", "client", c.id, "flush", rec.Flush)
		}
	})
	done := make(chan struct{})

	defer func() {
		unsubscribe()
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		conn.Close()
	}()

	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
					websocket.CloseNormalClosure) {
					s.logger.Error("read error", "client", c.id, "error", err)
				}
				return
			}
		}
	}()

	if err := s.write(conn, Event{Type: "hello", Client: c.id}); err != nil {
		return
	}
	for {
		select {
		case rec := <-c.send:
			if err := s.write(conn, Event{Type: "flush", Record: &rec}); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) write(conn *websocket.Conn, ev Event) error {
	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := conn.WriteJSON(ev); err != nil {
		s.logger.Debug("websocket write failed", "error", err)
		return err
	}
	return nil
}

// ClientCount returns the number of connected stream clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("inspector starting", "address", s.config.Address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown stops the server and closes stream clients.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.mu.Lock()
	srv := s.httpServer
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}
	s.logger.Info("inspector shutdown complete")
	return nil
}
