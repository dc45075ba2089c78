package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dormouse/backend/internal/lifecycle"
	"github.com/dormouse/backend/internal/ws"
	"github.com/gorilla/websocket"
)

// Controller is the slice of the lifecycle machine the server needs:
// recording activity and answering status queries.
type Controller interface {
	Activate()
	Snapshot() lifecycle.Snapshot
}

// Server is the primary endpoint. Application paths go through the
// activity middleware and then to the opaque application handler; the
// server itself adds no business semantics. The supervision surface
// (/healthz, /api/status, /ws) is deliberately outside the middleware so
// probes and watching supervisors cannot keep the service awake.
type Server struct {
	host        string
	port        int
	controller  Controller
	app         http.Handler
	broadcaster *ws.Broadcaster

	mu         sync.Mutex
	httpServer *http.Server
	ln         net.Listener
}

func New(host string, port int, controller Controller, app http.Handler, broadcaster *ws.Broadcaster) *Server {
	return &Server{
		host:        host,
		port:        port,
		controller:  controller,
		app:         app,
		broadcaster: broadcaster,
	}
}

func (s *Server) Name() string { return "primary endpoint" }

// Start binds the primary port and begins serving. A bind failure is
// returned with nothing left open.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding primary port: %w", err)
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)
	srv := &http.Server{Handler: mux}

	s.mu.Lock()
	s.ln = ln
	s.httpServer = srv
	s.mu.Unlock()

	log.Printf("primary endpoint on %s", addr)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("primary endpoint: %v", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully: the listener closes immediately,
// so no new connection succeeds, while requests already accepted run to
// completion within the caller's deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer, s.ln = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Addr returns the bound address, for tests that listen on port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/", s.withActivity(s.app))
}

// withActivity records every request as activity before delegating.
// Activation happens first and unconditionally: a failing application
// handler is still evidence the service is in use, and its response passes
// through unchanged.
func (s *Server) withActivity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.controller.Activate()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{
		"now": time.Now().UnixMilli(),
	})
}

type statusResponse struct {
	lifecycle.Snapshot
	Observers int `json:"observers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusResponse{
		Snapshot:  s.controller.Snapshot(),
		Observers: s.broadcaster.ClientCount(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	log.Printf("supervisor connected: %s", r.RemoteAddr)
	c := s.broadcaster.AddClient(conn)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			log.Printf("supervisor disconnected: %s", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := parsed.Host
	if host == "" {
		return false
	}
	if host == r.Host {
		return true
	}
	for _, local := range []string{"localhost", "127.0.0.1", "[::1]"} {
		if host == local || strings.HasPrefix(host, local+":") {
			return true
		}
	}
	return false
}
