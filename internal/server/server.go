// Package server exposes coordinated tables over websockets. Each
// connection is one session; joining a table binds the session to a
// seat until the socket drops.
package server

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"

	"github.com/cardroom/holdem/internal/coordinator"
	"github.com/cardroom/holdem/internal/table"
)

// Server hosts a set of tables behind a websocket endpoint.
type Server struct {
	config   *Config
	logger   *log.Logger
	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu     sync.RWMutex
	tables map[string]*coordinator.Coordinator
	conns  map[*Connection]struct{}
}

// New creates a server and one coordinator per configured table.
func New(config *Config, logger *log.Logger) (*Server, error) {
	s := &Server{
		config: config,
		logger: logger.WithPrefix("server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		tables: make(map[string]*coordinator.Coordinator),
		conns:  make(map[*Connection]struct{}),
	}

	for _, tc := range config.Tables {
		if _, dup := s.tables[tc.Name]; dup {
			return nil, fmt.Errorf("duplicate table %q", tc.Name)
		}
		tbl := table.New(table.Config{
			Seats:      tc.Seats,
			SmallBlind: tc.SmallBlind,
			BigBlind:   tc.BigBlind,
			BuyIn:      tc.BuyIn,
		}, rand.New(rand.NewSource(time.Now().UnixNano())), logger.With("table", tc.Name))
		coord := coordinator.New(tbl, quartz.NewReal(), tc.TurnTimeout(), logger.With("table", tc.Name))
		s.tables[tc.Name] = coord
	}
	return s, nil
}

// Table looks up a coordinator by table name.
func (s *Server) Table(name string) (*coordinator.Coordinator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coord, ok := s.tables[name]
	return coord, ok
}

// TableNames lists the hosted tables in stable order.
func (s *Server) TableNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start serves until the context is canceled, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	addr := s.config.Addr()
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr, "tables", len(s.tables))
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	s.logger.Info("shutting down")

	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	coords := make([]*coordinator.Coordinator, 0, len(s.tables))
	for _, coord := range s.tables {
		coords = append(coords, coord)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	for _, coord := range coords {
		coord.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection", "error", err)
		return
	}

	conn := NewConnection(wsConn, s, s.logger)
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	conn.Start()
	go func() {
		<-conn.Done()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	active := len(s.conns)
	s.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","connections":%d,"tables":%d}`, active, len(s.tables))
}
