// Package gateway accepts WebSocket connections from platform bridges and
// feeds their message events into the moderation engine. A bridge connects
// to /ws and streams one JSON-encoded message event per text frame.
//
// Bridge connections are few (one per platform adapter), so each one gets a
// dedicated read goroutine; there is no fan-out machinery here.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/sentinel/mod-bot/internal/messaging"
)

// ServerConfig holds tunable parameters for the gateway.
type ServerConfig struct {
	ListenAddr  string        // address to listen on, e.g. ":8081"
	ReadTimeout time.Duration // per-frame read deadline; 0 disables it
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:  ":8081",
		ReadTimeout: 5 * time.Minute,
	}
}

// Server is the WebSocket ingest gateway. Every decoded message event is
// passed to the Handler callback.
type Server struct {
	config     ServerConfig
	handler    func(msg messaging.InboundMessage)
	httpServer *http.Server

	mu    sync.Mutex
	conns map[string]net.Conn
}

// NewServer creates a gateway that forwards decoded events to handler.
func NewServer(config ServerConfig, handler func(msg messaging.InboundMessage)) *Server {
	return &Server{
		config:  config,
		handler: handler,
		conns:   make(map[string]net.Conn),
	}
}

// Start begins accepting bridge connections and blocks until the server is
// shut down.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: mux,
	}

	log.Printf("[gateway] listening on %s", s.config.ListenAddr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway: http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and closes the active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for id, conn := range s.conns {
		conn.Close()
		delete(s.conns, id)
	}
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("[gateway] upgrade failed: %v", err)
		return
	}

	connID := uuid.New().String()
	s.mu.Lock()
	s.conns[connID] = conn
	s.mu.Unlock()

	log.Printf("[gateway] bridge connected conn=%s remote=%s", connID, conn.RemoteAddr())

	go s.readLoop(connID, conn)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok")
}

// readLoop reads frames until the bridge disconnects. Each text frame is one
// JSON message event; malformed frames are logged and skipped rather than
// killing the connection.
func (s *Server) readLoop(connID string, conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, connID)
		s.mu.Unlock()
		conn.Close()
		log.Printf("[gateway] bridge disconnected conn=%s", connID)
	}()

	for {
		if s.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}

		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("[gateway] read error conn=%s: %v", connID, err)
			}
			return
		}

		var event messaging.InboundMessage
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("[gateway] malformed event conn=%s: %v", connID, err)
			continue
		}
		if event.MessageID == "" {
			// Bridges for platforms without stable message IDs get one
			// assigned so the de-duplication ledger still works.
			event.MessageID = uuid.New().String()
		}

		s.handler(event)
	}
}
