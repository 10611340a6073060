// Package telemetry is an optional, read-only position/queue-depth stream
// for a supervisory UI, mirroring Klipper's motion_report/Moonraker status
// push. It never drives motion; it only observes Controller.Stats().
package telemetry

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"stepcore/internal/logging"
	"stepcore/motion"
)

// StatsSource is the read side of motion.Controller this server polls.
type StatsSource interface {
	Stats() motion.ControllerStats
}

// Server is a minimal websocket broadcaster of ControllerStats snapshots.
type Server struct {
	addr   string
	source StatsSource
	period time.Duration
	log    *logging.Logger

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte

	httpServer *http.Server
}

// New builds a telemetry server. addr is the HTTP listen address (e.g.
// ":7130"); period is how often stats are polled and broadcast. log may be
// nil, in which case a no-op logger is used.
func New(addr string, source StatsSource, period time.Duration, log *logging.Logger) *Server {
	if period <= 0 {
		period = 250 * time.Millisecond
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Server{
		addr:    addr,
		source:  source,
		period:  period,
		log:     log,
		clients: make(map[*websocket.Conn]chan []byte),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start begins serving /stream and broadcasting until stop is closed.
func (s *Server) Start(stop <-chan struct{}) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleStream)
	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}

	go s.broadcastLoop(stop)

	go func() {
		<-stop
		s.httpServer.Close()
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("telemetry: websocket upgrade error: %v", err)
		return
	}

	ch := make(chan []byte, 8)
	s.mu.Lock()
	s.clients[conn] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for msg := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (s *Server) broadcastLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			stats := s.source.Stats()
			payload, err := json.Marshal(stats)
			if err != nil {
				continue
			}
			s.mu.RLock()
			for _, ch := range s.clients {
				select {
				case ch <- payload:
				default:
					// slow client, drop this frame rather than block the tick
				}
			}
			s.mu.RUnlock()
		}
	}
}
