package gateway

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/time/rate"

	"github.com/adred-codev/wsgate/internal/metrics"
	"github.com/adred-codev/wsgate/internal/registry"
	"github.com/adred-codev/wsgate/internal/session"
)

type Config struct {
	Addr           string
	MaxConnections int
	AcceptRate     float64
	AcceptBurst    int
	ShutdownGrace  time.Duration
}

// Server is the client-facing transport adapter: it accepts HTTP connections,
// upgrades them to WebSocket and hands each one to the session handler on its
// own goroutine. It also serves /health and /metrics.
type Server struct {
	config   Config
	logger   zerolog.Logger
	sessions *session.Handler
	registry *registry.Registry

	listener   net.Listener
	httpServer *http.Server

	limiter        *rate.Limiter
	connectionsSem chan struct{}

	conns        sync.Map // *wsConn -> struct{}
	wg           sync.WaitGroup
	shuttingDown int32
	startTime    time.Time
}

func NewServer(cfg Config, sessions *session.Handler, reg *registry.Registry, logger zerolog.Logger) *Server {
	return &Server{
		config:         cfg,
		logger:         logger,
		sessions:       sessions,
		registry:       reg,
		limiter:        rate.NewLimiter(rate.Limit(cfg.AcceptRate), cfg.AcceptBurst),
		connectionsSem: make(chan struct{}, cfg.MaxConnections),
		startTime:      time.Now(),
	}
}

// Start binds the listener and begins serving. Returns once the listener is
// bound; the accept loop runs on its own goroutine.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Handler:        mux,
		ReadTimeout:    10 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error().
				Err(err).
				Msg("Server accept loop error")
		}
	}()

	s.logger.Info().
		Str("address", s.config.Addr).
		Int("max_connections", s.config.MaxConnections).
		Msg("WebSocket gateway listening")
	return nil
}

// Addr reports the bound listener address. Useful when Addr was ":0".
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if atomic.LoadInt32(&s.shuttingDown) == 1 {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	if !s.limiter.Allow() {
		metrics.ConnectionsRejected.WithLabelValues("rate_limited").Inc()
		http.Error(w, "Too many connection attempts", http.StatusTooManyRequests)
		return
	}

	select {
	case s.connectionsSem <- struct{}{}:
	default:
		metrics.ConnectionsRejected.WithLabelValues("capacity").Inc()
		s.logger.Warn().
			Int("max_connections", s.config.MaxConnections).
			Msg("Connection rejected - server at capacity")
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		<-s.connectionsSem
		metrics.ConnectionsRejected.WithLabelValues("upgrade_failed").Inc()
		s.logger.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("Failed to upgrade connection")
		return
	}

	metrics.ConnectionsTotal.Inc()

	c := newWSConn(conn)
	s.conns.Store(c, struct{}{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.conns.Delete(c)
			<-s.connectionsSem
		}()
		// The session owns the connection from here: handshake,
		// registration, wait-for-close, conditional deregistration.
		s.sessions.Run(c)
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	currentConns := len(s.connectionsSem)
	memoryMB := processMemoryMB()

	json.NewEncoder(w).Encode(map[string]any{
		"status": "healthy",
		"connections": map[string]any{
			"current": currentConns,
			"max":     s.config.MaxConnections,
		},
		"sessions":  s.registry.Len(),
		"memory_mb": memoryMB,
		"uptime":    time.Since(s.startTime).Seconds(),
	})
}

func processMemoryMB() float64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return 0
	}
	return float64(memInfo.RSS) / 1024 / 1024
}

// Shutdown closes the listener, force-closes every open stream (which
// unblocks every waiting session so its cleanup runs) and waits up to the
// configured grace period for sessions to finish.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("Initiating graceful shutdown")
	atomic.StoreInt32(&s.shuttingDown, 1)

	if s.httpServer != nil {
		s.httpServer.Close()
	}

	closed := 0
	s.conns.Range(func(key, value any) bool {
		if c, ok := key.(*wsConn); ok {
			c.Close()
			closed++
		}
		return true
	})
	s.logger.Info().
		Int("connections_closed", closed).
		Msg("Closed all client connections")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Graceful shutdown completed")
		return nil
	case <-time.After(s.config.ShutdownGrace):
		s.logger.Warn().
			Dur("grace_period", s.config.ShutdownGrace).
			Msg("Shutdown grace period expired with sessions still running")
		return fmt.Errorf("shutdown grace period expired")
	}
}
