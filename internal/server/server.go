package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/neo/interview_agent/internal/agent"
	"github.com/neo/interview_agent/internal/auth"
	"github.com/neo/interview_agent/internal/logging"
	"github.com/neo/interview_agent/internal/monitor"
	"github.com/neo/interview_agent/internal/session"
)

const (
	shutdownTimeout   = 15 * time.Second
	endSessionTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server serves the token API and one websocket room per participant
type Server struct {
	config    Config
	router    *gin.Engine
	auth      *auth.Auth
	framework agent.Framework
	monitor   *monitor.Monitor
	opts      session.Options

	// base bounds every room; cancelled on shutdown
	base   context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	rooms map[string]*session.Manager
	wg    sync.WaitGroup
}

// NewServer creates a new HTTP server with WebSocket support
func NewServer(cfg Config, a *auth.Auth, framework agent.Framework, mon *monitor.Monitor, opts session.Options) *Server {
	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:    cfg,
		router:    gin.New(),
		auth:      a,
		framework: framework,
		monitor:   mon,
		opts:      opts,
		base:      base,
		cancel:    cancel,
		rooms:     make(map[string]*session.Manager),
	}

	s.router.Use(
		RequestIDMiddleware(),
		LoggingMiddleware(),
		RecoveryMiddleware(cfg.Development),
		CORSMiddleware(),
		ErrorHandler(cfg.Development),
	)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health)

	api := s.router.Group("/api")
	{
		api.POST("/token", s.issueToken)
		api.GET("/presets", s.listPresets)
		api.GET("/voices", s.listVoices)
		api.GET("/voices/:voice", s.getVoice)
		api.GET("/monitor/stats", s.monitorStats)
		api.POST("/monitor/export", s.exportEvents)
	}

	s.router.GET("/ws/session", s.auth.TokenMiddleware(), s.handleSessionWebSocket)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// ActiveSessions is the number of connected rooms
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (s *Server) track(room string, m *session.Manager) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[room]; exists {
		return false
	}
	s.rooms[room] = m
	return true
}

func (s *Server) untrack(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room)
}

// Run serves until ctx is cancelled, then shuts down gracefully and ends
// every open session
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.config.tls() {
		srv.TLSConfig = &tls.Config{NextProtos: []string{"h2", "http/1.1"}}
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Server listening", map[string]interface{}{"addr": srv.Addr, "tls": s.config.tls()})
		var err error
		if s.config.tls() {
			err = srv.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		s.cancel()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Shutdown(shutdownCtx)
	return err
}

// Shutdown cancels every room and waits for their sessions to end
func (s *Server) Shutdown(ctx context.Context) {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logging.Warn("Timed out waiting for sessions to end", map[string]interface{}{"open_sessions": s.ActiveSessions()})
	}
}
