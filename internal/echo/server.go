// Package echo runs the loopback WebSocket server used to exercise session
// clients end to end: every text or binary message is written straight back
// on the connection that produced it.
package echo

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/wsess/internal/auth"
	"github.com/danmuck/wsess/internal/observability"
)

// ServerConfig configures the echo server standalone runtime. A non-empty
// AuthToken makes the socket route require "Authorization: Bearer <token>".
type ServerConfig struct {
	ID             string
	Addr           string
	SocketPath     string
	Subprotocols   []string
	CORSOrigins    []string
	MaxMessageSize int64
	AuthToken      string
}

// Echo server defaults for standalone runtime configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ID:             "echod.local",
		Addr:           ":8089",
		SocketPath:     "/ws",
		MaxMessageSize: 1 << 20,
	}
}

// Service runs the echo server lifecycle as a standalone process.
type Service struct {
	cfg      ServerConfig
	router   *gin.Engine
	upgrader websocket.Upgrader
	guard    auth.Validator
	started  time.Time
	active   atomic.Int64
}

// Echo service constructor using default standalone config.
func NewService() *Service {
	return NewServiceWithConfig(DefaultServerConfig())
}

// Echo service constructor using explicit config.
func NewServiceWithConfig(cfg ServerConfig) *Service {
	if strings.TrimSpace(cfg.ID) == "" {
		cfg.ID = "echod.local"
	}
	if strings.TrimSpace(cfg.SocketPath) == "" {
		cfg.SocketPath = "/ws"
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 1 << 20
	}

	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	svc := &Service{
		cfg:    cfg,
		router: r,
		upgrader: websocket.Upgrader{
			Subprotocols: cfg.Subprotocols,
			CheckOrigin:  func(r *http.Request) bool { return true },
		},
		started: time.Now(),
	}
	if strings.TrimSpace(cfg.AuthToken) != "" {
		svc.guard = auth.StaticToken{Token: cfg.AuthToken}
	}
	return svc
}

func (s *Service) RegisterRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"uptime":      time.Since(s.started).String(),
			"service":     s.cfg.ID,
			"connections": s.active.Load(),
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":   true,
			"service": s.cfg.ID,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET(s.cfg.SocketPath, s.handleSocket)
}

// Handler exposes the routed engine, mainly for tests.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Run serves until the process receives an interrupt or the listener fails.
func (s *Service) Run(ctx context.Context) error {
	s.RegisterRoutes()

	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.router,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	log.Info().
		Str("service", s.cfg.ID).
		Str("addr", s.cfg.Addr).
		Str("path", s.cfg.SocketPath).
		Msg("echo server listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Service) handleSocket(c *gin.Context) {
	if s.guard != nil {
		if err := s.guard.Validate(auth.BearerToken(c.Request.Header)); err != nil {
			log.Warn().Str("service", s.cfg.ID).Str("remote", c.ClientIP()).Msg("socket auth rejected")
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("service", s.cfg.ID).Msg("websocket upgrade failed")
		return
	}
	connID := uuid.NewString()
	s.active.Add(1)
	log.Info().
		Str("service", s.cfg.ID).
		Str("conn", connID).
		Str("subprotocol", conn.Subprotocol()).
		Str("remote", conn.RemoteAddr().String()).
		Msg("connection open")

	s.echoLoop(conn, connID)
}

func (s *Service) echoLoop(conn *websocket.Conn, connID string) {
	defer func() {
		_ = conn.Close()
		s.active.Add(-1)
	}()

	conn.SetReadLimit(s.cfg.MaxMessageSize)
	echoed := 0
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("conn", connID).Msg("connection dropped")
			}
			break
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if err := conn.WriteMessage(msgType, payload); err != nil {
			log.Warn().Err(err).Str("conn", connID).Msg("echo write failed")
			break
		}
		echoed++
	}

	log.Info().
		Str("service", s.cfg.ID).
		Str("conn", connID).
		Int("echoed", echoed).
		Msg("connection closed")
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
