// Package server exposes the evolution subsystem over HTTP: read
// endpoints backed by the coordinator's published snapshot, manual
// override endpoints, and a websocket stream of cycle events.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sprout/internal/evolution"
	"sprout/internal/logging"
	"sprout/internal/skilltree"
)

// Config holds the HTTP listener settings.
type Config struct {
	Addr         string
	AllowOrigins []string
	Debug        bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns production listener settings.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8820",
		AllowOrigins: []string{"*"},
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Coordinator is the slice of the evolution coordinator the API needs.
type Coordinator interface {
	Snapshot() *evolution.Snapshot
	RunCycle(ctx context.Context) (evolution.CycleResult, error)
	ForceUnlock(tree skilltree.TreeID, skillID string) error
	SetBasePriority(tree skilltree.TreeID, skillID string, priority float64) error
	AddSkill(tree skilltree.TreeID, def skilltree.Definition) error
	AddListener(fn evolution.CycleListener)
}

// Server wraps the gin engine and the websocket event hub.
type Server struct {
	coordinator Coordinator
	logger      logging.Logger
	engine      *gin.Engine
	httpServer  *http.Server
	hub         *eventHub
	upgrader    websocket.Upgrader
	startTime   time.Time
}

// New wires routes and middleware. The server subscribes itself to cycle
// events so websocket clients see every cycle.
func New(cfg Config, coordinator Coordinator, logger logging.Logger) *Server {
	logger = logging.OrNop(logger)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowOrigins) == 1 && cfg.AllowOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	corsConfig.AllowWebSockets = true
	engine.Use(cors.New(corsConfig))

	s := &Server{
		coordinator: coordinator,
		logger:      logger,
		engine:      engine,
		hub:         newEventHub(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		startTime: time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	coordinator.AddListener(s.hub.broadcast)
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.engine.Group("/api")

	api.GET("/health", s.handleHealth)
	api.GET("/snapshot", s.handleSnapshot)
	api.GET("/trees/:tree", s.handleTree)
	api.GET("/trees/:tree/skills/:id", s.handleSkill)
	api.GET("/index", s.handleIndex)
	api.GET("/failures", s.handleFailures)

	api.POST("/cycles", s.handleRunCycle)
	api.POST("/trees/:tree/skills", s.handleAddSkill)
	api.POST("/trees/:tree/skills/:id/unlock", s.handleForceUnlock)
	api.PUT("/trees/:tree/skills/:id/priority", s.handleSetPriority)

	api.GET("/events", s.handleEvents)
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("api server listening on %s", s.httpServer.Addr)
	s.hub.start()
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains connections and stops the event hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.stop()
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the underlying engine for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}
