package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"mt5rtd/internal/application/usecase/rtd"
)

// Worker is the control surface served over HTTP.
type Worker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Subscribe(room, symbol string) bool
	Unsubscribe(room, symbol string) bool
	SymbolsForRoom(room string) []string
	Rooms() map[string][]string
	Stats() rtd.Stats
}

type Server struct {
	worker Worker
	engine *gin.Engine
	srv    *http.Server
}

type subscriptionReq struct {
	Room   string `json:"room" binding:"required"`
	Symbol string `json:"symbol" binding:"required"`
}

// New builds the gin engine. ws may be nil when the websocket hub is disabled.
func New(addr string, worker Worker, ws http.HandlerFunc) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{worker: worker, engine: engine}
	s.setupRoutes(ws)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(ws http.HandlerFunc) {
	s.engine.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	g := s.engine.Group("/api/rtd")
	g.POST("/start", s.start)
	g.POST("/stop", s.stop)
	g.GET("/stats", s.stats)
	g.POST("/subscribe", s.subscribe)
	g.POST("/unsubscribe", s.unsubscribe)
	g.GET("/rooms", s.rooms)
	g.GET("/rooms/:room", s.room)

	if ws != nil {
		s.engine.GET("/ws", gin.WrapF(ws))
	}
}

func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe blocks until Shutdown.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.srv.Addr).Msg("http api listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }

func (s *Server) start(c *gin.Context) {
	if err := s.worker.Start(c.Request.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, rtd.ErrConnect) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "active"})
}

func (s *Server) stop(c *gin.Context) {
	if err := s.worker.Stop(c.Request.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, rtd.ErrStopTimeout) {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "inactive"})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.worker.Stats())
}

func (s *Server) subscribe(c *gin.Context) {
	var req subscriptionReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Room) == "" || strings.TrimSpace(req.Symbol) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room and symbol are required"})
		return
	}
	added := s.worker.Subscribe(req.Room, req.Symbol)
	c.JSON(http.StatusOK, gin.H{
		"room":    req.Room,
		"added":   added,
		"symbols": s.worker.SymbolsForRoom(req.Room),
	})
}

func (s *Server) unsubscribe(c *gin.Context) {
	var req subscriptionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room and symbol are required"})
		return
	}
	removed := s.worker.Unsubscribe(req.Room, req.Symbol)
	c.JSON(http.StatusOK, gin.H{
		"room":    req.Room,
		"removed": removed,
		"symbols": s.worker.SymbolsForRoom(req.Room),
	})
}

func (s *Server) rooms(c *gin.Context) {
	c.JSON(http.StatusOK, s.worker.Rooms())
}

func (s *Server) room(c *gin.Context) {
	room := c.Param("room")
	c.JSON(http.StatusOK, gin.H{"room": room, "symbols": s.worker.SymbolsForRoom(room)})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	}
}
