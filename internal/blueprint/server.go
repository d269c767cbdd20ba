package blueprint

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var allowedOrigins = []string{
	"http://localhost:5173",
	"http://localhost:8080",
}

// Handler serves the blueprint endpoint.
type Handler struct {
	gen     Generator
	limiter *Limiter
	logger  *log.Logger
}

func NewHandler(gen Generator, limiter *Limiter, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Handler{gen: gen, limiter: limiter, logger: logger}
}

// Generate handles POST /api/blueprint. Rate limiting and validation both
// happen before the generator is called; generator errors are returned
// verbatim.
func (h *Handler) Generate(c *gin.Context) {
	if h.limiter != nil && !h.limiter.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": ErrRateLimited.Error()})
		return
	}

	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	text, err := h.gen.Generate(c.Request.Context(), req)
	if err != nil {
		h.logger.Printf("blueprint generation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"blueprint": text})
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// NewRouter builds the gin engine with the standard middleware stack.
func NewRouter(h *Handler, maxBodyBytes int64, logger *log.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(logger))
	engine.Use(MaxBodySize(maxBodyBytes))
	engine.Use(CORS())
	registerRoutes(engine, h)
	return engine
}

func registerRoutes(r *gin.Engine, h *Handler) {
	api := r.Group("/api")
	{
		api.GET("/health", handleHealth)
		api.POST("/blueprint", h.Generate)
	}
}

func CORS() gin.HandlerFunc {
	config := cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "X-Requested-With"},
	}
	return cors.New(config)
}

func RequestLogger(logger *log.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = log.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		logger.Printf("%s %s %d %s", c.Request.Method, c.FullPath(), c.Writer.Status(), duration)
	}
}

func MaxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// Server runs the router on a port.
type Server struct {
	engine *gin.Engine
	addr   string
}

func NewServer(h *Handler, port string, maxBodyBytes int64, logger *log.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	return &Server{engine: NewRouter(h, maxBodyBytes, logger), addr: fmt.Sprintf(":%s", port)}
}

// Handler exposes the router for embedding and tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Run() error {
	err := s.engine.Run(s.addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
