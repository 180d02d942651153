package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/scbrf/comments/internal/readcache"
	"github.com/scbrf/comments/internal/thread"
)

// Options tunes the server beyond its collaborators.
type Options struct {
	Port          int
	RatePerSecond float64
	RateBurst     int
}

// Server is the HTTP boundary: it parses mutation requests, runs them
// through the validator and the state engine, and serves plain reads from
// the cache.
type Server struct {
	echo   *echo.Echo
	port   int
	engine *thread.Engine
	cache  *readcache.Cache
}

// NewServer creates a new API server
func NewServer(engine *thread.Engine, cache *readcache.Cache, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		MaxAge:       86400,
	}))

	server := &Server{
		echo:   e,
		port:   opts.Port,
		engine: engine,
		cache:  cache,
	}

	server.setupRoutes(opts)

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes(opts Options) {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	// Mutations are rate limited per remote address; plain reads are not.
	var limit echo.MiddlewareFunc
	if opts.RatePerSecond > 0 {
		limit = middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:  rate.Limit(opts.RatePerSecond),
				Burst: opts.RateBurst,
			},
		))
	}

	s.echo.GET("/:site/:article", s.getArticle)
	if limit != nil {
		s.echo.POST("/:site/:article", s.postMutation, limit)
	} else {
		s.echo.POST("/:site/:article", s.postMutation)
	}
}

// Start begins the API server
func (s *Server) Start() error {
	// Start server in a goroutine
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
