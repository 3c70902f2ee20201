// Package apiserver is the external interface layer (spec §4.8): parsing,
// validation, mapping gating rejections to status codes, and dispatching
// to the domain packages. Grounded on the teacher's internal/api/server.go
// (gin.Engine + CORS + rate limiter + graceful shutdown), trimmed from a
// multi-user trading-bot surface to this module's single-instrument
// recommendation surface.
package apiserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/wangqiang-666/ETH-sub009/internal/decisionchain"
	"github.com/wangqiang-666/ETH-sub009/internal/gating"
	"github.com/wangqiang-666/ETH-sub009/internal/integration"
	"github.com/wangqiang-666/ETH-sub009/internal/persistence"
	"github.com/wangqiang-666/ETH-sub009/internal/pricefeed"
	"github.com/wangqiang-666/ETH-sub009/internal/slippage"
	"github.com/wangqiang-666/ETH-sub009/internal/statistics"
	"github.com/wangqiang-666/ETH-sub009/internal/tracker"
)

// rateLimiter is a simple in-memory sliding-window limiter per endpoint
// (it keeps the timestamps of requests inside the trailing window),
// carried over from the teacher's api.RateLimiter.
type rateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{requests: make(map[string][]time.Time), limit: limit, window: window}
}

func (r *rateLimiter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}
	r.requests[key] = append(recent, now)
	return true
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if !s.limiter.allow(path) {
			writeError(c, newAPIError("RATE_LIMITED", http.StatusTooManyRequests, "too many requests to this endpoint"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// shutdownGuardMiddleware rejects every new request once cooperative
// shutdown has begun (spec §5 "new requests are rejected with
// SHUTTING_DOWN").
func (s *Server) shutdownGuardMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.isShuttingDown() {
			writeError(c, errShuttingDown)
			c.Abort()
			return
		}
		c.Next()
	}
}

// Config holds server configuration (spec §6 process config, transport
// section).
type Config struct {
	Host           string
	Port           int
	ProductionMode bool
	RateLimit      int
	RateWindow     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.RateLimit == 0 {
		c.RateLimit = 120
	}
	if c.RateWindow == 0 {
		c.RateWindow = time.Minute
	}
	return c
}

// Server is the HTTP surface over the recommendation engine.
type Server struct {
	cfg        Config
	router     *gin.Engine
	httpServer *http.Server
	log        zerolog.Logger

	store    persistence.Store
	engine   *gating.Engine
	chains   *decisionchain.Monitor
	tracker  *tracker.Tracker
	stats    *statistics.Service
	slippage *slippage.Analyzer
	prices   *pricefeed.Monitor
	integ    *integration.Service
	gatingCfg gating.Config

	limiter *rateLimiter
	hub     *wsHub

	mu          sync.Mutex
	shutdown    bool
}

// Deps bundles the already-constructed collaborators the server dispatches
// to. Store, Engine, Chains, Tracker and Stats are dereferenced without a
// nil check by some handlers, so they must be set; Integration, Slippage
// and Prices are optional and are nil-checked by the handlers that use them.
type Deps struct {
	Store      persistence.Store
	Engine     *gating.Engine
	GatingCfg  gating.Config
	Chains     *decisionchain.Monitor
	Tracker    *tracker.Tracker
	Stats      *statistics.Service
	Slippage   *slippage.Analyzer
	Prices     *pricefeed.Monitor
	Integration *integration.Service
}

// New builds a Server and registers every route.
func New(cfg Config, deps Deps, log zerolog.Logger) *Server {
	cfg = cfg.withDefaults()

	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "x-loop-guard"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		cfg:       cfg,
		router:    router,
		log:       log.With().Str("component", "apiserver").Logger(),
		store:     deps.Store,
		engine:    deps.Engine,
		gatingCfg: deps.GatingCfg,
		chains:    deps.Chains,
		tracker:   deps.Tracker,
		stats:     deps.Stats,
		slippage:  deps.Slippage,
		prices:    deps.Prices,
		integ:     deps.Integration,
		limiter:   newRateLimiter(cfg.RateLimit, cfg.RateWindow),
		hub:       newWSHub(log),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	api.Use(s.shutdownGuardMiddleware())
	api.Use(s.rateLimitMiddleware())
	{
		rec := api.Group("/recommendations")
		{
			rec.POST("", s.handleCreateRecommendation)
			rec.GET("", s.handleListRecommendations)
			rec.GET("/active", s.handleListActiveRecommendations)
			rec.GET("/:id", s.handleGetRecommendation)
			rec.GET("/:id/events", s.handleListRecommendationEvents)
			rec.POST("/:id/close", s.handleManualClose)
			rec.POST("/:id/force-expire", s.handleForceExpire)
			rec.DELETE("/:id", s.handleDeleteRecommendation)
		}

		stats := api.Group("/stats")
		{
			stats.GET("/overall", s.handleStatsOverall)
			stats.GET("/by-strategy", s.handleStatsByStrategy)
			stats.GET("/by-period", s.handleStatsByPeriod)
			stats.GET("/ev-distribution", s.handleEVDistribution)
			stats.GET("/ev-monitoring", s.handleEVMonitoring)
			stats.GET("/window", s.handleRealtimeWindow)
		}

		chains := api.Group("/decision-chains")
		{
			chains.GET("", s.handleListDecisionChains)
			chains.GET("/:id", s.handleGetDecisionChain)
			chains.GET("/:id/replay", s.handleReplayDecisionChain)
			chains.GET("/metrics", s.handleDecisionChainMetrics)
		}

		monitoring := api.Group("/monitoring")
		{
			monitoring.GET("/gated", s.handleListGatedMonitoring)
		}

		slip := api.Group("/slippage")
		{
			slip.GET("/:symbol", s.handleSlippageStats)
			slip.GET("/:symbol/threshold", s.handleSlippageThreshold)
		}

		sys := api.Group("/system")
		{
			sys.GET("/status", s.handleSystemStatus)
			sys.GET("/health", s.handleComponentHealth)
		}

		maint := api.Group("/maintenance")
		{
			maint.POST("/trim", s.handleTrimHistory)
			maint.POST("/tracker/start", s.handleStartTracker)
			maint.POST("/tracker/stop", s.handleStopTracker)
			maint.POST("/cache/clear", s.handleClearCaches)
		}
	}

	s.router.GET("/ws", s.handleWebSocket)
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, rejecting new requests with
// SHUTTING_DOWN until the process exits (spec §5 "new requests are
// rejected with SHUTTING_DOWN").
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	s.hub.closeAll()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// BroadcastEvent fans an event out to every connected WebSocket client.
// Exported so callers outside the package (e.g. an integration.OnCreateHook
// wired in main) can push onto the same hub the HTTP handlers use (spec §6
// real-time push).
func (s *Server) BroadcastEvent(eventType string, data interface{}) {
	s.hub.broadcastEvent(eventType, data)
}

func (s *Server) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.isShuttingDown() {
		writeError(c, errShuttingDown)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbHealthy := s.store.HealthCheck(ctx) == nil
	status := "healthy"
	code := http.StatusOK
	if !dbHealthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "database": dbHealthy})
}
