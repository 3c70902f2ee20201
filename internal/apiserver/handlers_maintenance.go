package apiserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// trimHistoryRequest mirrors spec §6 "Trim history to last N (default
// 100)"; symbol is required since the persistence layer trims per symbol.
type trimHistoryRequest struct {
	Symbol string `json:"symbol" binding:"required"`
	Keep   int    `json:"keep"`
}

func (s *Server) handleTrimHistory(c *gin.Context) {
	var req trimHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errInvalidRequestBody)
		return
	}
	if req.Keep <= 0 {
		req.Keep = 100
	}

	deleted, err := s.store.TrimHistory(c.Request.Context(), req.Symbol, req.Keep)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", req.Symbol).Msg("trim history failed")
		writeError(c, mapError(err))
		return
	}
	if s.stats != nil {
		s.stats.Invalidate()
	}
	writeSuccess(c, http.StatusOK, gin.H{"symbol": req.Symbol, "kept": req.Keep, "deleted": deleted})
}

func (s *Server) handleStartTracker(c *gin.Context) {
	if s.tracker == nil {
		writeError(c, newAPIError("NOT_CONFIGURED", http.StatusServiceUnavailable, "tracker not wired"))
		return
	}
	s.tracker.Start(c.Request.Context())
	writeSuccess(c, http.StatusOK, gin.H{"running": true})
}

func (s *Server) handleStopTracker(c *gin.Context) {
	if s.tracker == nil {
		writeError(c, newAPIError("NOT_CONFIGURED", http.StatusServiceUnavailable, "tracker not wired"))
		return
	}
	s.tracker.Stop()
	writeSuccess(c, http.StatusOK, gin.H{"running": false})
}

// handleClearCaches clears the price cache and invalidates the statistics
// cache; both are advisory/rebuildable per spec §9, never the persisted
// source of truth.
func (s *Server) handleClearCaches(c *gin.Context) {
	symbol := c.Query("symbol")
	if s.prices != nil {
		s.prices.Clear(symbol)
	}
	if s.stats != nil {
		s.stats.Invalidate()
	}
	writeSuccess(c, http.StatusOK, gin.H{"cleared": true})
}

// handleSystemStatus reports the process-wide observability surface: gating
// counters, decision-chain metrics, and current active count (spec §7
// "every rejection... increments typed counters visible via the
// system-status endpoint").
func (s *Server) handleSystemStatus(c *gin.Context) {
	body := gin.H{
		"shutting_down": s.isShuttingDown(),
	}
	if s.engine != nil {
		body["gating"] = s.engine.Snapshot()
	}
	if s.chains != nil {
		body["decision_chains"] = s.chains.MetricsSnapshot()
	}
	if s.tracker != nil {
		body["active_count"] = len(s.tracker.ActiveSnapshot(""))
	}
	writeSuccess(c, http.StatusOK, body)
}

// handleComponentHealth reports each collaborator's health individually
// (spec §6 "component health individually"), rather than the single
// aggregate /health liveness check.
func (s *Server) handleComponentHealth(c *gin.Context) {
	ctx := c.Request.Context()

	components := gin.H{}
	if s.store != nil {
		components["persistence"] = s.store.HealthCheck(ctx) == nil
	}
	if s.prices != nil {
		components["price_monitor"] = s.prices.CheckHealth(c.Query("symbol")) == nil
	}
	components["tracker"] = s.tracker != nil
	components["integration"] = s.integ != nil
	components["slippage"] = s.slippage != nil

	writeSuccess(c, http.StatusOK, components)
}
