package apiserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
)

func (s *Server) handleStatsOverall(c *gin.Context) {
	stats, err := s.stats.Overall(c.Request.Context())
	if err != nil {
		writeError(c, mapError(err))
		return
	}
	writeSuccess(c, http.StatusOK, stats)
}

// handleStatsByStrategy serves both the per-strategy list and, via
// ?strategy_type=, a single-strategy lookup.
func (s *Server) handleStatsByStrategy(c *gin.Context) {
	all, err := s.stats.ByStrategy(c.Request.Context())
	if err != nil {
		writeError(c, mapError(err))
		return
	}
	if want := c.Query("strategy_type"); want != "" {
		for _, st := range all {
			if st.StrategyType == want {
				writeSuccess(c, http.StatusOK, st)
				return
			}
		}
		writeSuccess(c, http.StatusOK, nil)
		return
	}
	writeSuccess(c, http.StatusOK, all)
}

func (s *Server) handleStatsByPeriod(c *gin.Context) {
	period := model.Period(c.DefaultQuery("period", string(model.PeriodAllTime)))
	switch period {
	case model.PeriodDaily, model.PeriodWeekly, model.PeriodMonthly, model.PeriodAllTime:
	default:
		writeError(c, invalidField("PERIOD", "period must be one of daily, weekly, monthly, all_time"))
		return
	}

	stats, err := s.stats.ByPeriod(c.Request.Context(), period)
	if err != nil {
		writeError(c, mapError(err))
		return
	}
	writeSuccess(c, http.StatusOK, stats)
}

func (s *Server) handleEVDistribution(c *gin.Context) {
	bins := queryInt(c, "bins", 10)
	mode := model.BinMode(c.DefaultQuery("bin_mode", string(model.BinModeQuantile)))
	byVariant := c.Query("by_variant") == "true"

	dist, err := s.stats.EVDistribution(c.Request.Context(), bins, mode, byVariant)
	if err != nil {
		writeError(c, mapError(err))
		return
	}
	writeSuccess(c, http.StatusOK, dist)
}

func (s *Server) handleEVMonitoring(c *gin.Context) {
	window := model.EVWindow(c.DefaultQuery("window", string(model.EVWindow7d)))
	groupBy := c.DefaultQuery("group_by", "level")

	report, err := s.stats.EVMonitoring(c.Request.Context(), window, groupBy)
	if err != nil {
		writeError(c, mapError(err))
		return
	}
	writeSuccess(c, http.StatusOK, report)
}

// handleRealtimeWindow serves the live stats window (spec §6 "Real-time
// stats window (1m..1h)"), computed over the tracker's current active set
// plus the cached overall statistics rather than a separate rolling store.
// The window query parameter is echoed back as given; it does not restrict
// the data returned.
func (s *Server) handleRealtimeWindow(c *gin.Context) {
	window := c.DefaultQuery("window", "5m")

	active := s.tracker.ActiveSnapshot("")
	overall, err := s.stats.Overall(c.Request.Context())
	if err != nil {
		writeError(c, mapError(err))
		return
	}

	writeSuccess(c, http.StatusOK, gin.H{
		"window":          window,
		"active_count":    len(active),
		"overall":         overall,
		"gating_snapshot": s.engine.Snapshot(),
	})
}
