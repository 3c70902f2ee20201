package apiserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
)

// handleListDecisionChains implements listing with filters, per-symbol,
// recent, and failures-only via query parameters (spec §6).
func (s *Server) handleListDecisionChains(c *gin.Context) {
	f := model.DecisionChainFilter{
		Symbol:       c.Query("symbol"),
		Direction:    model.Direction(c.Query("direction")),
		Source:       c.Query("source"),
		FailuresOnly: c.Query("failures_only") == "true",
		Limit:        queryInt(c, "limit", 50),
		Offset:       queryInt(c, "offset", 0),
	}
	if v := c.Query("start_date"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.StartDate = t
		}
	}
	if v := c.Query("end_date"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.EndDate = t
		}
	}
	if v := c.Query("final_decision"); v != "" {
		f.FinalDecision = model.StepDecision(v)
	}

	chains, err := s.chains.Query(c.Request.Context(), f)
	if err != nil {
		s.log.Error().Err(err).Msg("list decision chains failed")
		writeError(c, mapError(err))
		return
	}
	writeSuccess(c, http.StatusOK, chains)
}

func (s *Server) handleGetDecisionChain(c *gin.Context) {
	chain, err := s.chains.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, errChainNotFound)
		return
	}
	writeSuccess(c, http.StatusOK, chain)
}

func (s *Server) handleReplayDecisionChain(c *gin.Context) {
	steps, err := s.chains.Replay(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, errChainNotFound)
		return
	}
	writeSuccess(c, http.StatusOK, steps)
}

func (s *Server) handleDecisionChainMetrics(c *gin.Context) {
	writeSuccess(c, http.StatusOK, s.chains.MetricsSnapshot())
}
