package apiserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wangqiang-666/ETH-sub009/internal/gating"
	"github.com/wangqiang-666/ETH-sub009/internal/model"
)

// createRecommendationRequest mirrors gating.Candidate's admission-relevant
// fields (spec §3 "inputs").
type createRecommendationRequest struct {
	Symbol            string  `json:"symbol" binding:"required"`
	Direction         string  `json:"direction" binding:"required"`
	StrategyType      string  `json:"strategy_type"`
	Leverage          float64 `json:"leverage"`
	EntryPrice        float64 `json:"entry_price"`
	CurrentPrice      float64 `json:"current_price"`
	TakeProfitPrice   float64 `json:"take_profit_price"`
	StopLossPrice     float64 `json:"stop_loss_price"`
	Confidence        float64 `json:"confidence"`
	ExpectedValue     float64 `json:"expected_value"`
	Agreement         float64 `json:"agreement"`
	DominantDirection string  `json:"dominant_direction"`
	BypassCooldown    bool    `json:"bypass_cooldown"`
}

// handleCreateRecommendation is the manual-create operation (spec §6
// "Create"). The `x-loop-guard: 1` header suppresses the onCreate hook so
// that a system replaying its own history doesn't re-trigger downstream
// side effects.
func (s *Server) handleCreateRecommendation(c *gin.Context) {
	if s.integ == nil {
		writeError(c, newAPIError("NOT_CONFIGURED", http.StatusServiceUnavailable, "integration service not wired"))
		return
	}

	var req createRecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errInvalidRequestBody)
		return
	}

	candidate := gating.Candidate{
		Symbol:            req.Symbol,
		Direction:         model.Direction(req.Direction),
		StrategyType:      req.StrategyType,
		Leverage:          req.Leverage,
		EntryPrice:        req.EntryPrice,
		CurrentPrice:      req.CurrentPrice,
		TakeProfitPrice:   req.TakeProfitPrice,
		StopLossPrice:     req.StopLossPrice,
		Confidence:        req.Confidence,
		ExpectedValue:     req.ExpectedValue,
		Agreement:         req.Agreement,
		DominantDirection: model.Direction(req.DominantDirection),
		BypassCooldown:    req.BypassCooldown,
	}

	suppressHook := c.GetHeader("x-loop-guard") == "1"
	outcome, err := s.integ.Admit(c.Request.Context(), candidate, model.SourceManual, suppressHook)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", req.Symbol).Msg("manual admission failed")
		writeError(c, mapError(err))
		return
	}

	if !outcome.Admitted {
		code := "REJECTED"
		reason := ""
		var detail model.StepDetail
		if outcome.Rejection != nil {
			code = string(outcome.Rejection.Code)
			reason = outcome.Rejection.Reason
			detail = outcome.Rejection.Detail
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success":          false,
			"error":            code,
			"details":          reason,
			"detail":           detail,
			"decision_chain_id": outcome.ChainID,
		})
		return
	}

	s.hub.broadcastEvent("RECOMMENDATION_ADMITTED", outcome.Recommendation)
	writeSuccess(c, http.StatusCreated, gin.H{
		"id":                outcome.Recommendation.ID,
		"decision_chain_id": outcome.ChainID,
	})
}

func (s *Server) handleGetRecommendation(c *gin.Context) {
	id := c.Param("id")
	if rec, err := s.tracker.Get(id); err == nil {
		writeSuccess(c, http.StatusOK, rec)
		return
	}

	rec, err := s.store.GetRecommendation(c.Request.Context(), id)
	if err != nil {
		writeError(c, errRecommendationNotFound)
		return
	}
	writeSuccess(c, http.StatusOK, rec)
}

// handleListRecommendations implements the filtered/paginated list
// endpoint, applying the signature-based dedup rule from spec §6 ("list is
// deduplicated by signature... among duplicates, the newest — or
// highest-confidence tie — wins").
func (s *Server) handleListRecommendations(c *gin.Context) {
	f := model.RecommendationFilter{
		Symbol:       c.Query("symbol"),
		StrategyType: c.Query("strategy_type"),
		Status:       model.Status(c.Query("status")),
		Result:       model.Result(c.Query("result")),
		Direction:    model.Direction(c.Query("direction")),
		ExperimentID: c.Query("experiment_id"),
	}
	f.IncludeActive = c.Query("include_active") == "true"
	f.Limit = queryInt(c, "limit", 100)
	f.Offset = queryInt(c, "offset", 0)
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

	recs, err := s.store.ListRecommendations(c.Request.Context(), f)
	if err != nil {
		s.log.Error().Err(err).Msg("list recommendations failed")
		writeError(c, mapError(err))
		return
	}
	writeSuccess(c, http.StatusOK, dedupRecommendations(recs))
}

// handleListActiveRecommendations falls back to persistence when the
// in-memory tracker cache is empty (spec §6 "falls back to persistence if
// in-memory cache is empty").
func (s *Server) handleListActiveRecommendations(c *gin.Context) {
	symbol := c.Query("symbol")

	active := s.tracker.ActiveSnapshot(symbol)
	if len(active) == 0 {
		persisted, err := s.store.ListActiveRecommendations(c.Request.Context(), symbol)
		if err != nil {
			s.log.Error().Err(err).Msg("list active recommendations failed")
			writeError(c, mapError(err))
			return
		}
		active = persisted
	}
	writeSuccess(c, http.StatusOK, dedupRecommendations(active))
}

type manualCloseRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleManualClose(c *gin.Context) {
	id := c.Param("id")
	var req manualCloseRequest
	_ = c.ShouldBindJSON(&req)

	if err := s.tracker.ManualClose(c.Request.Context(), id, req.Reason); err != nil {
		writeError(c, mapError(err))
		return
	}
	if s.stats != nil {
		s.stats.Invalidate()
	}
	s.hub.broadcastEvent("RECOMMENDATION_CLOSED", gin.H{"id": id, "reason": req.Reason})
	writeSuccess(c, http.StatusOK, gin.H{"id": id, "status": model.StatusClosed})
}

// handleForceExpire force-expires a recommendation, mapping to
// status=EXPIRED with exit_label=TIMEOUT (spec §6, §9).
func (s *Server) handleForceExpire(c *gin.Context) {
	id := c.Param("id")
	if err := s.tracker.ForceExpire(c.Request.Context(), id); err != nil {
		writeError(c, mapError(err))
		return
	}
	if s.stats != nil {
		s.stats.Invalidate()
	}
	s.hub.broadcastEvent("RECOMMENDATION_CLOSED", gin.H{"id": id, "exit_label": model.ExitLabelTimeout})
	writeSuccess(c, http.StatusOK, gin.H{"id": id, "status": model.StatusExpired})
}

// handleListRecommendationEvents returns a single recommendation's
// lifecycle audit trail, oldest first (SPEC_FULL.md "Lifecycle event log").
func (s *Server) handleListRecommendationEvents(c *gin.Context) {
	id := c.Param("id")

	if _, err := s.store.GetRecommendation(c.Request.Context(), id); err != nil {
		writeError(c, errRecommendationNotFound)
		return
	}

	events, err := s.store.ListRecommendationEvents(c.Request.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Str("recommendation_id", id).Msg("list recommendation events failed")
		writeError(c, mapError(err))
		return
	}
	writeSuccess(c, http.StatusOK, events)
}

// handleDeleteRecommendation is maintenance-only: deletion refuses active
// recommendations at the persistence layer (spec §4.1).
func (s *Server) handleDeleteRecommendation(c *gin.Context) {
	id := c.Param("id")
	if err := s.store.DeleteRecommendation(c.Request.Context(), id); err != nil {
		writeError(c, mapError(err))
		return
	}
	if s.stats != nil {
		s.stats.Invalidate()
	}
	writeSuccess(c, http.StatusOK, gin.H{"id": id, "deleted": true})
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// dedupRecommendations applies spec §6's dedup rule: group by a signature
// of (time-bucket 5s, symbol, direction, entry/TP/SL rounded to 2
// decimals); among duplicates, the newest wins, ties broken by highest
// confidence.
func dedupRecommendations(recs []*model.Recommendation) []*model.Recommendation {
	best := make(map[string]*model.Recommendation, len(recs))
	order := make([]string, 0, len(recs))

	for _, r := range recs {
		sig := recommendationSignature(r)
		cur, ok := best[sig]
		if !ok {
			best[sig] = r
			order = append(order, sig)
			continue
		}
		if r.CreatedAt.After(cur.CreatedAt) ||
			(r.CreatedAt.Equal(cur.CreatedAt) && r.Confidence > cur.Confidence) {
			best[sig] = r
		}
	}

	out := make([]*model.Recommendation, 0, len(order))
	for _, sig := range order {
		out = append(out, best[sig])
	}
	return out
}

func recommendationSignature(r *model.Recommendation) string {
	bucket := r.CreatedAt.Unix() / 5
	return strconv.FormatInt(bucket, 10) + "|" + r.Symbol + "|" + string(r.Direction) + "|" +
		round2(r.EntryPrice) + "|" + round2(r.TakeProfitPrice) + "|" + round2(r.StopLossPrice)
}

func round2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
