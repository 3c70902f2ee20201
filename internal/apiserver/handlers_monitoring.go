package apiserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleListGatedMonitoring serves the gated-monitoring listing endpoint
// (spec §6), the rejection-snapshot rows written by the gating engine on
// every rejected admission attempt.
func (s *Server) handleListGatedMonitoring(c *gin.Context) {
	symbol := c.Query("symbol")
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	snapshots, err := s.store.ListMonitoringSnapshots(c.Request.Context(), symbol, limit, offset)
	if err != nil {
		s.log.Error().Err(err).Msg("list gated monitoring failed")
		writeError(c, mapError(err))
		return
	}
	writeSuccess(c, http.StatusOK, snapshots)
}
