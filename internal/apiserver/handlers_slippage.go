package apiserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleSlippageStats(c *gin.Context) {
	if s.slippage == nil {
		writeError(c, newAPIError("NOT_CONFIGURED", http.StatusServiceUnavailable, "slippage analyzer not wired"))
		return
	}
	symbol := c.Param("symbol")
	stats, ok := s.slippage.Stats(symbol)
	if !ok {
		writeSuccess(c, http.StatusOK, nil)
		return
	}
	writeSuccess(c, http.StatusOK, stats)
}

func (s *Server) handleSlippageThreshold(c *gin.Context) {
	if s.slippage == nil {
		writeError(c, newAPIError("NOT_CONFIGURED", http.StatusServiceUnavailable, "slippage analyzer not wired"))
		return
	}
	symbol := c.Param("symbol")
	writeSuccess(c, http.StatusOK, s.slippage.Threshold(symbol))
}
