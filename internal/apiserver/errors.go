package apiserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wangqiang-666/ETH-sub009/internal/gating"
	"github.com/wangqiang-666/ETH-sub009/internal/persistence"
	"github.com/wangqiang-666/ETH-sub009/internal/tracker"
)

// apiError is the typed error surfaced to callers, carrying the stable
// code and HTTP status spec §7's taxonomy requires. It composes with the
// gating.Rejection it may wrap so the envelope can echo rejection detail
// fields without the handler needing to know the rule that produced them.
type apiError struct {
	Code    string
	Status  int
	Message string
	Detail  interface{}
}

func (e *apiError) Error() string { return e.Code + ": " + e.Message }

func newAPIError(code string, status int, message string) *apiError {
	return &apiError{Code: code, Status: status, Message: message}
}

var (
	errInvalidRequestBody = newAPIError("INVALID_REQUEST_BODY", http.StatusBadRequest, "request body failed validation")
	errInvalidDirection   = newAPIError("INVALID_DIRECTION", http.StatusBadRequest, "direction must be LONG or SHORT")
	errRecommendationNotFound = newAPIError("RECOMMENDATION_NOT_FOUND", http.StatusNotFound, "recommendation not found")
	errChainNotFound      = newAPIError("CHAIN_NOT_FOUND", http.StatusNotFound, "decision chain not found")
	errAlreadyClosed      = newAPIError("ALREADY_CLOSED", http.StatusConflict, "recommendation is not active")
	errUpstreamUnavailable = newAPIError("UPSTREAM_UNAVAILABLE", http.StatusBadGateway, "upstream collaborator unavailable")
	errShuttingDown       = newAPIError("SHUTTING_DOWN", http.StatusServiceUnavailable, "server is shutting down")
	errConflict           = newAPIError("CONFLICT", http.StatusConflict, "recommendation id already exists")
)

// pgUniqueViolation is Postgres's SQLSTATE for a unique-constraint
// violation (the id primary key on recommendations).
const pgUniqueViolation = "23505"

// invalidField builds an INVALID_<FIELD> validation error per spec §7.
func invalidField(field, message string) *apiError {
	return newAPIError("INVALID_"+field, http.StatusBadRequest, message)
}

// mapError classifies err into an apiError, translating gating rejections
// and known sentinel errors from the domain packages (spec §7 "mapping
// gating rejections to status codes"). Anything unrecognized becomes a
// generic internal error; its message is logged by the caller but never
// echoed to the client.
func mapError(err error) *apiError {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae
	}

	var rej *gating.Rejection
	if errors.As(err, &rej) {
		return &apiError{
			Code:    string(rej.Code),
			Status:  http.StatusUnprocessableEntity,
			Message: rej.Reason,
			Detail:  rej.Detail,
		}
	}

	switch {
	case errors.Is(err, tracker.ErrRecommendationNotFound):
		return errRecommendationNotFound
	case errors.Is(err, tracker.ErrAlreadyClosed):
		return errAlreadyClosed
	case errors.Is(err, persistence.ErrConflict):
		return errConflict
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return errConflict
	}

	return &apiError{
		Code:    "INTERNAL_ERROR",
		Status:  http.StatusInternalServerError,
		Message: "internal error",
	}
}

// writeError sends the uniform error envelope (spec §6 "Wire formats").
func writeError(c *gin.Context, err *apiError) {
	body := gin.H{
		"success": false,
		"error":   err.Code,
		"details": err.Message,
	}
	if err.Detail != nil {
		body["detail"] = err.Detail
	}
	c.JSON(err.Status, body)
}

// writeSuccess sends the uniform success envelope.
func writeSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}
