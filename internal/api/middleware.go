package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nitroplanner/nitroplanner/internal/errs"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error      string   `json:"error"`
	Message    string   `json:"message"`
	InvalidIDs []string `json:"invalidIds,omitempty"`
	Kind       string   `json:"kind,omitempty"`
	NodeIDs    []string `json:"nodeIds,omitempty"`
	Valid      []string `json:"validTransitions,omitempty"`
}

// logMiddleware logs every request.
func logMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		c.Next()

		var stdErr error
		if last := c.Errors.Last(); last != nil {
			stdErr = last.Err
		}
		log.Info("api request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.String("company", c.GetHeader(CompanyHeader)),
			zap.Error(stdErr),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// errorHandleMiddleware turns the error a handler attached with c.Error
// into a status code and JSON body. Handlers return right after an error,
// so only the last one matters.
func errorHandleMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		last := c.Errors.Last()
		if last == nil {
			return
		}
		status, body := errorStatus(last.Err)
		if status == http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Error(last.Err))
		}
		c.JSON(status, body)
		c.Abort()
	}
}

func errorStatus(err error) (int, errorResponse) {
	var (
		nf  *errs.NotFoundError
		ve  *errs.ValidationError
		ite *errs.InvalidTransitionError
		ge  *errs.GraphIntegrityError
		le  *errs.ComputationLimitError
	)
	switch {
	case errors.As(err, &nf):
		return http.StatusNotFound, errorResponse{Error: "not_found", Message: nf.Error()}
	case errors.As(err, &ve):
		return http.StatusBadRequest, errorResponse{Error: "validation_error", Message: ve.Message, InvalidIDs: ve.InvalidIDs}
	case errors.As(err, &ite):
		return http.StatusConflict, errorResponse{Error: "invalid_transition", Message: ite.Error(), Valid: ite.Valid}
	case errors.As(err, &ge):
		return http.StatusUnprocessableEntity, errorResponse{Error: "graph_integrity", Message: ge.Error(), Kind: ge.Kind, NodeIDs: ge.NodeIDs}
	case errors.As(err, &le):
		if le.Overload {
			return http.StatusServiceUnavailable, errorResponse{Error: "overloaded", Message: le.Message}
		}
		return http.StatusBadRequest, errorResponse{Error: "computation_limit", Message: le.Message}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: "internal server error"}
	}
}

// bindJSON decodes the request body into v, reporting malformed input as a
// validation error.
func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		_ = c.Error(errs.Validationf("invalid request body: %v", err))
		return false
	}
	return true
}
