package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdesk/internal/middleware"
	"github.com/xxxsen/ragdesk/internal/pkg/errcode"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
	"github.com/xxxsen/ragdesk/internal/pkg/response"
)

func getTenantID(c *gin.Context) string {
	return middleware.TenantID(c)
}

func parseUint(value string, fallback uint) uint {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return uint(parsed)
}

// handleError maps the error taxonomy onto the envelope codes. Validation
// messages are returned verbatim, anything unexpected is masked.
func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logger := logutil.GetLogger(c.Request.Context()).With(
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("tenant_id", getTenantID(c)),
	)
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case appErr.IsInvalid(err):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrTooMany):
		logger.Warn("request rejected", zap.Error(err))
		response.Error(c, errcode.ErrTooMany, err.Error())
	case errors.Is(err, appErr.ErrGeneration):
		logger.Error("answer generation failed", zap.Error(err))
		response.Error(c, errcode.ErrGeneration, "answer generation failed")
	case errors.Is(err, appErr.ErrExternalService):
		logger.Error("external service failed", zap.Error(err))
		response.Error(c, errcode.ErrExternalService, "upstream service unavailable")
	default:
		logger.Error("request failed", zap.Error(err))
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
