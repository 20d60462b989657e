package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragdesk/internal/middleware"
	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/errcode"
	"github.com/xxxsen/ragdesk/internal/pkg/response"
)

type QueryService interface {
	Answer(ctx context.Context, tenantKey, question string, history []model.ConversationTurn) (*model.QueryResult, error)
}

type QueryHandler struct {
	queries QueryService
}

func NewQueryHandler(queries QueryService) *QueryHandler {
	return &QueryHandler{queries: queries}
}

type queryRequest struct {
	Question string                   `json:"question"`
	History  []model.ConversationTurn `json:"history"`
}

// Query is the public endpoint; the tenant is identified by its secret key.
func (h *QueryHandler) Query(c *gin.Context) {
	key := strings.TrimSpace(c.GetHeader(middleware.TenantKeyHeader))
	if key == "" {
		response.Error(c, errcode.ErrUnauthorized, "missing tenant key")
		return
	}
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	result, err := h.queries.Answer(c.Request.Context(), key, req.Question, req.History)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}
