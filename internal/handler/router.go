package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragdesk/internal/middleware"
)

type RouterDeps struct {
	Documents  *DocumentHandler
	Query      *QueryHandler
	Health     *HealthHandler
	JWTSecret  []byte
	QueryRPS   float64
	QueryBurst int
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", deps.Health.Healthz)

	api.POST("/query", middleware.TenantRateLimit(deps.QueryRPS, deps.QueryBurst), deps.Query.Query)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	authGroup.POST("/documents", deps.Documents.Upload)
	authGroup.GET("/documents", deps.Documents.List)
	authGroup.GET("/documents/:id", deps.Documents.Get)
	authGroup.GET("/documents/:id/file", deps.Documents.Download)
	authGroup.DELETE("/documents/:id", deps.Documents.Delete)
}
