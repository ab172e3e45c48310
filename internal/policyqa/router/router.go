// Package router wires the question-answering HTTP routes.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/coverport/policyqa/internal/policyqa/handler"
)

// Register registers all routes on the engine.
func Register(engine *gin.Engine, qaHandler *handler.QAHandler) {
	engine.GET("/healthz", qaHandler.Healthz)
	engine.GET("/metrics", qaHandler.Metrics)

	v1 := engine.Group("/v1")
	{
		v1.POST("/policy/ask", qaHandler.AskPolicy)
		v1.POST("/communications/ask", qaHandler.AskCommunications)

		v1.POST("/documents", qaHandler.IndexDocument)
		v1.DELETE("/documents/:id", qaHandler.DeleteDocument)

		v1.GET("/stats", qaHandler.Stats)
	}

	logger.Info("HTTP routes registered")
}
