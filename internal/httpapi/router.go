package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/bi-assistant/internal/common"
	"github.com/suPer8Hu/bi-assistant/internal/httpapi/handlers"
	"github.com/suPer8Hu/bi-assistant/internal/httpapi/middleware"
)

// NewRouter wires the API. Routes under /api require a bearer token when jwtSecret is set.
func NewRouter(h *handlers.Handler, jwtSecret string) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	api := r.Group("/api")
	if jwtSecret != "" {
		api.Use(middleware.AuthRequired(jwtSecret))
	}

	api.POST("/sessions", h.CreateChatSession)
	api.GET("/sessions", h.ListChatSessions)
	api.GET("/sessions/:session_id", h.GetChatSession)
	api.DELETE("/sessions/:session_id", h.DeleteChatSession)
	api.POST("/sessions/:session_id/messages", h.SendChatMessage)
	api.POST("/sessions/:session_id/incidents", h.ExplainIncident)
	api.POST("/sessions/:session_id/jobs", h.SubmitChatJob)
	api.GET("/sessions/:session_id/messages/:message_id/export", h.ExportMessageResult)
	api.GET("/jobs/:job_id", h.GetChatJob)

	api.GET("/incidents/failures", h.ListFailures)
	api.GET("/incidents/stats", h.FailureStats)
	return r
}
