package httpapi

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts every engine-touching endpoint from §6 under e,
// guarded by the owner-id middleware.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("", ExtractOwnerID)

	g.POST("/workflows", h.CreateWorkflow)
	g.GET("/workflows/:id", h.GetWorkflow)
	g.POST("/workflows/:id/run", h.StartRun)

	g.GET("/runs", h.ListRuns)
	g.GET("/runs/:id", h.GetRun)
	g.GET("/runs/:id/logs", h.GetRunLogs)
	g.POST("/runs/:id/cancel", h.CancelRun)
}
