// Command apiserver runs the engine's HTTP control plane: workflow and run
// CRUD, run-start, cancellation, and log reads. It never touches a broker
// consumer loop — that is cmd/worker's job — but it does publish run_start
// to kick the Orchestrator off.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lyzr/dagrunner/common/bootstrap"
	"github.com/lyzr/dagrunner/common/repository"
	"github.com/lyzr/dagrunner/common/server"
	"github.com/lyzr/dagrunner/internal/httpapi"
)

func main() {
	ctx := context.Background()

	components, err := bootstrap.Setup(ctx, "apiserver")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap apiserver: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	workflows := repository.NewWorkflowRepository(components.DB)
	runs := repository.NewRunRepository(components.DB)
	runLogs := repository.NewRunLogRepository(components.DB)
	handler := httpapi.NewHandler(workflows, runs, runLogs, components.Broker, components.Logger)

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, components)
	httpapi.RegisterRoutes(e, handler)

	startServer(e, components)
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(httpapi.InjectRequestID)
}

func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]string{"status": "unhealthy", "error": err.Error()})
		}
		return c.JSON(200, map[string]string{"status": "ok", "service": "apiserver"})
	})
}

// startServer runs e behind the graceful-shutdown HTTP wrapper rather than
// echo.Echo.Start directly: a SIGTERM mid-request lets in-flight run/log
// reads finish instead of being cut off.
func startServer(e *echo.Echo, components *bootstrap.Components) {
	srv := server.New("apiserver", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
