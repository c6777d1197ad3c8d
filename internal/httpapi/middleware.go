package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/dagrunner/common/logger"
)

// ownerIDKey is the echo.Context key ExtractOwnerID stores under.
const ownerIDKey = "owner_id"

// ExtractOwnerID is permissive: it stashes X-Owner-ID on the context when
// present and falls through to "anonymous" otherwise. The endpoints that
// create a workflow or a run read the header through requireOwnerID instead.
func ExtractOwnerID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		owner := c.Request().Header.Get("X-Owner-ID")
		if owner == "" {
			owner = "anonymous"
		}
		c.Set(ownerIDKey, owner)
		return next(c)
	}
}

// ownerID reads the value ExtractOwnerID stashed.
func ownerID(c echo.Context) string {
	v, _ := c.Get(ownerIDKey).(string)
	return v
}

// InjectRequestID copies the request id echo's own RequestID middleware
// generated into the request's context.Context, so handler-level error
// logs (below the echo.Context boundary) can tag themselves with it via
// logger.Logger.WithContext. Must run after middleware.RequestID().
func InjectRequestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		rid := c.Response().Header().Get(echo.HeaderXRequestID)
		if rid != "" {
			c.SetRequest(c.Request().WithContext(logger.ContextWithRequestID(c.Request().Context(), rid)))
		}
		return next(c)
	}
}

// requireOwnerID is the strict variant, called inline from the handlers
// that mint new owned state (a workflow, a run) rather than wired as
// middleware: those are the only endpoints where silently falling back to
// "anonymous" would let a caller create a resource nobody else can ever
// legitimately claim ownership of. Read/cancel endpoints stay on the
// permissive ExtractOwnerID path since an anonymous caller there just gets
// a 403 against the resource's real owner.
func requireOwnerID(c echo.Context) (string, error) {
	owner := c.Request().Header.Get("X-Owner-ID")
	if owner == "" {
		return "", c.JSON(http.StatusUnauthorized, map[string]interface{}{"error": "X-Owner-ID header is required"})
	}
	return owner, nil
}
