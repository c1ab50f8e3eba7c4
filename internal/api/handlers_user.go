// handlers_user.go - Identity and admin user handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sheetviz/backend/internal/models"
)

// HeaderUserID carries the caller's user id.
const HeaderUserID = "X-User-ID"

const userContextKey = "user"

// UserHandlerImpl implements the UserHandler interface
type UserHandlerImpl struct {
	users UserDirectory
}

// NewUserHandler creates a new user handler
func NewUserHandler(users UserDirectory) UserHandler {
	return &UserHandlerImpl{users: users}
}

// HandleMe returns the caller and whether they may open the admin panel
func (h *UserHandlerImpl) HandleMe(c echo.Context) error {
	u, err := resolveUser(c, h.users)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"user":    u,
		"isAdmin": u.IsAdmin(),
	})
}

// HandleListUsers returns the user directory. Mounted behind RequireAdmin.
func (h *UserHandlerImpl) HandleListUsers(c echo.Context) error {
	return c.JSON(http.StatusOK, h.users.List())
}

// RequireAdmin rejects callers whose directory entry is not an admin.
func RequireAdmin(users UserDirectory) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, err := resolveUser(c, users)
			if err != nil {
				return err
			}
			if !u.IsAdmin() {
				return NewForbiddenError("admin access required")
			}
			c.Set(userContextKey, u)
			return next(c)
		}
	}
}

func resolveUser(c echo.Context, users UserDirectory) (*models.User, error) {
	if u, ok := c.Get(userContextKey).(*models.User); ok {
		return u, nil
	}
	id := c.Request().Header.Get(HeaderUserID)
	if id == "" {
		return nil, NewUnauthorizedError("missing " + HeaderUserID + " header")
	}
	u, err := users.Lookup(id)
	if err != nil {
		return nil, NewUnauthorizedError("unknown user: " + id)
	}
	return u, nil
}
