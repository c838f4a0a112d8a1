package identity

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// RegisterIdentityRoutes mounts the JSON identity endpoints on the router.
func RegisterIdentityRoutes[T any](app router.Router[T], opts ...IdentityControllerOption) {
	controller := NewIdentityController(opts...)

	app.Get(controller.Routes.State, controller.GetState).
		SetName("identity-state.get")
	app.Post(controller.Routes.Refresh, controller.Refresh).
		SetName("identity-refresh.post")

	app.Post(controller.Routes.KidMode, controller.EnterKidMode).
		SetName("identity-kidmode.post")
	app.Delete(controller.Routes.KidMode, controller.ExitKidMode).
		SetName("identity-kidmode.delete")

	app.Post(controller.Routes.ProfileSelection, controller.SelectProfile).
		SetName("identity-profile-selection.post")

	app.Get(controller.Routes.Sessions, controller.ListSessions).
		SetName("identity-sessions.get")
	app.Delete(controller.Routes.Sessions+"/:id", controller.TerminateSession).
		SetName("identity-session.delete")
	app.Post(controller.Routes.Sessions+"/terminate-others", controller.TerminateOtherSessions).
		SetName("identity-sessions-terminate-others.post")
}

// IdentityControllerRoutes holds the mount paths.
type IdentityControllerRoutes struct {
	State            string
	Refresh          string
	KidMode          string
	ProfileSelection string
	Sessions         string
}

// IdentityController serves the resolved identity state over JSON.
type IdentityController struct {
	Logger       Logger
	Coordinator  *Coordinator
	Routes       *IdentityControllerRoutes
	ErrorHandler func(router.Context, error) error
}

type IdentityControllerOption func(*IdentityController) *IdentityController

// WithControllerCoordinator sets the coordinator the controller serves.
func WithControllerCoordinator(coordinator *Coordinator) IdentityControllerOption {
	return func(c *IdentityController) *IdentityController {
		c.Coordinator = coordinator
		return c
	}
}

// WithControllerLogger sets the controller's logger.
func WithControllerLogger(logger Logger) IdentityControllerOption {
	return func(c *IdentityController) *IdentityController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerRoutes overrides the default mount paths.
func WithControllerRoutes(routes *IdentityControllerRoutes) IdentityControllerOption {
	return func(c *IdentityController) *IdentityController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

// NewIdentityController builds a controller with default routes.
func NewIdentityController(opts ...IdentityControllerOption) *IdentityController {
	c := &IdentityController{
		Logger: defLogger{},
		Routes: &IdentityControllerRoutes{
			State:            "/identity",
			Refresh:          "/identity/refresh",
			KidMode:          "/identity/kid-mode",
			ProfileSelection: "/identity/profile-selection",
			Sessions:         "/identity/sessions",
		},
	}
	c.ErrorHandler = c.handleError

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Coordinator == nil {
		panic("Missing Coordinator in identity controller...")
	}

	return c
}

func (a *IdentityController) handleError(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		code := richErr.Code
		if code == 0 {
			code = http.StatusInternalServerError
		}
		return ctx.JSON(code, map[string]any{
			"error":     richErr.Message,
			"text_code": richErr.TextCode,
		})
	}

	a.Logger.Error("unhandled identity controller error: %s", err)
	return ctx.JSON(http.StatusInternalServerError, map[string]any{
		"error": "internal error",
	})
}

// GetState returns the last published state without touching the network.
func (a *IdentityController) GetState(ctx router.Context) error {
	return ctx.JSON(http.StatusOK, a.Coordinator.State())
}

// Refresh re-runs the resolution pipeline and returns the fresh state.
func (a *IdentityController) Refresh(ctx router.Context) error {
	if err := a.Coordinator.Refresh(ctx.Context()); err != nil {
		return a.ErrorHandler(ctx, err)
	}
	return ctx.JSON(http.StatusOK, a.Coordinator.State())
}

// KidModeRequest names the kid profile to activate.
type KidModeRequest struct {
	KidProfileID string `form:"kid_profile_id" json:"kid_profile_id"`
}

// EnterKidMode switches the session into a kid profile.
func (a *IdentityController) EnterKidMode(ctx router.Context) error {
	payload := KidModeRequest{}
	if err := ctx.Bind(&payload); err != nil {
		return a.ErrorHandler(ctx, ErrMalformedPayload.WithMetadata(map[string]any{
			"cause": err.Error(),
		}))
	}
	if payload.KidProfileID == "" {
		return a.ErrorHandler(ctx, ErrProfileNotFound)
	}

	if err := a.Coordinator.EnterKidMode(ctx.Context(), payload.KidProfileID); err != nil {
		return a.ErrorHandler(ctx, err)
	}
	return ctx.JSON(http.StatusOK, a.Coordinator.State())
}

// ExitKidMode returns the session to the unrestricted context.
func (a *IdentityController) ExitKidMode(ctx router.Context) error {
	if err := a.Coordinator.ExitKidMode(ctx.Context()); err != nil {
		return a.ErrorHandler(ctx, err)
	}
	return ctx.JSON(http.StatusOK, a.Coordinator.State())
}

// ProfileSelectionRequest names the chosen profile.
type ProfileSelectionRequest struct {
	ProfileID string `form:"profile_id" json:"profile_id"`
}

// SelectProfile records a durable profile choice.
func (a *IdentityController) SelectProfile(ctx router.Context) error {
	payload := ProfileSelectionRequest{}
	if err := ctx.Bind(&payload); err != nil {
		return a.ErrorHandler(ctx, ErrMalformedPayload.WithMetadata(map[string]any{
			"cause": err.Error(),
		}))
	}
	if payload.ProfileID == "" {
		return a.ErrorHandler(ctx, ErrProfileNotFound)
	}

	if err := a.Coordinator.SelectProfile(ctx.Context(), payload.ProfileID); err != nil {
		return a.ErrorHandler(ctx, err)
	}
	return ctx.JSON(http.StatusOK, a.Coordinator.State())
}

// ListSessions returns the tracked device sessions.
func (a *IdentityController) ListSessions(ctx router.Context) error {
	if _, err := a.Coordinator.Identity(); err != nil {
		return a.ErrorHandler(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"sessions": a.Coordinator.Sessions().List(),
	})
}

// TerminateSession deactivates one session by id.
func (a *IdentityController) TerminateSession(ctx router.Context) error {
	sessionID := ctx.Param("id")
	if sessionID == "" {
		return a.ErrorHandler(ctx, ErrSessionNotFound)
	}

	if err := a.Coordinator.Sessions().Terminate(ctx.Context(), sessionID); err != nil {
		return a.ErrorHandler(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"sessions": a.Coordinator.Sessions().List(),
	})
}

// TerminateOtherSessions deactivates every session except the current one.
func (a *IdentityController) TerminateOtherSessions(ctx router.Context) error {
	if _, err := a.Coordinator.Identity(); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := a.Coordinator.Sessions().TerminateAllOthers(ctx.Context()); err != nil {
		return a.ErrorHandler(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"sessions": a.Coordinator.Sessions().List(),
	})
}
