package echoapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examportal/core/permission"
	"github.com/trezcool/examportal/core/user"
)

type permissionApi struct {
	auth     *authenticator
	svc      user.Service
	validate *validator.Validate
}

func registerPermissionAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	svc user.Service,
	validate *validator.Validate,
) {
	api := permissionApi{
		auth:     auth,
		svc:      svc,
		validate: validate,
	}

	pg := g.Group("/permissions", jwt, staffMiddleware())
	pg.GET("/catalog", api.catalog)
	pg.GET("/default", api.defaults)

	g.GET("/navigation", api.navigation, jwt, staffMiddleware())

	// a user's permission matrix
	ug := g.Group("/users/:id/permissions", jwt, staffMiddleware(), objectMiddleware(auth, svc))
	ug.GET("", api.retrieve)
	ug.PUT("", api.save)
	ug.POST("/toggle", api.toggle)
	ug.POST("/toggle-all", api.toggleAll)
	ug.POST("/reset", api.reset)
	ug.GET("/history", api.history)
}

type (
	PermissionsResponse struct {
		UserID      string               `json:"user_id"`
		Role        permission.Role      `json:"user_type"`
		Locked      bool                 `json:"locked"` // superadmin permissions cannot be edited
		Permissions permission.Tree      `json:"permissions"`
		Navigation  []permission.NavItem `json:"navigation"`
	}

	SavePermissionsRequest struct {
		// a permission tree object, or its JSON-encoded string
		Permissions json.RawMessage `json:"permissions"`
	}
)

func newPermissionsResponse(svc user.Service, usr user.User) PermissionsResponse {
	tree := svc.Permissions(usr)
	return PermissionsResponse{
		UserID:      usr.ID,
		Role:        usr.Role,
		Locked:      usr.IsSuperAdmin(),
		Permissions: tree,
		Navigation:  permission.Navigation(tree, usr.Role),
	}
}

// Handlers

func (api *permissionApi) catalog(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, permission.Catalog())
}

func (api *permissionApi) defaults(ctx echo.Context) error {
	role, err := permission.ParseRole(ctx.QueryParam("user_type"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, permission.Default(role))
}

func (api *permissionApi) navigation(ctx echo.Context) error {
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, permission.Navigation(ctxUsr.Permissions, ctxUsr.Role))
}

func (api *permissionApi) retrieve(ctx echo.Context) error {
	usr, err := contextObject(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, newPermissionsResponse(api.svc, usr))
}

// mutate runs `fn` on behalf of the acting user against the addressed user.
func (api *permissionApi) mutate(ctx echo.Context, fn func(actor, usr user.User) (user.User, error)) error {
	usr, err := contextObject(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	usr, err = fn(ctxUsr, usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newPermissionsResponse(api.svc, usr))
}

func (api *permissionApi) bindTarget(ctx echo.Context) (user.PermissionTarget, error) {
	var target user.PermissionTarget
	if err := ctx.Bind(&target); err != nil {
		return target, errors.Wrap(err, "binding to PermissionTarget")
	}
	return target, target.Validate(api.validate)
}

func (api *permissionApi) save(ctx echo.Context) error {
	var data SavePermissionsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SavePermissionsRequest")
	}
	return api.mutate(ctx, func(actor, usr user.User) (user.User, error) {
		return api.svc.SavePermissions(ctx.Request().Context(), actor, usr, data.Permissions)
	})
}

func (api *permissionApi) toggle(ctx echo.Context) error {
	target, err := api.bindTarget(ctx)
	if err != nil {
		return err
	}
	if target.Action == "" {
		return errors.Wrap(permission.ErrInvalidTarget, "action is required")
	}
	return api.mutate(ctx, func(actor, usr user.User) (user.User, error) {
		return api.svc.TogglePermission(ctx.Request().Context(), actor, usr, target)
	})
}

func (api *permissionApi) toggleAll(ctx echo.Context) error {
	target, err := api.bindTarget(ctx)
	if err != nil {
		return err
	}
	return api.mutate(ctx, func(actor, usr user.User) (user.User, error) {
		return api.svc.TogglePermissionGroup(ctx.Request().Context(), actor, usr, target)
	})
}

func (api *permissionApi) reset(ctx echo.Context) error {
	return api.mutate(ctx, func(actor, usr user.User) (user.User, error) {
		return api.svc.ResetPermissions(ctx.Request().Context(), actor, usr)
	})
}

func (api *permissionApi) history(ctx echo.Context) error {
	usr, err := contextObject(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	changes, err := api.svc.PermissionHistory(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying permission history")
	}
	return ctx.JSON(http.StatusOK, changes)
}
