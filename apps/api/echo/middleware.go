package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examportal/core/permission"
	"github.com/trezcool/examportal/core/user"
)

// staffMiddleware rejects students and parents: the admin portal is for staff only.
func staffMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.Role.IsStaff() {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// accessMiddleware requires the acting user to reach `module` (or its sub-module `sub`).
func accessMiddleware(a *authenticator, module, sub string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := a.contextUser(ctx)
			if err != nil {
				return err
			}
			if permission.HasAccess(ctxUsr.Permissions, ctxUsr.Role, module, sub) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// objectMiddleware loads the User addressed by the `:id` path param into the context.
// Users only see their own account, or the accounts they may view.
func objectMiddleware(a *authenticator, svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := a.contextUser(ctx)
			if err != nil {
				return err
			}

			usr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == user.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding user by ID")
			}
			if usr.ID != ctxUsr.ID && !ctxUsr.CanManage(permission.View, usr) {
				return errHttpNotFound
			}
			ctx.Set(contextObjKey, usr)
			return next(ctx)
		}
	}
}

func contextObject(ctx echo.Context) (user.User, error) {
	usr, ok := ctx.Get(contextObjKey).(user.User)
	if !ok {
		return user.User{}, errUsrNotFoundInCtx
	}
	return usr, nil
}
