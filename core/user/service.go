package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/examportal/core"
	"github.com/trezcool/examportal/core/permission"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrForbidden      = errors.New("you do not have permission to perform this action")

	errNoPermsToSetRole = "you do not have permission to assign this user type"

	// NowFunc is mocked in tests
	NowFunc = time.Now
)

const permissionsUpdatedTmpl = "permissions_updated"

func init() {
	err := core.RegisterEmailTemplate(
		permissionsUpdatedTmpl,
		`Hi {{.Data.Name}},

Your access to {{.Data.AppName}} has been updated:
{{range .Data.Changes}}  - {{.}}
{{end}}
Sign in at {{.FrontendBaseURL}} to see what changed.
`,
		`<p>Hi {{.Data.Name}},</p>
<p>Your access to {{.Data.AppName}} has been updated:</p>
<ul>{{range .Data.Changes}}<li>{{.}}</li>{{end}}</ul>
<p><a href="{{.FrontendBaseURL}}">Sign in</a> to see what changed.</p>
`,
	)
	if err != nil {
		panic(err)
	}
}

type (
	Repository interface {
		// CheckUsernameUniqueness returns ErrUsernameExists or ErrEmailExists when another user
		// (not in excludedUsers) already holds `username` or `email`.
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, user User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, user User) (User, error)
		UpdateOrCreateUser(ctx context.Context, user User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error
	}

	// AuditRepository stores the history of permission changes.
	AuditRepository interface {
		RecordPermissionChange(ctx context.Context, change PermissionChange) (PermissionChange, error)
		// QueryPermissionChanges returns the changes made to user `userID`, most recent first.
		QueryPermissionChanges(ctx context.Context, userID string) ([]PermissionChange, error)
	}

	Service interface {
		CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		Update(ctx context.Context, actor, usr User, uu UpdateUser) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		SetPassword(ctx context.Context, usr User, pwd string) (User, error)
		Delete(ctx context.Context, ids ...string) error

		// permissions
		Permissions(usr User) permission.Tree
		TogglePermission(ctx context.Context, actor, usr User, target PermissionTarget) (User, error)
		TogglePermissionGroup(ctx context.Context, actor, usr User, target PermissionTarget) (User, error)
		SavePermissions(ctx context.Context, actor, usr User, raw interface{}) (User, error)
		ResetPermissions(ctx context.Context, actor, usr User) (User, error)
		PromoteSuperAdmin(ctx context.Context, usr User) (User, error)
		PermissionHistory(ctx context.Context, usr User) ([]PermissionChange, error)
	}

	service struct {
		repo    Repository
		audit   AuditRepository
		mailSvc core.EmailService
		logger  core.Logger
		conf    *core.Config
	}
)

func NewService(repo Repository, audit AuditRepository, mailSvc core.EmailService, logger core.Logger, conf *core.Config) Service {
	return &service{
		repo:    repo,
		audit:   audit,
		mailSvc: mailSvc,
		logger:  logger,
		conf:    conf,
	}
}

func (svc *service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclUsers...); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := NowFunc().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		Role:      nu.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(true)
	usr.Permissions = svc.repair(usr.ID, nu.Permissions, usr.Role)
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	if filter != nil {
		filter.Clean()
	}
	users, err := svc.repo.QueryUsers(ctx, filter, ordering)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Permissions = svc.Permissions(users[i])
	}
	return users, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.get(ctx, GetFilter{ID: id})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.get(ctx, GetFilter{UsernameOrEmail: []string{core.CleanString(uname, true /* lower */)}})
}

func (svc *service) get(ctx context.Context, filter GetFilter) (User, error) {
	usr, err := svc.repo.GetUser(ctx, filter)
	if err != nil {
		return User{}, err
	}
	usr.Permissions = svc.Permissions(usr)
	return usr, nil
}

// Update applies `uu` (already validated) to `usr` on behalf of `actor`.
// A new user type re-shapes the stored permissions for that type.
func (svc *service) Update(ctx context.Context, actor, usr User, uu UpdateUser) (User, error) {
	before := svc.Permissions(usr)
	roleChanged := uu.Role != "" && uu.Role != usr.Role
	if roleChanged && !actor.CanAssignRole(uu.Role) {
		return User{}, core.NewValidationError(
			ErrForbidden,
			core.FieldError{Field: "user_type", Error: errNoPermsToSetRole},
		)
	}

	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	if uu.IsActive != nil {
		usr.SetActive(*uu.IsActive)
	}
	if roleChanged {
		usr.Role = uu.Role
	}
	usr.Permissions = permission.Normalize(before, usr.Role)
	usr.UpdatedAt = NowFunc().UTC()
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, err
		}
	}

	updated, err := svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}
	if roleChanged {
		svc.afterPermissionChange(ctx, actor.ID, updated, ChangeRole, string(uu.Role), before)
	}
	return updated, nil
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = NowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, err
	}
	usr.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

// Permissions returns the permission tree of `usr` shaped for its user type.
// Stored blobs are repaired, and their defects logged, by the repository that decodes them.
func (svc *service) Permissions(usr User) permission.Tree {
	return permission.Normalize(usr.Permissions, usr.Role)
}

// repair normalizes `raw` for a `role` user and reports any malformed parts it dropped.
func (svc *service) repair(userID string, raw interface{}, role permission.Role) permission.Tree {
	tree, issues := permission.Repair(raw, role)
	for _, issue := range issues {
		svc.logger.Warn(
			"malformed permissions: "+issue.Error(),
			map[string]interface{}{"user_id": userID, "path": issue.Path},
		)
	}
	return tree
}

// authorizePermissionEdit checks that `actor` may change the permissions of `usr`.
// Only a superadmin may edit their own permissions.
func authorizePermissionEdit(actor, usr User) error {
	if actor.ID == usr.ID && !actor.IsSuperAdmin() {
		return ErrForbidden
	}
	if !actor.CanManage(permission.Edit, usr) {
		return ErrForbidden
	}
	return nil
}

func (svc *service) TogglePermission(ctx context.Context, actor, usr User, target PermissionTarget) (User, error) {
	return svc.mutatePermissions(ctx, actor, usr, ChangeToggle, target.String(), func(t permission.Tree) (permission.Tree, error) {
		return permission.Toggle(t, usr.Role, target.Module, target.Action, target.SubModule)
	})
}

func (svc *service) TogglePermissionGroup(ctx context.Context, actor, usr User, target PermissionTarget) (User, error) {
	return svc.mutatePermissions(ctx, actor, usr, ChangeToggleAll, target.String(), func(t permission.Tree) (permission.Tree, error) {
		return permission.ToggleAll(t, usr.Role, target.Module, target.SubModule)
	})
}

// SavePermissions replaces the permissions of `usr` with `raw`, normalized for the user's type.
func (svc *service) SavePermissions(ctx context.Context, actor, usr User, raw interface{}) (User, error) {
	return svc.mutatePermissions(ctx, actor, usr, ChangeSave, "", func(permission.Tree) (permission.Tree, error) {
		return svc.repair(usr.ID, raw, usr.Role), nil
	})
}

func (svc *service) ResetPermissions(ctx context.Context, actor, usr User) (User, error) {
	return svc.mutatePermissions(ctx, actor, usr, ChangeReset, "", func(permission.Tree) (permission.Tree, error) {
		return permission.Default(usr.Role), nil
	})
}

// PromoteSuperAdmin turns `usr` into a superadmin. It is meant for the admin CLI.
func (svc *service) PromoteSuperAdmin(ctx context.Context, usr User) (User, error) {
	before := svc.Permissions(usr)
	if usr.IsSuperAdmin() {
		usr.Permissions = before
		return usr, nil
	}

	usr.Role = permission.RoleSuperAdmin
	usr.Permissions = permission.Default(permission.RoleSuperAdmin)
	usr.UpdatedAt = NowFunc().UTC()
	updated, err := svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}
	svc.afterPermissionChange(ctx, "", updated, ChangeRole, string(permission.RoleSuperAdmin), before)
	return updated, nil
}

func (svc *service) PermissionHistory(ctx context.Context, usr User) ([]PermissionChange, error) {
	return svc.audit.QueryPermissionChanges(ctx, usr.ID)
}

func (svc *service) mutatePermissions(
	ctx context.Context,
	actor, usr User,
	kind, target string,
	mutate func(permission.Tree) (permission.Tree, error),
) (User, error) {
	if err := authorizePermissionEdit(actor, usr); err != nil {
		return User{}, err
	}

	before := svc.Permissions(usr)
	after, err := mutate(before)
	if err != nil {
		return User{}, err
	}
	if after.Equal(before) {
		usr.Permissions = before
		return usr, nil
	}

	usr.Permissions = after
	usr.UpdatedAt = NowFunc().UTC()
	updated, err := svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "saving permissions")
	}
	svc.afterPermissionChange(ctx, actor.ID, updated, kind, target, before)
	return updated, nil
}

// afterPermissionChange records the audit entry and notifies `usr` of the flags that changed.
// Neither step fails the mutation, which is already persisted.
func (svc *service) afterPermissionChange(ctx context.Context, actorID string, usr User, kind, target string, before permission.Tree) {
	changes := permission.Diff(before, usr.Permissions)
	if len(changes) == 0 {
		return
	}

	_, err := svc.audit.RecordPermissionChange(ctx, PermissionChange{
		UserID:    usr.ID,
		ActorID:   actorID,
		Kind:      kind,
		Target:    target,
		Changes:   changes,
		Before:    before,
		After:     usr.Permissions,
		CreatedAt: NowFunc().UTC(),
	})
	if err != nil {
		svc.logger.Error("recording permission change", err, map[string]interface{}{"user_id": usr.ID, "kind": kind})
	}

	if usr.Email == "" {
		return
	}
	lines := make([]string, 0, len(changes))
	for _, c := range changes {
		state := "revoked"
		if c.To {
			state = "granted"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", c.Path(), state))
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Your permissions were updated",
		TemplateName: permissionsUpdatedTmpl,
		TemplateData: map[string]interface{}{
			"Name":    usr.Name,
			"AppName": svc.conf.AppName,
			"Changes": lines,
		},
	})
}
