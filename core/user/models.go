package user

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/examportal/core"
	"github.com/trezcool/examportal/core/permission"
)

type User struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Username     string          `json:"username"`
	Email        string          `json:"email"`
	IsActive     *bool           `json:"is_active"`
	Role         permission.Role `json:"user_type"`
	Permissions  permission.Tree `json:"permissions"`
	PasswordHash []byte          `json:"-"`
	CreatedAt    time.Time       `json:"created_at"` // UTC
	UpdatedAt    time.Time       `json:"updated_at"` // UTC
	LastLogin    time.Time       `json:"last_login"` // UTC
}

func (u *User) SetActive(active bool) {
	u.IsActive = &active
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsSuperAdmin() bool { return u.Role == permission.RoleSuperAdmin }

// IsStaff reports whether the user may enter the administrative portal.
func (u User) IsStaff() bool { return u.Role.IsStaff() }

// ManagementSubModule returns the admin_mgmt sub-module governing accounts of `role`.
func ManagementSubModule(role permission.Role) string {
	switch role {
	case permission.RoleStudent:
		return permission.SubAdminStudent
	case permission.RoleParent:
		return permission.SubAdminParent
	default:
		return permission.SubAdminSystem
	}
}

// CanManage reports whether `u` may apply `action` to `target`'s account.
// Nobody but a superadmin may act on an account ranking above their own.
func (u User) CanManage(action permission.Action, target User) bool {
	if u.IsSuperAdmin() {
		return true
	}
	if u.Role.Priority() < target.Role.Priority() {
		return false
	}
	return u.Permissions.Granted(permission.ModuleAdminMgmt, ManagementSubModule(target.Role), action)
}

// CanAssignRole reports whether `u` may give `role` to an account.
func (u User) CanAssignRole(role permission.Role) bool {
	return role.Priority() <= u.Role.Priority()
}

// NewUser contains information needed to create a new User.
// Permissions may hold a tree object or its JSON-encoded string; missing parts get the role defaults.
type NewUser struct {
	Name            string          `json:"name" validate:"required"`
	Username        string          `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string          `json:"email" validate:"omitempty,email"`
	Password        string          `json:"password" validate:"required"`
	PasswordConfirm string          `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            permission.Role `json:"user_type" validate:"required,role"`
	Permissions     json.RawMessage `json:"permissions"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = permission.Role(core.CleanString(string(nu.Role), true /* lower */))

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string          `json:"name"`
	Username        string          `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string          `json:"email" validate:"omitempty,email"`
	IsActive        *bool           `json:"is_active"`
	Role            permission.Role `json:"user_type" validate:"omitempty,role"`
	Password        string          `json:"password" validate:"omitempty"`
	PasswordConfirm string          `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	uname := core.CleanString(uu.Username, true /* lower */)
	if uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	uu.Role = permission.Role(core.CleanString(string(uu.Role), true /* lower */))

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Username, uu.Email, origUsr)
}

type QueryFilter struct {
	Search      string            `query:"search"`
	Roles       []permission.Role `query:"user_type"`
	IsActive    *bool             `query:"is_active"`
	CreatedFrom time.Time         `query:"created_from"`
	CreatedTo   time.Time         `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter looks a single User up by ID or by any of the usernames/emails.
type GetFilter struct {
	ID              string
	UsernameOrEmail []string
}

// PermissionTarget addresses a cell (Action set) or a row (Action empty) of a permission tree.
type PermissionTarget struct {
	Module    string            `json:"module" validate:"required,pmodule"`
	SubModule string            `json:"sub_module"`
	Action    permission.Action `json:"action" validate:"omitempty,paction"`
}

func (pt *PermissionTarget) Validate(validate *validator.Validate) error {
	pt.Module = core.CleanString(pt.Module, true /* lower */)
	pt.SubModule = core.CleanString(pt.SubModule, true /* lower */)
	pt.Action = permission.Action(core.CleanString(string(pt.Action), true /* lower */))
	return validate.Struct(pt)
}

func (pt PermissionTarget) String() string {
	s := pt.Module
	if pt.SubModule != "" {
		s += "." + pt.SubModule
	}
	if pt.Action != "" {
		s += "." + string(pt.Action)
	}
	return s
}

// Permission change kinds
const (
	ChangeToggle    = "toggle"
	ChangeToggleAll = "toggle_all"
	ChangeSave      = "save"
	ChangeReset     = "reset"
	ChangeRole      = "role"
)

// PermissionChange is an audit record of one mutation of a User's permission tree.
type PermissionChange struct {
	ID        string              `json:"id"`
	UserID    string              `json:"user_id"`
	ActorID   string              `json:"actor_id,omitempty"` // empty for CLI changes
	Kind      string              `json:"kind"`
	Target    string              `json:"target,omitempty"`
	Changes   []permission.Change `json:"changes"`
	Before    permission.Tree     `json:"before"`
	After     permission.Tree     `json:"after"`
	CreatedAt time.Time           `json:"created_at"` // UTC
}
