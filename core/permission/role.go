package permission

import (
	"strings"

	"github.com/pkg/errors"
)

// Role is the account type a permission Tree belongs to.
type Role string

// Roles
const (
	RoleStudent    Role = "student"
	RoleParent     Role = "parent"
	RoleStaff      Role = "staff"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"

	// unowned stands for a tree decoded without knowing its owner; it gets the editable defaults
	unowned Role = ""
)

var (
	ErrUnknownRole = errors.New("unknown role")

	AllRoles = []Role{RoleStudent, RoleParent, RoleStaff, RoleAdmin, RoleSuperAdmin}

	RoleLabels = []RoleLabel{
		{Name: "Student", Value: RoleStudent},
		{Name: "Parent", Value: RoleParent},
		{Name: "Staff", Value: RoleStaff},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Super Admin", Value: RoleSuperAdmin},
	}

	rolePriorities = map[Role]int{
		RoleSuperAdmin: 30,

		// staff side: 21 - 11
		RoleAdmin: 21,
		RoleStaff: 11,

		// portal users: 10 - 1
		RoleParent:  2,
		RoleStudent: 1,
	}
)

type RoleLabel struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

// ParseRole maps `s` (case-insensitive) to a known Role.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := rolePriorities[role]; !ok {
		return "", errors.Wrapf(ErrUnknownRole, "%q", s)
	}
	return role, nil
}

func (r Role) IsValid() bool {
	_, ok := rolePriorities[r]
	return ok
}

// IsStaff reports whether the role may enter the administrative portal.
func (r Role) IsStaff() bool {
	return r.Priority() >= rolePriorities[RoleStaff]
}

func (r Role) Priority() int {
	return rolePriorities[r]
}

// locked is the single place deciding whether a tree is force-granted and frozen.
func locked(role Role) bool {
	return role == RoleSuperAdmin
}
