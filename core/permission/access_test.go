package permission_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/examportal/core/permission"
)

func TestHasAccess(t *testing.T) {
	tree := Normalize(`{
		"centre_mgmt": {"edit": true},
		"section_mgmt": {"view": true},
		"test_mgmt": {"test_result": {"view": true}},
		"admin_mgmt": {"view": true}
	}`, RoleStaff)

	tests := []struct {
		name   string
		role   Role
		module string
		sub    string
		want   bool
	}{
		{name: "own view", role: RoleStaff, module: ModuleSectionMgmt, want: true},
		{name: "edit without view", role: RoleStaff, module: ModuleCentreMgmt},
		{name: "any sub-module view", role: RoleStaff, module: ModuleTestMgmt, want: true},
		{name: "sub-module view", role: RoleStaff, module: ModuleTestMgmt, sub: SubTestResult, want: true},
		{name: "sub-module without view", role: RoleStaff, module: ModuleTestMgmt, sub: SubTestCreate},
		{name: "composite own view", role: RoleStaff, module: ModuleAdminMgmt, want: true},
		{name: "composite own view does not open subs", role: RoleStaff, module: ModuleAdminMgmt, sub: SubSettings},
		{name: "no access", role: RoleStaff, module: ModuleQuestionBank},
		{name: "invalid target", role: RoleStaff, module: "lol"},
		{name: "superadmin", role: RoleSuperAdmin, module: ModuleQuestionBank, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasAccess(tree, tt.role, tt.module, tt.sub))
		})
	}
}

func TestNavigation(t *testing.T) {
	tree := Normalize(`{
		"dashboard": {"view": false},
		"test_mgmt": {"test_allotment": {"view": true}, "test_result": {"view": true}},
		"question_bank": {"view": true}
	}`, RoleStaff)

	assert.Equal(t, []NavItem{
		{ID: ModuleDashboard, Label: "Dashboard"},
		{ID: ModuleTestMgmt, Label: "Test Management", SubItems: []NavItem{
			{ID: SubTestAllotment, Label: "Test Allotment"},
			{ID: SubTestResult, Label: "Test Result"},
		}},
		{ID: ModuleQuestionBank, Label: "Question Bank"},
	}, Navigation(tree, RoleStaff))

	nav := Navigation(Default(RoleSuperAdmin), RoleSuperAdmin)
	assert.Len(t, nav, len(Catalog()))
	assert.Len(t, nav[5].SubItems, 5)
}

func TestDiff(t *testing.T) {
	before := Default(RoleStaff)
	after := Normalize(`{"dashboard":{"view":false},"admin_mgmt":{"settings":{"edit":true}}}`, RoleStaff)

	assert.Equal(t, []Change{
		{Module: ModuleDashboard, Action: View, From: true, To: false},
		{Module: ModuleAdminMgmt, Sub: SubSettings, Action: Edit, From: false, To: true},
	}, Diff(before, after))
	assert.Empty(t, Diff(after, after))
	assert.Len(t, Diff(Default(RoleStaff), Default(RoleSuperAdmin)), 4*(6+4+5)-1)
}
