package permission_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/examportal/core/permission"
)

func TestNormalize_shape(t *testing.T) {
	inputs := []struct {
		name string
		raw  interface{}
	}{
		{name: "nil", raw: nil},
		{name: "empty object", raw: "{}"},
		{name: "empty string", raw: ""},
		{name: "not json", raw: "not json"},
		{name: "json null", raw: "null"},
		{name: "json array", raw: `[1,2]`},
		{name: "bytes", raw: []byte(`{"dashboard":{"view":false}}`)},
		{name: "raw message", raw: json.RawMessage(`{"admin_mgmt":{"settings":{"edit":true}}}`)},
		{name: "missing modules", raw: map[string]interface{}{"centre_mgmt": map[string]interface{}{"view": true}}},
		{name: "missing sub-modules", raw: map[string]interface{}{"test_mgmt": map[string]interface{}{"view": true, "test_create": map[string]interface{}{"view": true}}}},
		{name: "legacy flat composite", raw: `{"admin_mgmt":{"view":true,"create":true,"edit":false,"delete":false}}`},
		{name: "module as boolean", raw: `{"test_mgmt":true}`},
		{name: "unsupported type", raw: 42},
		{name: "zero tree", raw: Tree{}},
	}
	for _, role := range AllRoles {
		for _, in := range inputs {
			t.Run(string(role)+"/"+in.name, func(t *testing.T) {
				tree := Normalize(in.raw, role)
				assertShape(t, tree)
				if role == RoleSuperAdmin {
					assert.True(t, tree.AllGranted())
				}
			})
		}
	}
}

func TestNormalize_dashboardOverride(t *testing.T) {
	tree := Normalize(`{"dashboard":{"view":false}}`, RoleStaff)
	assertShape(t, tree)

	want := leaves(Default(RoleStaff))
	want["dashboard.view"] = false
	assert.Equal(t, want, leaves(tree))
}

func TestNormalize_roundTrip(t *testing.T) {
	for _, role := range AllRoles {
		t.Run(string(role), func(t *testing.T) {
			tree := Default(role)
			data, err := json.Marshal(tree)
			require.NoError(t, err)

			assert.True(t, tree.Equal(Normalize(data, role)))
			assert.True(t, tree.Equal(Normalize(string(data), role)))
			assert.True(t, tree.Equal(Normalize(tree, role)))
			assert.True(t, tree.Equal(Normalize(&tree, role)))

			var generic map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &generic))
			assert.True(t, tree.Equal(Normalize(generic, role)))
		})
	}
}

func TestNormalize_doubleEncoded(t *testing.T) {
	inner := `{"question_bank":{"view":true,"create":true}}`
	outer, err := json.Marshal(inner)
	require.NoError(t, err)

	tree := Normalize(outer, RoleStaff)
	assert.True(t, tree.Granted(ModuleQuestionBank, "", View))
	assert.True(t, tree.Granted(ModuleQuestionBank, "", Create))

	// only one level of wrapping is undone
	twice, err := json.Marshal(string(outer))
	require.NoError(t, err)
	assert.True(t, Default(RoleStaff).Equal(Normalize(twice, RoleStaff)))
}

func TestRepair(t *testing.T) {
	raw := `{
		"dashboard": {"view": "yes", "create": true},
		"centre_mgmt": [],
		"question_bank": {"edit": true, "extra": true},
		"test_mgmt": {"view": true, "test_result": {"delete": true, "view": 1}, "test_unknown": {}, "test_create": "lol"},
		"reports": {"view": true}
	}`
	tree, issues := Repair(raw, RoleAdmin)
	assertShape(t, tree)

	want := leaves(Default(RoleAdmin))
	want["dashboard.create"] = true
	want["question_bank.edit"] = true
	want["test_mgmt.view"] = true
	want["test_mgmt.test_result.delete"] = true
	assert.Equal(t, want, leaves(tree))

	paths := make([]string, 0, len(issues))
	for _, iss := range issues {
		paths = append(paths, iss.Path)
		assert.NotEmpty(t, iss.Error())
	}
	assert.ElementsMatch(t, []string{
		"centre_mgmt",
		"dashboard.view",
		"question_bank.extra",
		"reports",
		"test_mgmt.test_create",
		"test_mgmt.test_result.view",
		"test_mgmt.test_unknown",
	}, paths)
}

func TestNormalize_typedMaps(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
		want map[string]bool
	}{
		{
			name: "map of bool maps",
			raw:  map[string]map[string]bool{"dashboard": {"view": false}, "centre_mgmt": {"edit": true}},
			want: map[string]bool{"dashboard.view": false, "centre_mgmt.edit": true},
		},
		{
			name: "nested typed map",
			raw:  map[string]interface{}{"dashboard": map[string]bool{"view": false}},
			want: map[string]bool{"dashboard.view": false},
		},
		{
			name: "sub-module",
			raw:  map[string]map[string]map[string]bool{"test_mgmt": {"test_result": {"view": true}}},
			want: map[string]bool{"test_mgmt.test_result.view": true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, issues := Repair(tt.raw, RoleStaff)
			assert.Empty(t, issues)

			want := leaves(Default(RoleStaff))
			for path, v := range tt.want {
				want[path] = v
			}
			assert.Equal(t, want, leaves(tree))
		})
	}
}

func TestRepair_unencodableInput(t *testing.T) {
	tree, issues := Repair(func() {}, RoleStaff)
	assert.True(t, Default(RoleStaff).Equal(tree))
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Error(), "unsupported input type")
}

func TestRepair_invalidJSON(t *testing.T) {
	tree, issues := Repair("{not json", RoleParent)
	assert.True(t, Default(RoleParent).Equal(tree))
	require.Len(t, issues, 1)
	assert.Empty(t, issues[0].Path)
	assert.Contains(t, issues[0].Error(), "invalid JSON")
}

func TestRepair_superadminIgnoresInput(t *testing.T) {
	tree, issues := Repair(`{"dashboard":{"view":false},"lol":1}`, RoleSuperAdmin)
	assert.True(t, tree.AllGranted())
	assert.Empty(t, issues)
}

func TestNormalize_doesNotShareInput(t *testing.T) {
	src := Default(RoleStaff)
	tree := Normalize(src, RoleStaff)
	tree, err := Toggle(tree, RoleStaff, ModuleAdminMgmt, View, SubSettings)
	require.NoError(t, err)

	assert.False(t, src.Granted(ModuleAdminMgmt, SubSettings, View))
	assert.True(t, tree.Granted(ModuleAdminMgmt, SubSettings, View))
}
