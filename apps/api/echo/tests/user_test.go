package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/examportal/apps/api/echo"
	"github.com/trezcool/examportal/core/permission"
	"github.com/trezcool/examportal/core/user"
	"github.com/trezcool/examportal/tests"
)

const (
	testPwd = "Xk3#vP9q!z"

	// manages system users and students
	adminPerms = `{
		"admin_mgmt": {
			"view": true,
			"admin_system": {"view": true, "create": true, "edit": true, "delete": true},
			"admin_student": {"view": true, "create": true, "edit": true, "delete": true}
		}
	}`
)

func (app testApp) getUser(t *testing.T, id string) user.User {
	usr, err := app.usrSvc.GetByID(context.Background(), id)
	require.NoError(t, err)
	return usr
}

func Test_userApi_login(t *testing.T) {
	app := setup(t)
	testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", testPwd, permission.RoleAdmin, nil, true)
	testutil.CreateUser(t, app.usrRepo, "Inactive", "inactive", "", testPwd, permission.RoleStaff, nil, false)

	login := func(uname, pwd string) []byte {
		return marshallObj(t, echoapi.LoginRequest{Username: uname, Password: pwd})
	}
	tests := []struct {
		name     string
		body     []byte
		wantCode int
	}{
		{name: "no data", wantCode: http.StatusBadRequest},
		{name: "unknown user", body: login("lol", testPwd), wantCode: http.StatusBadRequest},
		{name: "wrong password", body: login("admin", "lol"), wantCode: http.StatusBadRequest},
		{name: "deactivated account", body: login("inactive", testPwd), wantCode: http.StatusForbidden},
		{name: "by username", body: login("admin", testPwd), wantCode: http.StatusOK},
		{name: "by email", body: login(" ADMIN@test.cd", testPwd), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			app.ServeHTTP(rec, req)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}

			var resp echoapi.LoginResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.NotEmpty(t, resp.Token)

			// the token opens authenticated routes
			req, rec = newAuthRequest(http.MethodGet, "/v1/navigation", resp.Token)
			app.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)

			req, rec = newAuthRequest(http.MethodPost, "/v1/users/token-refresh", resp.Token)
			app.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}

	usr, err := app.usrSvc.GetByUsernameOrEmail(context.Background(), "admin")
	require.NoError(t, err)
	assert.False(t, usr.LastLogin.IsZero())
}

func Test_userApi_query(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", permission.RoleAdmin, adminPerms, true)
	staff := testutil.CreateUser(t, app.usrRepo, "Staff", "staff", "staff@test.cd", "", permission.RoleStaff, nil, true)
	hero := testutil.CreateUser(t, app.usrRepo, "Hero", "hero", "hero@test.cd", "", permission.RoleStudent, nil, true)
	zed := testutil.CreateUser(t, app.usrRepo, "Zed", "zed", "zed@test.cd", "", permission.RoleStudent, nil, true)

	adminToken := getToken(t, app.conf, admin)
	path := func(v url.Values) string { return "/v1/users?" + v.Encode() }
	list := func(usrs ...user.User) []byte {
		out := make([]user.User, 0, len(usrs))
		for _, u := range usrs {
			out = append(out, app.getUser(t, u.ID))
		}
		return marshallObj(t, out)
	}

	tests := []httpTest{
		{
			name:     "no token",
			path:     path(nil),
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errMissingToken),
		},
		{
			name:     "student",
			path:     path(nil),
			token:    getToken(t, app.conf, hero),
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "staff without admin_mgmt access",
			path:     path(nil),
			token:    getToken(t, app.conf, staff),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "all",
			path:     path(nil),
			token:    adminToken,
			wantCode: http.StatusOK,
			wantData: list(admin, staff, hero, zed),
		},
		{
			name:     "by user type",
			path:     path(url.Values{"user_type": {"student"}}),
			token:    adminToken,
			wantCode: http.StatusOK,
			wantData: list(hero, zed),
		},
		{
			name:     "search",
			path:     path(url.Values{"search": {"HER"}}),
			token:    adminToken,
			wantCode: http.StatusOK,
			wantData: list(hero),
		},
		{
			name:     "ordering",
			path:     path(url.Values{"user_type": {"student"}, "ordering": {"-name"}}),
			token:    adminToken,
			wantCode: http.StatusOK,
			wantData: list(zed, hero),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method = http.MethodGet
			checkCodeAndData(t, tt, app.do(tt))
		})
	}
}

func Test_userApi_create(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", permission.RoleAdmin, adminPerms, true)
	token := getToken(t, app.conf, admin)

	newUser := func(uname string, role permission.Role, perms string) []byte {
		nu := user.NewUser{
			Name:            "New " + uname,
			Username:        uname,
			Password:        testPwd,
			PasswordConfirm: testPwd,
			Role:            role,
		}
		if perms != "" {
			nu.Permissions = json.RawMessage(perms)
		}
		return marshallObj(t, nu)
	}

	tests := []httpTest{
		{
			name:     "invalid data",
			body:     marshallObj(t, user.NewUser{Name: "Lol"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "higher user type",
			body:     newUser("root", permission.RoleSuperAdmin, ""),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"user_type": "you do not have permission to assign this user type"}),
		},
		{
			name:     "sub-module not granted",
			body:     newUser("daddy", permission.RoleParent, ""),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "username taken",
			body:     newUser("admin", permission.RoleStudent, ""),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		},
		{
			name:     "student",
			body:     newUser("hero", permission.RoleStudent, `"{\"question_bank\":{\"view\":true},\"dashboard\":{\"view\":false}}"`),
			wantCode: http.StatusCreated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method = http.MethodPost
			tt.path = "/v1/users/register"
			tt.token = token
			checkCodeAndData(t, tt, app.do(tt))
		})
	}

	usr, err := app.usrSvc.GetByUsernameOrEmail(context.Background(), "hero")
	require.NoError(t, err)
	assert.Equal(t, permission.RoleStudent, usr.Role)
	assert.True(t, usr.Permissions.Granted(permission.ModuleQuestionBank, "", permission.View))
	assert.False(t, usr.Permissions.Granted(permission.ModuleDashboard, "", permission.View))
}

func Test_userApi_retrieve(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", permission.RoleAdmin, adminPerms, true)
	staff := testutil.CreateUser(t, app.usrRepo, "Staff", "staff", "staff@test.cd", "", permission.RoleStaff, nil, true)
	student := testutil.CreateUser(t, app.usrRepo, "Student", "student", "student@test.cd", "", permission.RoleStudent, nil, true)
	staffToken := getToken(t, app.conf, staff)
	adminToken := getToken(t, app.conf, admin)

	tests := []httpTest{
		{name: "self", path: "/v1/users/" + staff.ID, token: staffToken, wantCode: http.StatusOK, wantData: marshallObj(t, app.getUser(t, staff.ID))},
		{name: "other without permission", path: "/v1/users/" + student.ID, token: staffToken, wantCode: http.StatusNotFound},
		{name: "managed user", path: "/v1/users/" + student.ID, token: adminToken, wantCode: http.StatusOK, wantData: marshallObj(t, app.getUser(t, student.ID))},
		{name: "unknown", path: "/v1/users/lol", token: adminToken, wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method = http.MethodGet
			checkCodeAndData(t, tt, app.do(tt))
		})
	}
}

func Test_userApi_update(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", permission.RoleAdmin, adminPerms, true)
	staff := testutil.CreateUser(t, app.usrRepo, "Staff", "staff", "staff@test.cd", "", permission.RoleStaff, `{"section_mgmt":{"view":true}}`, true)
	staffToken := getToken(t, app.conf, staff)
	adminToken := getToken(t, app.conf, admin)
	path := "/v1/users/" + staff.ID

	tests := []httpTest{
		{name: "own name", path: path, token: staffToken, body: marshallObj(t, user.UpdateUser{Name: "Staffer"}), wantCode: http.StatusOK},
		{name: "own user type", path: path, token: staffToken, body: marshallObj(t, user.UpdateUser{Role: permission.RoleAdmin}), wantCode: http.StatusForbidden},
		{
			name:     "higher user type",
			path:     path,
			token:    adminToken,
			body:     marshallObj(t, user.UpdateUser{Role: permission.RoleSuperAdmin}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"user_type": "you do not have permission to assign this user type"}),
		},
		{name: "promote", path: path, token: adminToken, body: marshallObj(t, user.UpdateUser{Role: permission.RoleAdmin}), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method = http.MethodPut
			checkCodeAndData(t, tt, app.do(tt))
		})
	}

	usr := app.getUser(t, staff.ID)
	assert.Equal(t, "Staffer", usr.Name)
	assert.Equal(t, permission.RoleAdmin, usr.Role)
	assert.True(t, usr.Permissions.Granted(permission.ModuleSectionMgmt, "", permission.View), "permissions survive a user type change")
}

func Test_userApi_destroy(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", permission.RoleAdmin, adminPerms, true)
	student := testutil.CreateUser(t, app.usrRepo, "Student", "student", "student@test.cd", "", permission.RoleStudent, nil, true)
	parent := testutil.CreateUser(t, app.usrRepo, "Parent", "parent", "parent@test.cd", "", permission.RoleParent, nil, true)
	adminToken := getToken(t, app.conf, admin)

	tests := []httpTest{
		{name: "self", method: http.MethodDelete, path: "/v1/users/" + admin.ID, wantCode: http.StatusForbidden},
		{name: "unmanaged user", method: http.MethodDelete, path: "/v1/users?id=" + parent.ID, wantCode: http.StatusForbidden},
		{name: "managed user", method: http.MethodDelete, path: "/v1/users/" + student.ID, wantCode: http.StatusNoContent},
		{name: "deleted", method: http.MethodGet, path: "/v1/users/" + student.ID, wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.token = adminToken
			checkCodeAndData(t, tt, app.do(tt))
		})
	}
}

func Test_userApi_queryRoles(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", permission.RoleAdmin, adminPerms, true)

	tt := httpTest{
		method:   http.MethodGet,
		path:     "/v1/users/roles",
		token:    getToken(t, app.conf, admin),
		wantCode: http.StatusOK,
		wantData: marshallObj(t, permission.RoleLabels),
	}
	checkCodeAndData(t, tt, app.do(tt))
}
