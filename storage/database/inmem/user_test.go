package inmemdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/examportal/core"
	"github.com/trezcool/examportal/core/permission"
	"github.com/trezcool/examportal/core/user"
	"github.com/trezcool/examportal/storage/database/inmem"
	"github.com/trezcool/examportal/tests"
)

func usernames(usrs []user.User) []string {
	names := make([]string, 0, len(usrs))
	for _, u := range usrs {
		names = append(names, u.Username)
	}
	return names
}

func TestUserRepository_QueryUsers(t *testing.T) {
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	day := time.Date(2021, 1, 10, 0, 0, 0, 0, time.UTC)
	testutil.CreateUser(t, repo, "Bruce", "bruce", "bruce@test.cd", "", permission.RoleAdmin, nil, true, day)
	testutil.CreateUser(t, repo, "Alfred", "alfred", "alfred@test.cd", "", permission.RoleStaff, nil, false, day.Add(24*time.Hour))
	testutil.CreateUser(t, repo, "Dick", "dick", "robin@test.cd", "", permission.RoleStudent, nil, true, day.Add(48*time.Hour))

	active, inactive := true, false
	tests := []struct {
		name     string
		filter   *user.QueryFilter
		ordering []core.DBOrdering
		want     []string
	}{
		{name: "all", want: []string{"bruce", "alfred", "dick"}},
		{name: "search in email", filter: &user.QueryFilter{Search: "ROBIN"}, want: []string{"dick"}},
		{name: "user types", filter: &user.QueryFilter{Roles: []permission.Role{permission.RoleAdmin, permission.RoleStudent}}, want: []string{"bruce", "dick"}},
		{name: "active", filter: &user.QueryFilter{IsActive: &active}, want: []string{"bruce", "dick"}},
		{name: "inactive", filter: &user.QueryFilter{IsActive: &inactive}, want: []string{"alfred"}},
		{name: "created from", filter: &user.QueryFilter{CreatedFrom: day.Add(time.Hour)}, want: []string{"alfred", "dick"}},
		{name: "created to", filter: &user.QueryFilter{CreatedTo: day.Add(time.Hour)}, want: []string{"bruce"}},
		{name: "by name", ordering: []core.DBOrdering{{Field: "name", Ascending: true}}, want: []string{"alfred", "bruce", "dick"}},
		{name: "by user type desc", ordering: []core.DBOrdering{{Field: "user_type"}}, want: []string{"bruce", "alfred", "dick"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.QueryUsers(context.Background(), tt.filter, tt.ordering)
			require.NoError(t, err)
			assert.Equal(t, tt.want, usernames(got))
		})
	}
}

func TestUserRepository_CheckUsernameUniqueness(t *testing.T) {
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	usr := testutil.CreateUser(t, repo, "Bruce", "bruce", "bruce@test.cd", "", permission.RoleAdmin, nil, true)

	ctx := context.Background()
	assert.Equal(t, user.ErrUsernameExists, repo.CheckUsernameUniqueness(ctx, "bruce", ""))
	assert.Equal(t, user.ErrEmailExists, repo.CheckUsernameUniqueness(ctx, "batman", "bruce@test.cd"))
	assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "bruce", "bruce@test.cd", usr))
	assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "", ""))
}

func TestUserRepository_UpdateAndDelete(t *testing.T) {
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	usr := testutil.CreateUser(t, repo, "Bruce", "bruce", "bruce@test.cd", "secret", permission.RoleAdmin, nil, true)
	ctx := context.Background()

	usr.Name = "Batman"
	usr.PasswordHash = nil
	usr.Permissions, _ = permission.Toggle(usr.Permissions, usr.Role, permission.ModuleCentreMgmt, permission.View, "")
	_, err := repo.UpdateUser(ctx, usr)
	require.NoError(t, err)

	got, err := repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{"bruce@test.cd"}})
	require.NoError(t, err)
	assert.Equal(t, "Batman", got.Name)
	assert.NoError(t, got.CheckPassword("secret"), "password kept")
	assert.True(t, got.Permissions.Granted(permission.ModuleCentreMgmt, "", permission.View))

	require.NoError(t, repo.DeleteUsersByID(ctx, usr.ID, "unknown"))
	_, err = repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
	assert.Equal(t, user.ErrNotFound, err)
	_, err = repo.UpdateUser(ctx, usr)
	assert.Equal(t, user.ErrNotFound, err)
}

func TestAuditRepository(t *testing.T) {
	repo := inmemdb.NewAuditRepository(inmemdb.Open())
	ctx := context.Background()

	for _, kind := range []string{user.ChangeToggle, user.ChangeSave, user.ChangeReset} {
		_, err := repo.RecordPermissionChange(ctx, user.PermissionChange{UserID: "u1", Kind: kind})
		require.NoError(t, err)
	}
	_, err := repo.RecordPermissionChange(ctx, user.PermissionChange{UserID: "u2", Kind: user.ChangeRole})
	require.NoError(t, err)

	changes, err := repo.QueryPermissionChanges(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, changes, 3)
	assert.Equal(t, user.ChangeReset, changes[0].Kind)
	assert.Equal(t, user.ChangeToggle, changes[2].Kind)
	assert.NotEmpty(t, changes[0].ID)
	assert.False(t, changes[0].CreatedAt.IsZero())

	changes, err = repo.QueryPermissionChanges(ctx, "lol")
	require.NoError(t, err)
	assert.Empty(t, changes)
}
