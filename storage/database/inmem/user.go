package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/examportal/core"
	"github.com/trezcool/examportal/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

// copyUser detaches `usr` from the caller's pointers.
func copyUser(usr user.User) user.User {
	if usr.IsActive != nil {
		usr.SetActive(*usr.IsActive)
	}
	if usr.PasswordHash != nil {
		usr.PasswordHash = append([]byte(nil), usr.PasswordHash...)
	}
	return usr
}

// query returns the stored users in insertion order. Caller must hold the lock.
func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.order))
	for _, id := range repo.db.order {
		users = append(users, copyUser(*repo.db.table[id]))
	}
	return users
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}

	for _, usr := range repo.query() {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr = copyUser(usr)
	usr.ID = uuid.New().String()
	if usr.IsActive == nil {
		usr.SetActive(true)
	}
	repo.db.table[usr.ID] = &usr
	repo.db.order = append(repo.db.order, usr.ID)
	return copyUser(usr), nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := repo.query()
	if filter != nil && !filter.IsEmpty() {
		filtered := make([]user.User, 0, len(users))
		for _, u := range users {
			if matches(u, filter) {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}
	sortUsers(users, ordering)
	return users, nil
}

// matches applies AND operation on the set QueryFilter fields.
func matches(u user.User, filter *user.QueryFilter) bool {
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(u.Username), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) &&
			!strings.Contains(strings.ToLower(u.Name), search) {
			return false
		}
	}
	if len(filter.Roles) > 0 {
		found := false
		for _, r := range filter.Roles {
			if u.Role == r {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsActive != nil && (u.IsActive == nil || *u.IsActive != *filter.IsActive) {
		return false
	}
	if !filter.CreatedFrom.IsZero() && u.CreatedAt.Before(filter.CreatedFrom.UTC()) {
		return false
	}
	if !filter.CreatedTo.IsZero() && u.CreatedAt.After(filter.CreatedTo.UTC()) {
		return false
	}
	return true
}

func sortUsers(users []user.User, ordering []core.DBOrdering) {
	compare := func(a, b user.User, field string) int {
		var x, y string
		switch field {
		case "name":
			x, y = strings.ToLower(a.Name), strings.ToLower(b.Name)
		case "username":
			x, y = a.Username, b.Username
		case "email":
			x, y = a.Email, b.Email
		case "user_type":
			pa, pb := a.Role.Priority(), b.Role.Priority()
			switch {
			case pa < pb:
				return -1
			case pa > pb:
				return 1
			}
			return 0
		case "created_at":
			switch {
			case a.CreatedAt.Before(b.CreatedAt):
				return -1
			case a.CreatedAt.After(b.CreatedAt):
				return 1
			}
			return 0
		case "last_login":
			switch {
			case a.LastLogin.Before(b.LastLogin):
				return -1
			case a.LastLogin.After(b.LastLogin):
				return 1
			}
			return 0
		}
		return strings.Compare(x, y)
	}

	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			c := compare(users[i], users[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.table[filter.ID]; ok {
			return copyUser(*usr), nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.query() {
		for _, val := range filter.UsernameOrEmail {
			if val != "" && (usr.Username == val || usr.Email == val) {
				return usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	origUsr, ok := repo.db.table[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	usr = copyUser(usr)
	usr.CreatedAt = origUsr.CreatedAt
	if usr.IsActive == nil {
		usr.IsActive = origUsr.IsActive
	}
	if usr.PasswordHash == nil {
		usr.PasswordHash = origUsr.PasswordHash
	}
	repo.db.table[usr.ID] = &usr
	return copyUser(usr), nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr)
	}
	return repo.UpdateUser(ctx, usr)
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	toDelete := make(map[string]bool, len(ids))
	for _, id := range ids {
		toDelete[id] = true
		delete(repo.db.table, id)
	}
	order := repo.db.order[:0]
	for _, id := range repo.db.order {
		if !toDelete[id] {
			order = append(order, id)
		}
	}
	repo.db.order = order
	return nil
}
