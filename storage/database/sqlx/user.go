package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examportal/core"
	"github.com/trezcool/examportal/core/permission"
	"github.com/trezcool/examportal/core/user"
)

const userColumns = `"id", "name", "username", "email", "is_active", "user_type", "permissions", "password_hash", "created_at", "updated_at", "last_login"`

var userOrderingFields = []string{"name", "username", "email", "is_active", "user_type", "created_at", "updated_at", "last_login"}

type dbUser struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Username     null.String `db:"username"`
	Email        null.String `db:"email"`
	IsActive     bool        `db:"is_active"`
	Role         string      `db:"user_type"`
	Permissions  null.String `db:"permissions"` // JSONB
	PasswordHash []byte      `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

type userRepository struct {
	db     *sqlx.DB
	logger core.Logger
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB, logger core.Logger) user.Repository {
	return &userRepository{db: db, logger: logger}
}

func (repo *userRepository) toDB(usr user.User) (dbUser, error) {
	u := dbUser{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsActive:     usr.IsActive == nil || *usr.IsActive,
		Role:         string(usr.Role),
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
	perms, err := usr.Permissions.Value()
	if err != nil {
		return dbUser{}, errors.Wrap(err, "encoding permissions")
	}
	if s, ok := perms.(string); ok {
		u.Permissions = null.StringFrom(s)
	}
	return u, nil
}

// fromDB converts a row to a User, repairing its stored permissions for the user's type.
func (repo *userRepository) fromDB(u dbUser) user.User {
	role := permission.Role(u.Role)
	var raw interface{}
	if u.Permissions.Valid {
		raw = u.Permissions.String
	}
	perms, issues := permission.Repair(raw, role)
	for _, issue := range issues {
		repo.logger.Warn(
			"malformed stored permissions: "+issue.Error(),
			map[string]interface{}{"user_id": u.ID, "path": issue.Path},
		)
	}

	usr := user.User{
		ID:           u.ID,
		Name:         u.Name,
		Username:     u.Username.String,
		Email:        u.Email.String,
		Role:         role,
		Permissions:  perms,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt.UTC(),
		UpdatedAt:    u.UpdatedAt.UTC(),
	}
	usr.SetActive(u.IsActive)
	if u.LastLogin.Valid {
		usr.LastLogin = u.LastLogin.Time.UTC()
	}
	return usr
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	query := `SELECT "username", "email" FROM "user" WHERE ("username" = ? OR "email" = ?)`
	args := []interface{}{null.NewString(username, username != ""), null.NewString(email, email != "")}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		query += ` AND "id" NOT IN (?)`
		args = append(args, ids)
	}

	query, args, err := sqlx.In(query+" LIMIT 1", args...)
	if err != nil {
		return errors.Wrap(err, "building uniqueness query")
	}
	var found struct {
		Username null.String `db:"username"`
		Email    null.String `db:"email"`
	}
	err = repo.db.GetContext(ctx, &found, repo.db.Rebind(query), args...)
	switch {
	case err == sql.ErrNoRows:
		return nil
	case err != nil:
		return errors.Wrap(err, "checking user uniqueness")
	case username != "" && found.Username.String == username:
		return user.ErrUsernameExists
	default:
		return user.ErrEmailExists
	}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	u, err := repo.toDB(usr)
	if err != nil {
		return user.User{}, err
	}

	_, err = repo.db.NamedExecContext(ctx, `
		INSERT INTO "user" (`+userColumns+`)
		VALUES (:id, :name, :username, :email, :is_active, :user_type, :permissions, :password_hash, :created_at, :updated_at, :last_login)`,
		u)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.fromDB(u), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	var (
		conds []string
		args  []interface{}
	)

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			conds = append(conds, `("name" ILIKE ? OR "username" ILIKE ? OR "email" ILIKE ?)`)
			args = append(args, val, val, val)
		}
		if len(filter.Roles) > 0 {
			roles := make([]string, 0, len(filter.Roles))
			for _, r := range filter.Roles {
				roles = append(roles, string(r))
			}
			conds = append(conds, `"user_type" IN (?)`)
			args = append(args, roles)
		}
		if filter.IsActive != nil {
			conds = append(conds, `"is_active" = ?`)
			args = append(args, *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			conds = append(conds, `"created_at" >= ?`)
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			conds = append(conds, `"created_at" <= ?`)
			args = append(args, filter.CreatedTo.UTC())
		}
	}

	query := `SELECT ` + userColumns + ` FROM "user"`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if ords := core.FilterOrderings(ordering, userOrderingFields...); len(ords) > 0 {
		orderList := make([]string, 0, len(ords))
		for _, ord := range ords {
			orderList = append(orderList, ord.String())
		}
		query += " ORDER BY " + strings.Join(orderList, ", ")
	} else {
		query += ` ORDER BY "created_at" ASC`
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building users query")
	}
	var rows []dbUser
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}

	users := make([]user.User, 0, len(rows))
	for _, u := range rows {
		users = append(users, repo.fromDB(u))
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		query string
		args  []interface{}
	)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		query = `SELECT ` + userColumns + ` FROM "user" WHERE "id" = ?`
		args = append(args, filter.ID)
	case len(filter.UsernameOrEmail) > 0:
		query = `SELECT ` + userColumns + ` FROM "user" WHERE "username" IN (?) OR "email" IN (?) LIMIT 1`
		args = append(args, filter.UsernameOrEmail, filter.UsernameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return user.User{}, errors.Wrap(err, "building user query")
	}
	var u dbUser
	if err = repo.db.GetContext(ctx, &u, repo.db.Rebind(query), args...); err != nil {
		return user.User{}, trapNoRowsErr(err, "finding user")
	}
	return repo.fromDB(u), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	u, err := repo.toDB(usr)
	if err != nil {
		return user.User{}, err
	}

	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE "user" SET
			"name" = :name, "username" = :username, "email" = :email, "is_active" = :is_active,
			"user_type" = :user_type, "permissions" = :permissions, "password_hash" = :password_hash,
			"updated_at" = :updated_at, "last_login" = :last_login
		WHERE "id" = :id`,
		u)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.fromDB(u), nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr)
	}
	return repo.UpdateUser(ctx, usr)
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM "user" WHERE "id" IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}
