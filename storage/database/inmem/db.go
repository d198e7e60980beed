package inmemdb

import (
	"sync"

	"github.com/trezcool/examportal/core/user"
)

type (
	// DB is an in-memory stand-in for the application database.
	DB struct {
		user  *userTable
		audit *auditTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
		order []string // insertion order
	}

	auditTable struct {
		sync.RWMutex
		rows []user.PermissionChange
	}
)

func Open() *DB {
	return &DB{
		user:  &userTable{table: make(map[string]*user.User)},
		audit: &auditTable{},
	}
}
