// Package directory provides the identity and membership adapters the
// call core consumes. The core only sees the interfaces declared in the
// rooms package; these implementations read the social backend's user and
// group tables.
package directory

import (
	"errors"

	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/models"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/store"
)

// ErrUserNotFound is returned when an id resolves to nobody.
var ErrUserNotFound = errors.New("user not found")

// Users resolves user identities against the backing store.
type Users struct {
	store *store.Store
}

func NewUsers(st *store.Store) *Users {
	return &Users{store: st}
}

func (u *Users) Resolve(id string) (*models.User, error) {
	user, err := u.store.UserByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// Groups answers membership and admin questions against the backing
// store.
type Groups struct {
	store *store.Store
}

func NewGroups(st *store.Store) *Groups {
	return &Groups{store: st}
}

func (g *Groups) IsMember(groupID, userID string) (bool, error) {
	return g.store.IsGroupMember(groupID, userID)
}

func (g *Groups) IsAdmin(groupID, userID string) (bool, error) {
	return g.store.IsGroupAdmin(groupID, userID)
}
