package remember

import (
	"context"
	"strings"
	"sync"

	"github.com/goliatone/go-errors"
)

// ErrUserNotFound is returned by StaticUsers for unknown usernames
var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode("USER_NOT_FOUND").
	WithCode(errors.CodeNotFound)

var _ UserDetails = User{}

// User is a plain UserDetails value
type User struct {
	Name         string
	PasswordHash string
	UserRoles    []string
	Disabled     bool
}

func (u User) Username() string { return u.Name }
func (u User) Password() string { return u.PasswordHash }
func (u User) Roles() []string  { return append([]string(nil), u.UserRoles...) }
func (u User) Enabled() bool    { return !u.Disabled }

var _ UserLookup = (*StaticUsers)(nil)

// StaticUsers is an in memory UserLookup. Usernames are case insensitive.
type StaticUsers struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewStaticUsers(users ...User) *StaticUsers {
	s := &StaticUsers{users: make(map[string]User, len(users))}
	for _, u := range users {
		s.Put(u)
	}
	return s
}

// Put adds or replaces a user
func (s *StaticUsers) Put(user User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[normalizeUsername(user.Name)] = user
}

// Remove deletes a user
func (s *StaticUsers) Remove(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, normalizeUsername(username))
}

func (s *StaticUsers) LoadUserByUsername(_ context.Context, username string) (UserDetails, error) {
	s.mu.RLock()
	user, ok := s.users[normalizeUsername(username)]
	s.mu.RUnlock()
	if !ok {
		return nil, failure(ErrUserNotFound, map[string]any{"username": username})
	}
	return user, nil
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
