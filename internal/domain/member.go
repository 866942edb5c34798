package domain

import "sync/atomic"

// Member represents user's participation meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	user atomic.Pointer[User]
}

func NewMember(user *User) *Member {
	m := &Member{}
	m.user.Store(user)
	return m
}

// User returns an immutable snapshot; renames swap in a new value.
func (m *Member) User() User {
	return *m.user.Load()
}

// Rename validates and publishes a new name for the member.
func (m *Member) Rename(name string) error {
	next := m.User()
	if err := next.SetUsername(name); err != nil {
		return err
	}
	m.user.Store(&next)
	return nil
}
