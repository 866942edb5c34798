package app_test

import (
	"testing"

	"github.com/dkeye/meshcall/internal/app"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/core/mocks"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func session(t *testing.T, id domain.SessionID, name string) core.MemberSession {
	t.Helper()
	u, err := domain.NewUser(id, name)
	require.NoError(t, err)
	return core.NewMemberSession(domain.NewMember(u), mocks.NewMockSignalConnection(gomock.NewController(t)))
}

func TestRegistryRoomAssociation(t *testing.T) {
	reg := app.NewRegistry()
	reg.BindSignal(session(t, "a", "alice"), nil)
	reg.BindSignal(session(t, "b", "bob"), nil)
	require.Equal(t, 2, reg.Len())

	_, _, ok := reg.RoomOf("a")
	assert.False(t, ok)

	assert.True(t, reg.UpdateRoom("a", "lobby"))
	assert.True(t, reg.UpdateRoom("b", "lobby"))
	assert.False(t, reg.UpdateRoom("ghost", "lobby"))

	room, sess, ok := reg.RoomOf("a")
	require.True(t, ok)
	assert.Equal(t, domain.RoomName("lobby"), room)
	assert.Equal(t, domain.SessionID("a"), sess.ID())
	assert.Len(t, reg.MembersOfRoom("lobby"), 2)

	reg.RemoveRoom("a")
	_, _, ok = reg.RoomOf("a")
	assert.False(t, ok)
	assert.Len(t, reg.MembersOfRoom("lobby"), 1)

	reg.Unbind("b")
	_, ok = reg.GetSession("b")
	assert.False(t, ok)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryRename(t *testing.T) {
	reg := app.NewRegistry()
	reg.BindSignal(session(t, "a", "alice"), nil)

	require.NoError(t, reg.Rename("a", "  Alicia "))
	u, ok := reg.User("a")
	require.True(t, ok)
	assert.Equal(t, "Alicia", u.Username)

	assert.ErrorIs(t, reg.Rename("a", "   "), domain.ErrUsernameEmpty)
	assert.ErrorIs(t, reg.Rename("ghost", "x"), domain.ErrPeerNotFound)
}

func TestRegistryCancel(t *testing.T) {
	reg := app.NewRegistry()
	canceled := false
	reg.BindSignal(session(t, "a", "alice"), func() { canceled = true })

	assert.True(t, reg.Cancel("a"))
	assert.True(t, canceled)
	assert.False(t, reg.Cancel("ghost"))
}

func TestRoomManagerLifecycle(t *testing.T) {
	rooms := app.NewRoomManager()

	lobby := rooms.GetOrCreate("lobby")
	assert.Same(t, lobby, rooms.GetOrCreate("lobby"))
	rooms.GetOrCreate("attic")

	got, ok := rooms.Get("lobby")
	require.True(t, ok)
	assert.Same(t, lobby, got)

	lobby.AddMember(session(t, "a", "alice"))
	assert.Equal(t, []core.RoomInfo{
		{Name: "attic", MemberCount: 0},
		{Name: "lobby", MemberCount: 1},
	}, rooms.List())

	assert.False(t, rooms.StopRoomIfEmpty("lobby"))
	assert.True(t, rooms.StopRoomIfEmpty("attic"))
	assert.False(t, rooms.StopRoomIfEmpty("attic"))
	_, ok = rooms.Get("attic")
	assert.False(t, ok)
}

func TestPolicies(t *testing.T) {
	assert.Equal(t, app.KickMember, app.SimplePolicy{}.OnBackPressure(nil, nil))
	assert.Equal(t, app.DropFrame, app.DropPolicy{}.OnBackPressure(nil, nil))
}
