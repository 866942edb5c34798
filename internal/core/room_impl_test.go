package core_test

import (
	"errors"
	"testing"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/core/mocks"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func member(t *testing.T, sig core.SignalConnection, id domain.SessionID, name string) core.MemberSession {
	t.Helper()
	u, err := domain.NewUser(id, name)
	require.NoError(t, err)
	return core.NewMemberSession(domain.NewMember(u), sig)
}

func TestRoomMembershipKeepsJoinOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	room := core.NewRoomService(&domain.Room{Name: "lobby"})

	room.AddMember(member(t, mocks.NewMockSignalConnection(ctrl), "c", "carol"))
	room.AddMember(member(t, mocks.NewMockSignalConnection(ctrl), "a", "alice"))
	room.AddMember(member(t, mocks.NewMockSignalConnection(ctrl), "b", "bob"))
	require.Equal(t, 3, room.MemberCount())

	assert.Equal(t, []core.MemberDTO{
		{ID: "c", Username: "carol"},
		{ID: "b", Username: "bob"},
	}, room.MembersSnapshot("a"))

	room.RemoveMember("c")
	room.RemoveMember("c")
	assert.Equal(t, 2, room.MemberCount())
	_, ok := room.Member("c")
	assert.False(t, ok)
	assert.Equal(t, []core.MemberDTO{
		{ID: "a", Username: "alice"},
		{ID: "b", Username: "bob"},
	}, room.MembersSnapshot(""))
}

func TestRoomSnapshotSeesRename(t *testing.T) {
	ctrl := gomock.NewController(t)
	room := core.NewRoomService(&domain.Room{Name: "lobby"})
	ms := member(t, mocks.NewMockSignalConnection(ctrl), "a", "alice")
	room.AddMember(ms)

	require.NoError(t, ms.Meta().Rename("Alicia"))
	assert.Equal(t, "Alicia", room.MembersSnapshot("")[0].Username)
}

func TestRoomBroadcastSkipsSenderAndReportsDrops(t *testing.T) {
	ctrl := gomock.NewController(t)
	room := core.NewRoomService(&domain.Room{Name: "lobby"})
	frame := core.Frame(`{"type":"member_joined"}`)

	sender := mocks.NewMockSignalConnection(ctrl)
	fast := mocks.NewMockSignalConnection(ctrl)
	slow := mocks.NewMockSignalConnection(ctrl)
	fast.EXPECT().TrySend(frame).Return(nil)
	slow.EXPECT().TrySend(frame).Return(errors.New("backpressure"))

	room.AddMember(member(t, sender, "a", "alice"))
	room.AddMember(member(t, fast, "b", "bob"))
	slowMember := member(t, slow, "c", "carol")
	room.AddMember(slowMember)

	res := room.Broadcast("a", frame)
	assert.Equal(t, 1, res.SendTo)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, domain.SessionID("c"), res.Dropped[0].ID())
}
