package ui

import (
	"testing"
	"time"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestRoomsView(t *testing.T) {
	assert.Contains(t, RoomsView(nil), "No active rooms")

	out := RoomsView([]core.RoomInfo{{Name: "alpha", MemberCount: 2}, {Name: "beta", MemberCount: 5}})
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "beta")
	assert.Contains(t, out, "Members")
}

func TestSummaryView(t *testing.T) {
	out := SummaryView(CallSummary{
		Room:      "standup",
		Self:      "abc",
		Duration:  90 * time.Second,
		PeersSeen: 3,
		Received:  3 * 1024 * 1024,
		Outcome:   "left",
	})
	assert.Contains(t, out, "standup")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "3.0 MiB")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KiB", FormatBytes(1536))
	assert.Equal(t, "2.0 GiB", FormatBytes(2<<30))
}
