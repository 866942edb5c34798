package cli

import (
	"fmt"
	"strings"

	"github.com/dkeye/meshcall/internal/ui"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const roomCodeLen = 8

func newJoinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "join <room>",
		Aliases: []string{"j"},
		Short:   "Join a call room",
		Long: `Join a room and connect to everyone already in it. People who join
later call you; you answer automatically.

Keys while in a call: a toggles audio, v toggles video, q leaves.

Examples:
  meshcall join standup --name Ada
  meshcall join standup --capture file --video-file demo.ivf --audio-file demo.ogg
  meshcall join standup --server https://calls.example.com --force-relay --turn turn:turn.example.com:3478`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, args[0])
		},
	}
	addCallFlags(cmd.Flags())
	return cmd
}

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "create",
		Aliases: []string{"new"},
		Short:   "Create a new room and join it",
		Long: `Generate a fresh room code, print it so others can join, then join it.

Examples:
  meshcall create --name Ada`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			room := newRoomCode()
			fmt.Println(ui.RoomCreatedView(room))
			return runCall(cmd, room)
		},
	}
	addCallFlags(cmd.Flags())
	return cmd
}

func newRoomCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:roomCodeLen]
}
