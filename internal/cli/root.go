// Package cli is the meshcall command line.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dkeye/meshcall/internal/ui"
	"github.com/spf13/cobra"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "meshcall",
		Short: "Multi-party video calls over a WebRTC mesh",
		Long: `meshcall joins a room on a signaling server and opens a direct WebRTC
link to every other participant. There is no media server in between:
each peer sends its audio and video straight to each other peer.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	pf := root.PersistentFlags()
	pf.String("server", "", "signaling server address (default http://localhost:8080)")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("log-file", "", "file the client writes its log to")

	root.AddCommand(newJoinCmd(), newCreateCmd(), newRoomsCmd())
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
