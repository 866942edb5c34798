package cli

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dkeye/meshcall/internal/adapters/capture"
	"github.com/dkeye/meshcall/internal/adapters/rtc"
	"github.com/dkeye/meshcall/internal/adapters/wsclient"
	"github.com/dkeye/meshcall/internal/app/mesh"
	"github.com/dkeye/meshcall/internal/config"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/ui"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// addCallFlags registers the flags shared by every command that joins a call.
// Names map onto config keys with dashes turned into underscores.
func addCallFlags(fs *pflag.FlagSet) {
	fs.StringP("name", "n", "", "display name shown to the other participants")
	fs.StringSlice("stun", nil, "STUN server URLs")
	fs.StringSlice("turn", nil, "TURN server URLs")
	fs.String("turn-user", "", "TURN username")
	fs.String("turn-pass", "", "TURN password")
	fs.Bool("force-relay", false, "only use TURN relay candidates")
	fs.Duration("open-timeout", 0, "how long to wait for the server to assign a session")
	fs.Duration("negotiation-timeout", 0, "how long each peer link may take to deliver media")
	fs.Bool("video", true, "send video")
	fs.Bool("audio", true, "send audio")
	fs.String("capture", "", "media source: rtp, file, device or none")
	fs.String("video-rtp", "", "UDP address receiving VP8 RTP for --capture rtp")
	fs.String("audio-rtp", "", "UDP address receiving Opus RTP for --capture rtp")
	fs.String("video-file", "", "IVF file played as video for --capture file")
	fs.String("audio-file", "", "Ogg file played as audio for --capture file")
	fs.Bool("file-loop", true, "restart capture files when they end")
}

func rtcConfig(cfg *config.ClientConfig) rtc.Config {
	c := rtc.DefaultConfig()
	c.STUN = cfg.STUN
	c.TURN = cfg.TURN
	c.TURNUser = cfg.TURNUser
	c.TURNPass = cfg.TURNPass
	c.ForceRelay = cfg.ForceRelay
	return c
}

func newDevice(cfg *config.ClientConfig) core.CaptureDevice {
	switch cfg.Capture {
	case config.CaptureRTP:
		return capture.RTPIngest{VideoAddr: cfg.VideoRTP, AudioAddr: cfg.AudioRTP}
	case config.CaptureFile:
		return capture.FileSource{VideoPath: cfg.VideoFile, AudioPath: cfg.AudioFile, Loop: cfg.FileLoop}
	case config.CaptureDevice:
		return capture.Devices{}
	default:
		return capture.Silent{}
	}
}

func newCoordinator(cfg *config.ClientConfig, room domain.RoomName) (*mesh.Coordinator, error) {
	url, err := cfg.SignalURL()
	if err != nil {
		return nil, err
	}
	sig, err := wsclient.New(wsclient.Options{
		URL:  url,
		Name: cfg.Name,
		RTC:  rtcConfig(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("create signaling client: %w", err)
	}
	return mesh.New(sig, newDevice(cfg), mesh.Options{
		Room:               room,
		Constraints:        core.Constraints{Video: cfg.Video, Audio: cfg.Audio},
		NegotiationTimeout: cfg.NegotiationTimeout,
		OpenTimeout:        cfg.OpenTimeout,
	}), nil
}

// runCall joins room and hands the terminal to the call view until it ends.
func runCall(cmd *cobra.Command, raw string) error {
	room, ok := domain.NormalizeRoom(raw)
	if !ok {
		return fmt.Errorf("invalid room %q", raw)
	}
	cfg, err := config.LoadClient(cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.Capture == config.CaptureDevice && !capture.DevicesAvailable {
		return errors.New("this build has no camera support; rebuild with -tags mediadevices or pick another --capture")
	}
	if cfg.Capture == config.CaptureNone {
		ui.PrintWarning("no capture source configured: you will receive media but send none")
	}
	closeLog, err := setupFileLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	coord, err := newCoordinator(cfg, room)
	if err != nil {
		return err
	}
	defer coord.Leave()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go func() {
		report, err := coord.Start(ctx)
		if err != nil {
			return
		}
		log.Info().Str("module", "cli").Str("room", string(room)).
			Int("discovered", len(report.Discovered)).
			Int("connected", len(report.Connected)).
			Int("failed", len(report.Failed)).
			Msg("joined room")
	}()

	summary, err := ui.RunCall(coord, tea.WithContext(ctx))
	coord.Leave()
	ui.RenderSummary(summary)
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return summary.Err
}
