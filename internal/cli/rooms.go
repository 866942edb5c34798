package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dkeye/meshcall/internal/config"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/ui"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const roomsTimeout = 10 * time.Second

func newRoomsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rooms",
		Aliases: []string{"ls"},
		Short:   "List active rooms on the server",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient(cmd.Flags())
			if err != nil {
				return err
			}
			setupConsoleLogging(cfg)

			rooms, err := fetchRooms(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			ui.RenderRooms(rooms)
			return nil
		},
	}
}

func fetchRooms(ctx context.Context, cfg *config.ClientConfig) ([]core.RoomInfo, error) {
	url, err := cfg.APIURL("/api/rooms")
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, roomsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("module", "cli").Str("url", url).Msg("fetching rooms")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list rooms: server returned %s", resp.Status)
	}
	var rooms []core.RoomInfo
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, fmt.Errorf("list rooms: decode: %w", err)
	}
	return rooms, nil
}
