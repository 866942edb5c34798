package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dkeye/meshcall/internal/core"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
)

func newTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case row%2 == 0:
				return tableRowStyle
			default:
				return tableRowAltStyle
			}
		})
}

// RoomsView renders the server's room listing.
func RoomsView(rooms []core.RoomInfo) string {
	if len(rooms) == 0 {
		return MutedStyle.Render("No active rooms")
	}
	rows := make([][]string, 0, len(rooms))
	for _, r := range rooms {
		rows = append(rows, []string{string(r.Name), strconv.Itoa(r.MemberCount)})
	}
	return newTable([]string{"Room", "Members"}, rows).Render()
}

func RenderRooms(rooms []core.RoomInfo) {
	fmt.Println(RoomsView(rooms))
}

// RoomCreatedView is shown before joining a freshly generated room.
func RoomCreatedView(room string) string {
	return RoomBoxStyle.Render(fmt.Sprintf("%s Room created\n\nCode:  %s\nShare: meshcall join %s",
		IconSuccess, SuccessStyle.Render(room), room))
}

// CallSummary is what the summary table reports after a call ends.
type CallSummary struct {
	Room      string
	Self      string
	Duration  time.Duration
	PeersSeen int
	Received  uint64
	Outcome   string
	// Err is set when the session ended on its own with an error.
	Err error
}

func SummaryView(s CallSummary) string {
	t := prettytable.NewWriter()
	t.SetTitle("Call Summary")
	t.AppendHeader(prettytable.Row{"Metric", "Value"})
	t.AppendRows([]prettytable.Row{
		{"Room", s.Room},
		{"Session", s.Self},
		{"Duration", s.Duration.Round(time.Second).String()},
		{"Peers seen", s.PeersSeen},
		{"Received", FormatBytes(s.Received)},
		{"Outcome", s.Outcome},
	})
	t.SetStyle(prettytable.StyleRounded)
	return t.Render()
}

func RenderSummary(s CallSummary) {
	fmt.Println()
	fmt.Println(SummaryView(s))
}

func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
