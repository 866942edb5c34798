package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dkeye/meshcall/internal/app/mesh"
	"github.com/dkeye/meshcall/internal/domain"
)

const statsInterval = time.Second

// Session is the part of the mesh coordinator the call view drives.
type Session interface {
	Snapshot() mesh.Snapshot
	Updates() <-chan struct{}
	Done() <-chan struct{}
	ToggleAudio() (bool, error)
	ToggleVideo() (bool, error)
	Leave()
}

type snapshotMsg mesh.Snapshot

type statsTickMsg time.Time

type leftMsg struct{}

type rateSample struct {
	bytes uint64
	at    time.Time
}

// CallModel is the bubbletea model for one call.
type CallModel struct {
	session Session
	spinner spinner.Model
	started time.Time

	snap    mesh.Snapshot
	rates   map[domain.SessionID]float64
	last    map[domain.SessionID]rateSample
	seen    map[domain.SessionID]struct{}
	totals  map[domain.SessionID]uint64
	flash   string
	leaving bool
	done    bool
}

func NewCallModel(s Session) *CallModel {
	sp := spinner.New()
	sp.Spinner = spinner.Globe
	sp.Style = SpinnerStyle
	return &CallModel{
		session: s,
		spinner: sp,
		started: time.Now(),
		snap:    s.Snapshot(),
		rates:   map[domain.SessionID]float64{},
		last:    map[domain.SessionID]rateSample{},
		seen:    map[domain.SessionID]struct{}{},
		totals:  map[domain.SessionID]uint64{},
	}
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.refresh,
		m.waitForUpdate(),
		statsTick(),
	)
}

func (m *CallModel) refresh() tea.Msg {
	return snapshotMsg(m.session.Snapshot())
}

func (m *CallModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.session.Updates():
		case <-m.session.Done():
		}
		return snapshotMsg(m.session.Snapshot())
	}
}

func statsTick() tea.Cmd {
	return tea.Tick(statsInterval, func(t time.Time) tea.Msg {
		return statsTickMsg(t)
	})
}

func (m *CallModel) leave() tea.Msg {
	m.session.Leave()
	return leftMsg{}
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.leaving {
			return m, nil
		}
		switch msg.String() {
		case "a":
			on, err := m.session.ToggleAudio()
			m.setFlash("audio", on, err)
			return m, m.refresh
		case "v":
			on, err := m.session.ToggleVideo()
			m.setFlash("video", on, err)
			return m, m.refresh
		case "q", "ctrl+c", "esc":
			m.leaving = true
			return m, m.leave
		}

	case snapshotMsg:
		m.apply(mesh.Snapshot(msg))
		if ended(m.snap.Phase) {
			m.done = true
			return m, tea.Quit
		}
		return m, m.waitForUpdate()

	case leftMsg:
		m.apply(m.session.Snapshot())
		m.done = true
		return m, tea.Quit

	case statsTickMsg:
		m.sample(time.Time(msg))
		if m.done {
			return m, nil
		}
		return m, statsTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func ended(p mesh.Phase) bool {
	return p == mesh.PhaseFailed || p == mesh.PhaseLeft
}

func (m *CallModel) setFlash(kind string, on bool, err error) {
	if err != nil {
		m.flash = fmt.Sprintf("%s: %v", kind, err)
		return
	}
	state := "off"
	if on {
		state = "on"
	}
	m.flash = fmt.Sprintf("%s %s", kind, state)
}

func (m *CallModel) apply(s mesh.Snapshot) {
	m.snap = s
	for _, p := range s.Participants {
		m.seen[p.ID] = struct{}{}
		if p.Stream != nil {
			m.total(p.ID, p.Stream.Stats().Bytes)
		}
	}
}

func (m *CallModel) total(id domain.SessionID, bytes uint64) {
	if bytes > m.totals[id] {
		m.totals[id] = bytes
	}
}

// sample refreshes the per-peer receive rate from the stream byte counters.
func (m *CallModel) sample(now time.Time) {
	live := make(map[domain.SessionID]struct{}, len(m.snap.Participants))
	for _, p := range m.snap.Participants {
		if p.Stream == nil {
			continue
		}
		live[p.ID] = struct{}{}
		cur := rateSample{bytes: p.Stream.Stats().Bytes, at: now}
		m.total(p.ID, cur.bytes)
		if prev, ok := m.last[p.ID]; ok {
			m.rates[p.ID] = kbps(prev, cur)
		}
		m.last[p.ID] = cur
	}
	for id := range m.last {
		if _, ok := live[id]; !ok {
			delete(m.last, id)
			delete(m.rates, id)
		}
	}
}

func kbps(prev, cur rateSample) float64 {
	dt := cur.at.Sub(prev.at).Seconds()
	if dt <= 0 || cur.bytes < prev.bytes {
		return 0
	}
	return float64(cur.bytes-prev.bytes) * 8 / 1000 / dt
}

func (m *CallModel) View() string {
	var b strings.Builder
	s := m.snap

	b.WriteString(HeaderStyle.Render("meshcall · " + string(s.Room)))
	b.WriteString("\n")

	switch s.Phase {
	case mesh.PhaseIdle, mesh.PhaseConnecting:
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), "Joining room...")
	case mesh.PhaseJoined:
		fmt.Fprintf(&b, "%s joined as %s\n", SuccessStyle.Render(IconPeer), MutedStyle.Render(string(s.Self)))
	case mesh.PhaseFailed:
		fmt.Fprintf(&b, "%s\n", ErrorStyle.Render("Call failed"))
	case mesh.PhaseLeft:
		fmt.Fprintf(&b, "%s\n", MutedStyle.Render("Left the call"))
	}
	if s.Err != nil {
		fmt.Fprintf(&b, "%s %s\n", ErrorStyle.Render(IconError), s.Err)
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "%s%s\n", LabelStyle.Render("audio"), onOff(s.Media.AudioEnabled))
	fmt.Fprintf(&b, "%s%s\n", LabelStyle.Render("video"), onOff(s.Media.VideoEnabled))
	b.WriteString("\n")

	b.WriteString(m.rosterView())
	b.WriteString("\n")

	for _, n := range s.Notices {
		fmt.Fprintf(&b, "%s %s\n", WarningStyle.Render(IconWarning), n)
	}
	if m.flash != "" {
		b.WriteString(MutedStyle.Render(m.flash))
		b.WriteString("\n")
	}

	if m.leaving && !m.done {
		b.WriteString(FooterStyle.Render("leaving..."))
	} else {
		b.WriteString(FooterStyle.Render("a audio · v video · q leave"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m *CallModel) rosterView() string {
	if len(m.snap.Participants) == 0 {
		return MutedStyle.Render("Nobody else is here yet")
	}
	rows := make([][]string, 0, len(m.snap.Participants))
	for _, p := range m.snap.Participants {
		rows = append(rows, []string{
			p.DisplayName,
			shortID(p.ID),
			placeholder(p.IsMuted, "muted", "live"),
			placeholder(p.IsVideoOff, "off", "live"),
			fmt.Sprintf("%.0f", m.rates[p.ID]),
		})
	}
	return newTable([]string{"Name", "ID", "Mic", "Camera", "kbps"}, rows).Render()
}

func placeholder(flag bool, set, unset string) string {
	if flag {
		return set
	}
	return unset
}

func shortID(id domain.SessionID) string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

// Summary describes the call so far; meant for after the program exits.
func (m *CallModel) Summary() CallSummary {
	var received uint64
	for _, n := range m.totals {
		received += n
	}
	outcome := m.snap.Phase.String()
	if m.snap.Err != nil {
		outcome = m.snap.Err.Error()
	}
	sum := CallSummary{
		Room:      string(m.snap.Room),
		Self:      string(m.snap.Self),
		Duration:  time.Since(m.started),
		PeersSeen: len(m.seen),
		Received:  received,
		Outcome:   outcome,
	}
	if !m.leaving {
		sum.Err = m.snap.Err
	}
	return sum
}

// RunCall runs the call view until the user leaves or the session ends.
func RunCall(s Session, opts ...tea.ProgramOption) (CallSummary, error) {
	m := NewCallModel(s)
	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		s.Leave()
		return m.Summary(), fmt.Errorf("ui: %w", err)
	}
	if fm, ok := final.(*CallModel); ok {
		m = fm
	}
	return m.Summary(), nil
}
