package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kyra-lang/nativeimage/pipeline"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	shardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
)

type eventMsg pipeline.Event

type doneMsg struct {
	err error
}

// progressModel renders one bar per shard worker, created lazily as the
// first event for that shard arrives.
type progressModel struct {
	err    error
	shards map[int]*shardView
	width  int
	done   bool
}

type shardView struct {
	bar   progress.Model
	state pipeline.WorkerState
}

func newProgressModel() *progressModel {
	return &progressModel{shards: make(map[int]*shardView), width: 60}
}

// fraction maps a worker state to bar completion.
func fraction(s pipeline.WorkerState) float64 {
	switch s {
	case pipeline.StateDeserializing:
		return 0.2
	case pipeline.StateMaterializing:
		return 0.4
	case pipeline.StateConstructingTables:
		return 0.6
	case pipeline.StateOptimizing:
		return 0.8
	case pipeline.StateEmitting:
		return 0.9
	case pipeline.StateDone:
		return 1.0
	}
	return 0
}

func (m *progressModel) Init() tea.Cmd {
	return nil
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		for _, sv := range m.shards {
			sv.bar.Width = barWidth(m.width)
		}

	case eventMsg:
		sv, ok := m.shards[msg.Shard]
		if !ok {
			bar := progress.New(progress.WithDefaultGradient())
			bar.Width = barWidth(m.width)
			sv = &shardView{bar: bar}
			m.shards[msg.Shard] = sv
		}
		sv.state = msg.State

	case doneMsg:
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func barWidth(w int) int {
	bw := w - 40
	if bw < 10 {
		bw = 10
	}
	return bw
}

func (m *progressModel) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("nativeimg"))
	b.WriteString(" compiling shards\n\n")

	ids := make([]int, 0, len(m.shards))
	for id := range m.shards {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		sv := m.shards[id]
		b.WriteString(shardStyle.Render(fmt.Sprintf("shard %2d ", id)))
		b.WriteString(sv.bar.ViewAs(fraction(sv.state)))
		b.WriteString(" ")
		b.WriteString(stateStyle.Render(sv.state.String()))
		b.WriteString("\n")
	}

	if m.done && m.err != nil {
		b.WriteString("\n")
		b.WriteString(failStyle.Render(fmt.Sprintf("failed: %v", m.err)))
		b.WriteString("\n")
	}
	return b.String()
}
