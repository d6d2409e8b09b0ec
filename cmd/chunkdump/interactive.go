package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/continuation/chunk"
	"github.com/wippyai/continuation/engine"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	frameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	fieldStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type viewState int

const (
	stateEditFrames viewState = iota
	stateInspect
)

type frameRow struct {
	pc   string
	name string
	kind string
	size int
	args int
}

type inspectModel struct {
	err   error
	state viewState
	input textinput.Model

	slow      bool
	tlab      int
	threshold int

	scen     *scenario
	eng      *engine.Engine
	result   string
	rows     []frameRow
	selected int
	chunkHdr string
	drained  bool
}

func newInspectModel(frames string, slow bool, tlab, threshold int) *inspectModel {
	ti := textinput.New()
	ti.Prompt = "frames: "
	ti.Placeholder = "c8:2,i4:1,c6:1"
	ti.SetValue(frames)
	ti.Width = 50
	ti.Focus()
	return &inspectModel{
		state:     stateEditFrames,
		input:     ti,
		slow:      slow,
		tlab:      tlab,
		threshold: threshold,
	}
}

func (m *inspectModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *inspectModel) freeze() {
	specs, err := parseFrames(m.input.Value())
	if err != nil {
		m.err = err
		return
	}
	s := buildScenario(specs)
	e, err := s.newEngine(m.slow, m.tlab, m.threshold)
	if err != nil {
		m.err = err
		return
	}
	s.car.FastPathAllowed = !m.slow

	res, err := e.Freeze(s.car, s.car.SP)
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.scen = s
	m.eng = e
	m.result = res.String()
	m.drained = false
	m.selected = 0
	m.state = stateInspect
	if !res.OK() {
		m.rows = nil
		m.chunkHdr = "no chunk: freeze refused"
		return
	}
	m.reload()
}

// reload rebuilds the frame table from the current tail chunk.
func (m *inspectModel) reload() {
	m.rows = nil
	tail := m.scen.car.Entry.Tail()
	if tail == nil || tail.IsEmpty() {
		m.drained = true
		m.chunkHdr = fmt.Sprintf("drained, carrier sp %d", m.scen.car.SP)
		return
	}
	var flags []string
	if tail.HasMixedFrames() {
		flags = append(flags, "mixed")
	}
	if tail.RequiresBarriers() {
		flags = append(flags, "barriers")
	}
	if len(flags) == 0 {
		flags = append(flags, "none")
	}
	m.chunkHdr = fmt.Sprintf("%d words, sp %d, argsize %d, maxSize %d, flags %s",
		tail.Size(), tail.SP(), tail.ArgSize(), tail.MaxSize(), strings.Join(flags, "|"))

	st := chunk.NewStream(tail, m.scen)
	for st.More() {
		f, info, err := st.Next()
		if err != nil {
			m.err = err
			return
		}
		m.rows = append(m.rows, frameRow{
			pc:   fmt.Sprintf("%#x", f.PC),
			name: info.Name,
			kind: f.Kind.String(),
			size: f.Size,
			args: f.ArgSize,
		})
	}
	if m.selected >= len(m.rows) {
		m.selected = 0
	}
}

func (m *inspectModel) step() {
	kind := engine.ThawReturnBarrier
	if m.drained {
		return
	}
	need, err := m.eng.PrepareThaw(m.scen.car, true)
	if err != nil {
		m.err = err
		return
	}
	if need == 0 {
		m.drained = true
		m.chunkHdr = fmt.Sprintf("drained, carrier sp %d", m.scen.car.SP)
		m.rows = nil
		return
	}
	if _, err := m.eng.Thaw(m.scen.car, kind); err != nil {
		m.err = err
		return
	}
	m.reload()
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == stateEditFrames && msg.String() == "q" {
				break // "q" is a valid spec character position; let the input take it
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateInspect && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateInspect && m.selected < len(m.rows)-1 {
				m.selected++
			}

		case "enter":
			if m.state == stateEditFrames {
				m.freeze()
			}

		case "t":
			if m.state == stateInspect {
				m.step()
			}

		case "esc":
			if m.state == stateInspect {
				m.state = stateEditFrames
				m.input.Focus()
				m.err = nil
			}
		}
	}

	if m.state == stateEditFrames {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *inspectModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Chunk Inspector"))
	b.WriteString("\n\n")

	switch m.state {
	case stateEditFrames:
		b.WriteString("Frame layout, bottom first:\n\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n\n")
		}
		b.WriteString(helpStyle.Render("enter freeze • ctrl+c quit"))

	case stateInspect:
		b.WriteString(fmt.Sprintf("Freeze: %s\n", resultStyle.Render(m.result)))
		b.WriteString(fmt.Sprintf("Chunk:  %s\n\n", fieldStyle.Render(m.chunkHdr)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n\n")
		}
		if len(m.rows) > 0 {
			b.WriteString(fmt.Sprintf("  %-4s %-10s %-12s %-12s %-6s %-6s\n",
				"#", "pc", "name", "kind", "size", "args"))
			for i, r := range m.rows {
				line := fmt.Sprintf("  %-4d %-10s %-12s %-12s %-6d %-6d",
					i, r.pc, frameStyle.Render(r.name), r.kind, r.size, r.args)
				if i == m.selected {
					line = selectedStyle.Render(line)
				}
				b.WriteString(line)
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
		b.WriteString(helpStyle.Render("↑/↓ select • t thaw step • esc edit • q quit"))
	}

	return b.String()
}

func runInteractive(frames string, slow bool, tlab, threshold int) error {
	p := tea.NewProgram(newInspectModel(frames, slow, tlab, threshold), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
