package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/divergence-engine/pkg/scene"
	"github.com/jwebster45206/divergence-engine/pkg/state"
)

// clipboardWriteAll is swapped out in tests.
var clipboardWriteAll = clipboard.WriteAll

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	client        *storyClient
	session       *Session
	storyViewport viewport.Model
	metaViewport  viewport.Model
	spinner       spinner.Model
	ready         bool
	width         int
	height        int
	err           error
	loading       bool
	status        string

	// Quit confirmation state
	showQuitModal bool
}

type sceneMsg struct {
	scene scene.Scene
	err   error
}

var (
	storyPanelStyle = lipgloss.NewStyle().
			PaddingTop(1).
			PaddingLeft(3).
			PaddingRight(1)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(1).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	choiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	deltaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	endingStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("205")).
			Padding(1, 2)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	layerColors = map[scene.Layer]lipgloss.Color{
		scene.LayerCanon:   lipgloss.Color("86"),  // green
		scene.LayerMixed:   lipgloss.Color("214"), // yellow
		scene.LayerCorrupt: lipgloss.Color("196"), // red
	}
)

func NewConsoleUI(client *storyClient, session *Session) ConsoleUI {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = loadingStyle

	storyVp := viewport.New(60, 20)
	storyVp.MouseWheelEnabled = true

	return ConsoleUI{
		client:        client,
		session:       session,
		storyViewport: storyVp,
		metaViewport:  viewport.New(24, 20),
		spinner:       sp,
		loading:       true,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.requestScene())
}

// requestScene posts the current session as one turn.
func (m ConsoleUI) requestScene() tea.Cmd {
	client := m.client
	req := m.session.Request()
	return func() tea.Msg {
		s, err := client.next(context.Background(), req)
		return sceneMsg{scene: s, err: err}
	}
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		storyWidth := int(float64(m.width)*0.72) - 4
		metaWidth := m.width - storyWidth - 6

		m.storyViewport.Width = storyWidth - 2
		m.storyViewport.Height = m.height - 4
		m.metaViewport.Width = metaWidth - 2
		m.metaViewport.Height = m.height - 3
		m.ready = true
		m.refresh()

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case sceneMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.session.Show(msg.scene)
			m.status = ""
		}
		m.refresh()
		m.storyViewport.GotoTop()
		return m, nil

	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "ctrl+c":
			return m, tea.Quit
		case "esc", "q":
			m.showQuitModal = true
			return m, nil
		case "c":
			if err := clipboardWriteAll(m.session.Transcript()); err != nil {
				m.status = "Copy failed: " + err.Error()
			} else {
				m.status = "Transcript copied to clipboard"
			}
			m.refresh()
			return m, nil
		case "r":
			if m.err != nil && !m.loading {
				return m.startTurn()
			}
		case "1", "2", "3", "4", "A", "B", "C", "D":
			if m.loading || m.err != nil {
				return m, nil
			}
			if _, _, err := m.session.Choose(choiceID(key)); err != nil {
				m.status = err.Error()
				m.refresh()
				return m, nil
			}
			return m.startTurn()
		}
	}

	m.storyViewport, vpCmd = m.storyViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)
	return m, tea.Batch(vpCmd, mvCmd)
}

func (m ConsoleUI) startTurn() (tea.Model, tea.Cmd) {
	m.loading = true
	m.err = nil
	m.status = ""
	m.refresh()
	return m, tea.Batch(m.spinner.Tick, m.requestScene())
}

// choiceID maps a number key to its choice letter.
func choiceID(key string) string {
	switch key {
	case "1", "2", "3", "4":
		return scene.ChoiceIDs[key[0]-'1']
	default:
		return key
	}
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "enter", "y", "Y":
			return m, tea.Quit
		case "n", "N", "esc":
			m.showQuitModal = false
		}
	}
	return m, nil
}

func (m *ConsoleUI) refresh() {
	width := m.storyViewport.Width - 4
	if width < 20 {
		width = 20
	}
	m.storyViewport.SetContent(m.renderStory(width))
	m.metaViewport.SetContent(renderMeta(m.session))
}

func (m ConsoleUI) renderStory(width int) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("VER POTTER: DIVERGENCE") + "\n\n")

	s := m.session.Scene
	if s != nil {
		layer := lipgloss.NewStyle().Foreground(layerColors[s.Layer]).Render(string(s.Layer))
		content.WriteString(fmt.Sprintf("%s · %s\n\n", s.Chapter, layer))
		content.WriteString(speakerStyle.Render(fmt.Sprintf("%s (%s)", s.Speaker, s.Portrait)) + "\n")
		content.WriteString(wordwrap.String(s.Text, width) + "\n\n")
		content.WriteString(separatorStyle.Render(strings.Repeat("─", width)) + "\n\n")

		if s.Ending != nil {
			box := fmt.Sprintf("%s END\n%s\n\n%s", s.Ending.Type, s.Ending.Title, wordwrap.String(s.Ending.Text, width-8))
			content.WriteString(endingStyle.Width(width-4).Render(box) + "\n\n")
			content.WriteString(promptStyle.Render("c: copy transcript · q: quit") + "\n")
		} else if !m.loading {
			for i, c := range s.Choices {
				line := fmt.Sprintf("%d) %s %s %s", i+1, c.ID, c.Tag, c.Label)
				content.WriteString(choiceStyle.Render(wordwrap.String(line, width)))
				if d := formatDelta(c.Delta); d != "" {
					content.WriteString(" " + deltaStyle.Render(d))
				}
				content.WriteString("\n")
			}
			content.WriteString("\n" + promptStyle.Render("1-4 / A-D: choose · c: copy transcript · q: quit") + "\n")
		}
	}

	if m.loading {
		content.WriteString(m.spinner.View() + loadingStyle.Render(" The story is being written...") + "\n")
	}
	if m.err != nil {
		content.WriteString(errorStyle.Render(wordwrap.String("Error: "+m.err.Error(), width)) + "\n")
		content.WriteString(promptStyle.Render("r: retry · q: quit") + "\n")
	}
	if m.status != "" {
		content.WriteString("\n" + promptStyle.Render(m.status) + "\n")
	}
	return content.String()
}

func renderMeta(s *Session) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("STATE") + "\n\n")

	stats := []struct {
		name  string
		value int
	}{
		{"canonity", s.State.Canonity},
		{"corruption", s.State.Corruption},
		{"sanity", s.State.Sanity},
		{"trust", s.State.Trust},
		{"fate", s.State.Fate},
	}
	for _, st := range stats {
		content.WriteString(fmt.Sprintf("%-10s %s %2d\n", st.name, statBar(st.value), st.value))
	}

	content.WriteString("\nChapter:\n")
	content.WriteString(fmt.Sprintf("%s (%d/%d)\n", s.Chapter, s.Chapter.Index()+1, len(state.Chapters())))

	content.WriteString(fmt.Sprintf("\nTurns: %d\n", s.Turns))
	if ending, ok := s.Pending(); ok {
		content.WriteString(fmt.Sprintf("Ending: %s\n", ending))
	}

	content.WriteString("\nFlags:\n")
	if len(s.Flags) == 0 {
		content.WriteString("None set\n")
	}
	for _, f := range s.Flags {
		content.WriteString("• " + f + "\n")
	}
	return content.String()
}

func statBar(v int) string {
	v = state.Clamp(v, state.MinStat, state.MaxStat)
	return strings.Repeat("█", v) + separatorStyle.Render(strings.Repeat("░", state.MaxStat-v))
}

// formatDelta renders the non-zero stat changes of a choice.
func formatDelta(d state.Delta) string {
	var parts []string
	for _, name := range state.StatNames {
		if v, _ := d.Stat(name); v != 0 {
			parts = append(parts, fmt.Sprintf("%s %+d", name, v))
		}
	}
	return strings.Join(parts, ", ")
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}
	if !m.ready {
		return "\n  Initializing..."
	}

	storyWidth := int(float64(m.width)*0.72) - 4
	metaWidth := m.width - storyWidth - 6

	storyPanel := storyPanelStyle.Width(storyWidth).Height(m.height - 2).Render(m.storyViewport.View())
	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(m.metaViewport.View())
	return lipgloss.JoinHorizontal(lipgloss.Top, storyPanel, metaPanel)
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	content.WriteString("Leave this playthrough? Progress is not saved.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}
