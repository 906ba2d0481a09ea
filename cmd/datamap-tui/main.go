package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/api"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/client"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
)

const (
	maxEvents      = 20
	viewportHeight = 20
	fetchTimeout   = 2 * time.Second
)

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(12)
	valueStyle  = lipgloss.NewStyle().Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			Width(100)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(100)

	eventTimeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(10)
	eventSeqStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(8)
	eventOriginStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))

	removeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Width(16)
	addStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Width(16)
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Width(16)
)

type tickMsg time.Time

type dataMsg struct {
	stats  api.StatsResponse
	events []store.Event
	empty  bool
	err    error
}

type model struct {
	client   *client.Client
	interval time.Duration

	spinner  spinner.Model
	viewport viewport.Model
	stats    *api.StatsResponse
	events   []store.Event
	err      error
	ready    bool
}

func initialModel(c *client.Client, interval time.Duration) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		client:   c,
		interval: interval,
		spinner:  s,
		viewport: newViewport(100),
	}
}

func newViewport(width int) viewport.Model {
	vp := viewport.New(width, viewportHeight)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)
	return vp
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		fetchData(m.client),
		tick(m.interval),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		cmds = append(cmds, fetchData(m.client), tick(m.interval))

	case dataMsg:
		m.ready = true
		if msg.err != nil {
			m.err = msg.err
			break
		}
		m.err = nil
		m.stats = nil
		if !msg.empty {
			m.stats = &msg.stats
		}
		m.events = msg.events
		m.viewport.SetContent(renderEvents(m.events))

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
	}

	return m, tea.Batch(cmds...)
}

// renderEvents lists the journal tail, newest first.
func renderEvents(events []store.Event) string {
	if len(events) == 0 {
		return subtleStyle.Render("No edits journaled yet.")
	}

	var sb strings.Builder
	for _, e := range events {
		var typeStr string
		switch {
		case strings.HasSuffix(string(e.EventType), "_removed"):
			typeStr = removeStyle.Render(string(e.EventType))
		case strings.HasSuffix(string(e.EventType), "_added"):
			typeStr = addStyle.Render(string(e.EventType))
		default:
			typeStr = infoStyle.Render(string(e.EventType))
		}

		fmt.Fprintf(&sb, "%s %s %s %s\n",
			eventTimeStyle.Render(e.TsEvent.Local().Format("15:04:05")),
			eventSeqStyle.Render(fmt.Sprintf("#%d", e.Seq)),
			typeStr,
			eventOriginStyle.Render(origin(e.Source)),
		)
	}
	return sb.String()
}

func origin(src store.EventSource) string {
	if src.OriginID == "" {
		return src.OriginKind
	}
	return src.OriginKind + ":" + src.OriginID
}

// renderStats is the top pane.
func renderStats(st *api.StatsResponse) string {
	var sb strings.Builder
	sb.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render("Graph") + "\n\n")
	if st == nil {
		sb.WriteString(subtleStyle.Render("No graph loaded."))
		return sb.String()
	}

	row := func(label string, value any) {
		sb.WriteString(labelStyle.Render(label) + valueStyle.Render(fmt.Sprint(value)) + "\n")
	}
	row("Root", st.Root)
	row("Vertices", st.Vertices)
	row("Edges", st.Edges)
	row("Links", st.Links)
	row("Cycles", st.CycleEdges)
	row("Orphans", st.Orphans)
	row("Seq", st.Seq)
	if !st.UpdatedAt.IsZero() {
		row("Updated", st.UpdatedAt.Local().Format(time.DateTime))
	}
	return sb.String()
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Connecting to %s...", m.spinner.View(), m.client.Endpoint())
	}

	topPane := paneStyle.Render(renderStats(m.stats))
	header := headerStyle.Render(fmt.Sprintf("%s Edit Journal", m.spinner.View()))
	bottomPane := m.viewport.View()

	var status string
	if m.err != nil {
		status = errorStyle.Render(fmt.Sprintf("Offline: %v", m.err))
	} else {
		status = okStyle.Render(fmt.Sprintf("Online • %s • %d Events", m.client.Endpoint(), len(m.events)))
	}
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\nPress q to quit", status))

	return lipgloss.JoinVertical(lipgloss.Left, topPane, header, bottomPane, footer)
}

// Commands

// fetchData reads stats and the journal tail. A daemon without a graph yet still
// reports its events.
func fetchData(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		events, err := c.GetEvents(ctx, maxEvents)
		if err != nil {
			return dataMsg{err: err}
		}
		stats, err := c.Stats(ctx)
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Code == "graph_not_loaded" {
			return dataMsg{events: events, empty: true}
		}
		if err != nil {
			return dataMsg{events: events, err: err}
		}
		return dataMsg{stats: stats, events: events}
	}
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func main() {
	endpoint := flag.String("endpoint", envOrDefault("DATAMAP_ENDPOINT", client.DefaultEndpoint), "datamap-d base URL")
	interval := flag.Duration("interval", time.Second, "refresh interval")
	flag.Parse()

	c := client.NewClient(*endpoint, client.WithRetries(0, nil))
	p := tea.NewProgram(initialModel(c, *interval), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
