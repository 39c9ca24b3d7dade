// Package main provides the hivemind CLI entry point.
// This file implements the interactive console using bubbletea.
package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"hivemind/cmd/hivemind/ui"
	"hivemind/internal/channel"
	"hivemind/internal/config"
	"hivemind/internal/logging"
	"hivemind/internal/protocol"
)

// consoleCmd launches the interactive console
var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive console: mention the hive and watch it coordinate",
	Long: `Starts the full hive on the in-memory hub and opens a terminal UI bound
to it. Requests you type are posted as mentions of the orchestrator, and
every channel message streams into the viewport as it lands: the evaluation
request, each specialist's confidence report, negotiation rounds, the
assignment, and the assigned specialist's result.`,
	RunE: runConsole,
}

// feedEntry is one message of channel traffic shown in the viewport
type feedEntry struct {
	channelID string
	threadTS  string
	from      string
	bot       bool
	text      string
}

// consoleModel is the main model for the interactive console
type consoleModel struct {
	// UI components
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    ui.Styles
	renderer  *glamour.TermRenderer

	// Backend
	cfg    *config.Config
	st     *stack
	human  *channel.Client
	events chan channel.Message
	names  map[string]string // user ID → display name

	// State
	feed   []feedEntry
	busy   bool
	err    error
	width  int
	height int
	ready  bool
}

// Messages for tea updates
type (
	hubMsg     channel.Message
	postErrMsg error
)

// initConsole initializes the interactive console model
func initConsole(cfg *config.Config, st *stack, human *channel.Client, events chan channel.Message) consoleModel {
	styles := ui.DefaultStyles()

	ti := textinput.New()
	ti.Placeholder = "Ask the hive anything... (Enter to send, Ctrl+C to exit)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 2048
	ti.Width = 80
	ti.PromptStyle = styles.Prompt
	ti.TextStyle = styles.UserInput

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)
	vp.SetContent("")

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)

	names := map[string]string{
		cfg.Orchestrator.UserID: cfg.Orchestrator.Name,
		localUserID:             "You",
	}
	for _, p := range cfg.Specialists {
		names[p.UserID] = p.Name
	}

	return consoleModel{
		textinput: ti,
		viewport:  vp,
		spinner:   sp,
		styles:    styles,
		renderer:  renderer,
		cfg:       cfg,
		st:        st,
		human:     human,
		events:    events,
		names:     names,
	}
}

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.waitForMessage(),
	)
}

// waitForMessage blocks on the hub subscription and surfaces the next
// message as a tea update.
func (m consoleModel) waitForMessage() tea.Cmd {
	return func() tea.Msg {
		return hubMsg(<-m.events)
	}
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			if !m.busy {
				return m.handleSubmit()
			}
		}

		// Handle regular key input
		if !m.busy {
			m.textinput, tiCmd = m.textinput.Update(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 4
		footerHeight := 2
		inputHeight := 3

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-headerHeight-footerHeight-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - headerHeight - footerHeight - inputHeight
		}

		m.textinput.Width = msg.Width - 4

		if m.renderer != nil {
			m.renderer, _ = glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(msg.Width-8),
			)
		}
		m.viewport.SetContent(m.renderFeed())

	case spinner.TickMsg:
		if m.busy {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}

	case hubMsg:
		entry := feedEntry{
			channelID: msg.ChannelID,
			threadTS:  msg.ThreadTS,
			from:      m.displayName(channel.Message(msg)),
			bot:       msg.BotID != "",
			text:      msg.Text,
		}
		m.feed = append(m.feed, entry)
		if m.settles(channel.Message(msg)) {
			m.busy = false
		}
		m.viewport.SetContent(m.renderFeed())
		m.viewport.GotoBottom()
		return m, tea.Batch(m.waitForMessage(), m.spinner.Tick)

	case postErrMsg:
		m.busy = false
		m.err = msg
	}

	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

// handleSubmit posts the typed request as an orchestrator mention
func (m consoleModel) handleSubmit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.textinput.Value())
	if text == "" {
		return m, nil
	}

	m.textinput.Reset()
	m.busy = true
	m.err = nil

	request := protocol.Mention(m.cfg.Orchestrator.UserID) + " " + text
	post := func() tea.Msg {
		if _, err := m.human.Post(context.Background(), consoleChannelID, request, ""); err != nil {
			return postErrMsg(err)
		}
		return nil
	}
	return m, tea.Batch(m.spinner.Tick, post)
}

// settles reports whether a message ends the current coordination: a decline,
// a no-response notice, or a specialist's terminal status.
func (m consoleModel) settles(msg channel.Message) bool {
	if msg.ChannelID != m.cfg.Coordination.Channel {
		return false
	}
	if protocol.IsTerminalStatus(msg.Text) {
		return true
	}
	if msg.Text == protocol.NoResponseText {
		return true
	}
	return strings.HasPrefix(msg.Text, "No specialist confident")
}

func (m consoleModel) displayName(msg channel.Message) string {
	if name, ok := m.names[msg.UserID]; ok {
		return name
	}
	return msg.UserID
}

func (m consoleModel) channelName(id string) string {
	switch id {
	case m.cfg.Coordination.Channel:
		return "#coordination"
	case consoleChannelID:
		return "#console"
	default:
		return "#" + strings.ToLower(id)
	}
}

// humanize rewrites mention tokens into display names
func (m consoleModel) humanize(text string) string {
	for id, name := range m.names {
		text = strings.ReplaceAll(text, protocol.Mention(id), "@"+name)
	}
	return text
}

func (m consoleModel) renderFeed() string {
	var sb strings.Builder

	for _, e := range m.feed {
		tag := m.styles.Muted.Render("[" + m.channelName(e.channelID) + "]")
		who := m.styles.Bold.Render(e.from)
		if e.bot {
			who = m.styles.Title.Render(e.from)
		}
		sb.WriteString(tag + " " + who + "\n")

		body := m.humanize(e.text)
		if e.threadTS != "" {
			body = "↳ " + body
		}
		sb.WriteString(m.renderBody(e, body))
		sb.WriteString("\n\n")
	}

	return sb.String()
}

// renderBody colors protocol traffic by kind and renders task results as
// markdown. Replies outside the coordination channel are specialist answers.
func (m consoleModel) renderBody(e feedEntry, body string) string {
	if e.channelID == m.cfg.Coordination.Channel {
		switch {
		case strings.HasPrefix(e.text, "✅"):
			return m.styles.Success.Render(body)
		case strings.HasPrefix(e.text, "❌"):
			return m.styles.Error.Render(body)
		case strings.HasPrefix(e.text, "🤔"):
			return m.styles.Warning.Render(body)
		case strings.HasPrefix(e.text, "ASSIGNED:"):
			return m.styles.Success.Bold(true).Render(body)
		case strings.HasPrefix(e.text, "No specialist confident"),
			e.text == protocol.NoResponseText:
			return m.styles.Error.Render(body)
		}
		if _, ok := protocol.ParseConfidenceReport(e.text); ok {
			return m.styles.Info.Render(body)
		}
		return body
	}
	if e.bot && e.threadTS != "" {
		return m.safeRenderMarkdown(body)
	}
	return body
}

// safeRenderMarkdown renders markdown with panic recovery
func (m consoleModel) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return rendered
		}
	}
	return content
}

func (m consoleModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	header := m.renderHeader()

	chatView := m.styles.Content.Render(m.viewport.View())

	if m.busy {
		chatView += "\n" + m.styles.Spinner.Render(m.spinner.View()) + " Coordinating..."
	}

	if m.err != nil {
		chatView += "\n" + m.styles.Error.Render("Error: "+m.err.Error())
	}

	inputStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.styles.Theme.Accent).
		Padding(0, 1)
	inputArea := inputStyle.Render(m.textinput.View())

	footer := m.styles.Footer.Render("Enter send · PgUp/PgDn scroll · Ctrl+C quit")

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		chatView,
		inputArea,
		footer,
	)
}

func (m consoleModel) renderHeader() string {
	title := m.styles.Header.Render(" 🐝 hivemind ")
	badge := m.styles.Badge.Render("v" + version)

	var status string
	if m.busy {
		status = m.styles.Warning.Render("● Coordinating")
	} else {
		status = m.styles.Success.Render("● Ready")
	}

	headerLine := lipgloss.JoinHorizontal(
		lipgloss.Center,
		title,
		" ",
		badge,
		"  ",
		status,
	)

	roster := m.styles.Muted.Render(
		fmt.Sprintf(" 🐝 %s", strings.Join(m.st.registry.Names(), " · ")))

	return lipgloss.JoinVertical(
		lipgloss.Left,
		headerLine,
		roster,
		m.styles.RenderDivider(m.width),
	)
}

// runConsole builds the hive and hands the terminal to the UI. Protocol logs
// still flow to files when enabled; nothing else may write to the screen.
func runConsole(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := logging.Initialize(cfg.LogsDir(), logging.Options{
		Debug:      cfg.Logging.DebugMode,
		Level:      cfg.Logging.GetLevel(),
		JSONFormat: cfg.Logging.Format == "json",
		Categories: categorySet(cfg.Logging.Categories),
	}); err != nil {
		return fmt.Errorf("failed to initialize protocol logs: %w", err)
	}
	defer logging.CloseAll()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := buildStack(ctx, cfg)
	if err != nil {
		return err
	}

	// Subscribe before the agents attach so their readiness posts are the
	// first feed entries. A full buffer drops traffic rather than stalling
	// the hub's delivery loop.
	events := make(chan channel.Message, 256)
	human := st.hub.Client(localUserID, "")
	unsubscribe := human.Subscribe(func(msg channel.Message) {
		select {
		case events <- msg:
		default:
		}
	})
	defer unsubscribe()

	stop, err := st.Attach(ctx)
	if err != nil {
		return err
	}
	defer stop()

	p := tea.NewProgram(
		initConsole(cfg, st, human, events),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	_, err = p.Run()
	return err
}
