package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/blockchat/pkg/blocks"
	"github.com/go-go-golems/blockchat/pkg/client"
	"github.com/go-go-golems/blockchat/pkg/conversation"
)

type updateMsg struct{}

type errMsg error

type disconnectedMsg struct{ err error }

type model struct {
	ctx     context.Context
	session *client.Session

	textInput textinput.Model
	keyMap    KeyMap
	style     *Style
	glamour   string
	renderer  *glamour.TermRenderer

	// focused is the pending block number keys act on
	focused string
	// toggled holds the values picked so far in a multi-select
	toggled map[string][]string

	err          error
	disconnected bool
	width        int
}

func newModel(ctx context.Context, session *client.Session, glamourStyle string) model {
	ret := model{
		ctx:     ctx,
		session: session,
		keyMap:  DefaultKeyMap,
		style:   DefaultStyles(),
		glamour: glamourStyle,
		toggled: map[string][]string{},
		width:   80,
	}
	ret.textInput = textinput.New()
	ret.textInput.Placeholder = "Say something..."
	ret.textInput.Focus()
	ret.renderer = newRenderer(glamourStyle, ret.width)
	ret.syncGate()
	return ret
}

func newRenderer(style string, width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		log.Warn().Err(err).Str("style", style).Msg("could not create markdown renderer, rendering plain text")
		return nil
	}
	return r
}

// waitForUpdate turns session notifications into tea messages.
func waitForUpdate(session *client.Session) tea.Cmd {
	return func() tea.Msg {
		<-session.Updates()
		return updateMsg{}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForUpdate(m.session))
}

// syncGate keeps focus on a block that is still pending and matches input
// focus to the gate.
func (m *model) syncGate() {
	pending := m.session.Pending()
	suspended := len(pending) > 0
	m.updateKeyBindings(suspended)

	if !suspended {
		m.focused = ""
		m.toggled = map[string][]string{}
		m.textInput.Focus()
		return
	}
	m.textInput.Blur()
	for _, p := range pending {
		if p.BlockID() == m.focused {
			return
		}
	}
	m.focused = pending[0].BlockID()
}

func (m *model) focusedBlock() blocks.Interactive {
	for _, p := range m.session.Pending() {
		if p.BlockID() == m.focused {
			return p
		}
	}
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keyMap.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keyMap.Skip):
			m.session.Skip()
			m.syncGate()

		case key.Matches(msg, m.keyMap.NextBlock):
			pending := m.session.Pending()
			for i, p := range pending {
				if p.BlockID() == m.focused {
					m.focused = pending[(i+1)%len(pending)].BlockID()
					break
				}
			}

		case key.Matches(msg, m.keyMap.Pick):
			if cmd := m.pick(int(msg.Runes[0] - '1')); cmd != nil {
				cmds = append(cmds, cmd)
			}

		case key.Matches(msg, m.keyMap.SubmitMessage):
			if cmd := m.submit(); cmd != nil {
				cmds = append(cmds, cmd)
			}

		default:
			if m.session.Gate() == client.InputEnabled {
				var cmd tea.Cmd
				m.textInput, cmd = m.textInput.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		w, _ := m.style.AssistantMessage.GetFrameSize()
		m.width = msg.Width
		m.textInput.Width = msg.Width - w - 2
		m.renderer = newRenderer(m.glamour, msg.Width-w)

	case updateMsg:
		m.syncGate()
		cmds = append(cmds, waitForUpdate(m.session))

	case disconnectedMsg:
		m.disconnected = true
		m.err = msg.err

	// We handle errors just like any other message
	case errMsg:
		m.err = msg
		m.syncGate()
	}

	return m, tea.Batch(cmds...)
}

// pick handles number key n (zero based) on the focused block: buttons are
// answered right away, multi-select options are toggled.
func (m *model) pick(n int) tea.Cmd {
	b := m.focusedBlock()
	if b == nil {
		return nil
	}
	values := b.OptionValues()
	if n < 0 || n >= len(values) {
		return nil
	}
	v := values[n]

	switch blk := b.(type) {
	case *blocks.ButtonGroup:
		if !blk.AllowMultiple {
			return m.resolve(blk, blocks.SingleValue(v))
		}
		m.toggle(blk.ID, v)
	case *blocks.MultiSelect:
		m.toggle(blk.ID, v)
	}
	return nil
}

func (m *model) toggle(blockID, v string) {
	picked := m.toggled[blockID]
	for i, p := range picked {
		if p == v {
			m.toggled[blockID] = append(picked[:i:i], picked[i+1:]...)
			return
		}
	}
	m.toggled[blockID] = append(picked, v)
}

func (m *model) submit() tea.Cmd {
	if b := m.focusedBlock(); b != nil {
		return m.resolve(b, blocks.MultiValue(m.toggled[b.BlockID()]...))
	}

	text := strings.TrimSpace(m.textInput.Value())
	if text == "" {
		return nil
	}
	m.textInput.Reset()
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		if err := session.SubmitText(ctx, text); err != nil {
			return errMsg(err)
		}
		return nil
	}
}

func (m *model) resolve(b blocks.Interactive, value blocks.InteractionValue) tea.Cmd {
	if err := b.Accepts(value); err != nil {
		m.err = err
		return nil
	}
	m.err = nil
	blockID := b.BlockID()
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		if err := session.Resolve(ctx, blockID, value); err != nil {
			return errMsg(err)
		}
		return nil
	}
}

func (m model) View() string {
	var sb strings.Builder

	pending := map[string]struct{}{}
	for _, p := range m.session.Pending() {
		pending[p.BlockID()] = struct{}{}
	}

	transcript := m.session.Transcript()
	for i, e := range transcript {
		body := m.renderEntry(e, pending)
		switch {
		case e.Status == client.EntryFailed:
			body = m.style.FailedMessage.Render(body)
		case e.Role == conversation.RoleUser:
			body = m.style.UserMessage.Render(body)
		default:
			body = m.style.AssistantMessage.Render(body)
		}
		sb.WriteString(body)
		sb.WriteString("\n")

		if i == len(transcript)-1 && len(e.SuggestedNext) > 0 {
			sb.WriteString(m.style.Muted.Render("try: " + strings.Join(e.SuggestedNext, " | ")))
			sb.WriteString("\n")
		}
	}

	if m.session.Gate() == client.InputSuspended {
		sb.WriteString(m.style.Muted.Render("answer above: 1-9 pick or toggle, enter submit, tab next question, ctrl+s skip"))
	} else {
		sb.WriteString(m.style.Input.Render(m.textInput.View()))
	}
	sb.WriteString("\n")

	if last := m.session.LastError(); last != "" {
		sb.WriteString(m.style.Error.Render(last))
		sb.WriteString("\n")
	}
	if m.err != nil {
		sb.WriteString(m.style.Error.Render(m.err.Error()))
		sb.WriteString("\n")
	}
	if m.disconnected {
		sb.WriteString(m.style.Error.Render("disconnected, press ctrl+c to quit"))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m model) renderEntry(e client.Entry, pending map[string]struct{}) string {
	var parts []string
	for _, b := range e.Blocks {
		parts = append(parts, m.renderBlock(b, pending))
	}
	switch e.Status {
	case client.EntryStreaming:
		parts = append(parts, m.style.Muted.Render("..."))
	case client.EntryFailed:
		parts = append(parts, m.style.Error.Render(e.Error))
	}
	return strings.Join(parts, "\n")
}

func (m model) renderBlock(b blocks.Block, pending map[string]struct{}) string {
	switch blk := b.(type) {
	case *blocks.Text:
		return m.renderMarkdown(blk.Text)

	case *blocks.ButtonGroup:
		var sb strings.Builder
		if blk.Label != "" {
			sb.WriteString(blk.Label + "\n")
		}
		for i, btn := range blk.Buttons {
			mark := ""
			if containsString(m.toggled[blk.ID], btn.Value) {
				mark = "*"
			}
			sb.WriteString(m.style.Choice.Render(fmt.Sprintf("[%d%s] %s", i+1, mark, btn.Label)))
			sb.WriteString("  ")
		}
		return m.frameInteractive(blk.ID, sb.String(), pending)

	case *blocks.MultiSelect:
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("%s (pick %d to %d)\n", blk.Label, blk.Min, blk.Max))
		for i, o := range blk.Options {
			box := "[ ]"
			if containsString(m.toggled[blk.ID], o.Value) {
				box = "[x]"
			}
			line := fmt.Sprintf("%s %d %s", box, i+1, o.Label)
			if o.Description != "" {
				line += m.style.Muted.Render(" " + o.Description)
			}
			sb.WriteString(line + "\n")
		}
		return m.frameInteractive(blk.ID, strings.TrimRight(sb.String(), "\n"), pending)

	case *blocks.InteractionResponse:
		return conversation.SelectedPrefix + blk.Value.String()

	default:
		return m.style.Muted.Render(fmt.Sprintf("(unsupported %s block)", b.Kind()))
	}
}

func (m model) frameInteractive(id, body string, pending map[string]struct{}) string {
	if _, ok := pending[id]; !ok {
		return m.style.Muted.Render(body)
	}
	if id == m.focused {
		return m.style.FocusedBlock.Render(body)
	}
	return m.style.PendingBlock.Render(body)
}

func (m model) renderMarkdown(text string) string {
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(out)
}

func containsString(xs []string, x string) bool {
	for _, s := range xs {
		if s == x {
			return true
		}
	}
	return false
}
