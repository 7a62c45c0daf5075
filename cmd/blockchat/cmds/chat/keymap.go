package chat

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	SubmitMessage key.Binding
	NextBlock     key.Binding
	Skip          key.Binding
	Pick          key.Binding
	Quit          key.Binding
}

var DefaultKeyMap = KeyMap{
	SubmitMessage: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
	NextBlock:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next question")),
	Skip:          key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "skip")),
	Pick: key.NewBinding(
		key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"),
		key.WithHelp("1-9", "pick"),
	),
	Quit: key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
}

// updateKeyBindings enables the bindings that make sense for the gate state.
func (m *model) updateKeyBindings(suspended bool) {
	m.keyMap.Skip.SetEnabled(suspended)
	m.keyMap.Pick.SetEnabled(suspended)
	m.keyMap.NextBlock.SetEnabled(suspended)
}
