package panel

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Scan       key.Binding
	Enter      key.Binding
	Disconnect key.Binding
	Up         key.Binding
	Down       key.Binding
	Left       key.Binding
	Right      key.Binding
	BigLeft    key.Binding
	BigRight   key.Binding
	Edit       key.Binding
	Center     key.Binding
	Stop       key.Binding
	NextFocus  key.Binding
	PrevFocus  key.Binding
	Activity   key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Scan:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "scan")),
		Enter:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "connect/select/send")),
		Disconnect: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "disconnect")),
		Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:       key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "-1")),
		Right:      key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "+1")),
		BigLeft:    key.NewBinding(key.WithKeys("shift+left", "H", "pgdown"), key.WithHelp("H", "-10")),
		BigRight:   key.NewBinding(key.WithKeys("shift+right", "L", "pgup"), key.WithHelp("L", "+10")),
		Edit:       key.NewBinding(key.WithKeys("e", "/"), key.WithHelp("e", "type value")),
		Center:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "centre")),
		Stop:       key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "STOP")),
		NextFocus:  key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next pane")),
		PrevFocus:  key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev pane")),
		Activity:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "activity log")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Scan, k.Enter, k.NextFocus, k.Stop, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Scan, k.Enter, k.Disconnect},
		{k.Up, k.Down, k.NextFocus, k.PrevFocus},
		{k.Left, k.Right, k.BigLeft, k.BigRight},
		{k.Edit, k.Center, k.Stop, k.Activity, k.Help, k.Quit},
	}
}
