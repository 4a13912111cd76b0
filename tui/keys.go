package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Play    key.Binding
	Stop    key.Binding
	Reload  key.Binding
	TempoUp key.Binding
	TempoDn key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Play:    key.NewBinding(key.WithKeys(" ", "p"), key.WithHelp("space", "play/stop")),
		Stop:    key.NewBinding(key.WithKeys("s", "esc"), key.WithHelp("s", "stop")),
		Reload:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload at next marker")),
		TempoUp: key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "tempo +5")),
		TempoDn: key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "tempo -5")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Play, k.Reload, k.TempoUp, k.TempoDn, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Play, k.Stop, k.Reload},
		{k.TempoUp, k.TempoDn},
		{k.Help, k.Quit},
	}
}
