package update

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/fuusan091240-hub/flow-schedule/internal/views"
)

type KeyBinding struct {
	Key    string
	Action string
}

type helpKeyMap struct {
	short []key.Binding
	full  [][]key.Binding
}

func (k helpKeyMap) ShortHelp() []key.Binding  { return k.short }
func (k helpKeyMap) FullHelp() [][]key.Binding { return k.full }

func (m Model) renderHelpView() string {
	bindings := m.helpBindings()
	var plain []string
	for _, kb := range m.sectionBindings() {
		plain = append(plain, fmt.Sprintf("- %s: %s", kb.Key, kb.Action))
	}
	return views.RenderHelpPanel(views.HelpPanelData{
		Bindings: plain,
		HelpView: m.helpModel.View(helpKeyMap{
			short: bindings,
			full:  [][]key.Binding{bindings},
		}),
	})
}

func (m Model) globalBindings() []KeyBinding {
	return []KeyBinding{
		{Key: "tab", Action: "next section"},
		{Key: "0-5", Action: "set mood"},
		{Key: "v", Action: "toggle today/all"},
		{Key: "+/-", Action: "manuscript progress"},
		{Key: m.Keys.Palette, Action: "command palette"},
		{Key: m.Keys.Flush, Action: "save now"},
		{Key: m.Keys.Pull, Action: "pull remote"},
		{Key: m.Keys.Help, Action: "toggle help"},
		{Key: m.Keys.Quit, Action: "quit"},
	}
}

func (m Model) sectionBindings() []KeyBinding {
	switch m.Focus {
	case SectionTasks:
		return []KeyBinding{
			{Key: "j/k", Action: "move cursor"},
			{Key: "space", Action: "toggle done"},
			{Key: "a", Action: "add task"},
			{Key: "e", Action: "edit selected task"},
			{Key: "d", Action: "delete selected task"},
		}
	case SectionDaily:
		return []KeyBinding{
			{Key: "j/k", Action: "move cursor"},
			{Key: "space", Action: "toggle done"},
			{Key: "d", Action: "delete daily item"},
		}
	case SectionManuscript:
		return []KeyBinding{
			{Key: "+/-", Action: "step progress by one"},
			{Key: "/ms", Action: "set title, deadline, total"},
		}
	default:
		return nil
	}
}

func (m Model) helpBindings() []key.Binding {
	all := append(m.globalBindings(), m.sectionBindings()...)
	out := make([]key.Binding, 0, len(all))
	for _, kb := range all {
		out = append(out, key.NewBinding(key.WithKeys(kb.Key), key.WithHelp(kb.Key, kb.Action)))
	}
	return out
}
