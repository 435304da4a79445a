package update

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fuusan091240-hub/flow-schedule/internal/commands"
	"github.com/fuusan091240-hub/flow-schedule/internal/model"
)

func (m Model) openPalette(prefill string) Model {
	m.Palette.Active = true
	m.Palette.Input = prefill
	m.commandInput.SetValue(prefill)
	m.commandInput.CursorEnd()
	m.commandInput.Focus()
	return m
}

func (m Model) closePalette() Model {
	m.Palette.Active = false
	m.Palette.Input = ""
	m.commandInput.SetValue("")
	m.commandInput.Blur()
	return m
}

func (m Model) handlePaletteKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.Quitting = true
		return m, tea.Quit
	case "esc":
		m = m.closePalette()
		m.Status = StatusBar{Text: "command palette closed"}
		return m, nil
	case "enter":
		m.Palette.Input = m.commandInput.Value()
		return m.executePaletteCommand()
	default:
		if msg.Type == tea.KeyRunes {
			m.commandInput.SetValue(m.commandInput.Value() + string(msg.Runes))
			m.Palette.Input = m.commandInput.Value()
			return m, nil
		}
		var cmd tea.Cmd
		m.commandInput, cmd = m.commandInput.Update(msg)
		m.Palette.Input = m.commandInput.Value()
		return m, cmd
	}
}

func (m Model) executePaletteCommand() (tea.Model, tea.Cmd) {
	raw := strings.TrimSpace(m.Palette.Input)
	m = m.closePalette()
	cmd, err := commands.Parse(raw)
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		return m, nil
	}

	var follow tea.Cmd
	now := m.opts.Now()
	res, err := commands.Execute(cmd, commands.Handlers{
		Add: func(a commands.TaskArgs) (commands.Result, error) {
			id := m.opts.NewID()
			if err := m.edit(func(st *model.AppState) error {
				_, err := st.AddTask(id, a.Title, a.Deadline, a.Energy, now)
				return err
			}); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("added: %s", a.Title)}, nil
		},
		Edit: func(a commands.TaskArgs) (commands.Result, error) {
			t, ok := m.selectedTask()
			if !ok {
				return commands.Result{}, &commands.CommandError{Code: commands.ErrCodeInvalidArgument, Message: "no task selected"}
			}
			if err := m.edit(func(st *model.AppState) error { return commands.ApplyEdit(st, t.ID, a) }); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: "task updated"}, nil
		},
		Daily: func(a commands.DailyArgs) (commands.Result, error) {
			id := m.opts.NewID()
			if err := m.edit(func(st *model.AppState) error {
				_, err := st.AddDaily(id, a.Title)
				return err
			}); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("daily added: %s", a.Title)}, nil
		},
		Mood: func(a commands.MoodArgs) (commands.Result, error) {
			if err := m.edit(func(st *model.AppState) error { return st.SetMood(a.Level) }); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("mood %d (capacity %d)", a.Level, model.Capacity(a.Level))}, nil
		},
		View: func(a commands.ViewArgs) (commands.Result, error) {
			if err := m.edit(func(st *model.AppState) error { return st.SetViewMode(a.Mode) }); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: "view: " + string(a.Mode)}, nil
		},
		Manuscript: func(a commands.ManuscriptArgs) (commands.Result, error) {
			if err := m.edit(func(st *model.AppState) error { return commands.ApplyManuscript(st, a, now) }); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: "manuscript updated"}, nil
		},
		Secret: func(a commands.SecretArgs) (commands.Result, error) {
			if err := m.syncer.ConfigureSecret(m.ctx, a.Secret); err != nil {
				return commands.Result{}, err
			}
			m.Sync.SecretConfigured = a.Secret != ""
			follow = refreshStatusCmd(m.ctx, m.syncer)
			if a.Secret == "" {
				return commands.Result{Message: "secret cleared; cloud sync off"}, nil
			}
			return commands.Result{Message: "secret set; checking remote"}, nil
		},
		Push: func() (commands.Result, error) {
			follow = flushCmd(m.ctx, m.syncer, m.opts.SyncTimeout)
			return commands.Result{Message: "saving..."}, nil
		},
		Pull: func() (commands.Result, error) {
			follow = pullCmd(m.ctx, m.syncer, m.opts.SyncTimeout)
			return commands.Result{Message: "checking remote..."}, nil
		},
	})
	if err != nil {
		m.LastError = err
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		return m, nil
	}
	m.Status = StatusBar{Text: res.Message}
	return m, follow
}
