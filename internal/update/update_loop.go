package update

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fuusan091240-hub/flow-schedule/internal/accesskey"
	"github.com/fuusan091240-hub/flow-schedule/internal/model"
	"github.com/fuusan091240-hub/flow-schedule/internal/views"
)

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		loadStateCmd(m.ctx, m.syncer),
		waitForSyncEvent(m.events),
		statusTickCmd(m.opts.StatusRefresh),
		m.syncSpinner.Tick,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		if m.Palette.Active {
			return m.handlePaletteKey(typed)
		}
		return m.handleKey(typed)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.syncSpinner, cmd = m.syncSpinner.Update(typed)
		return m, cmd
	case statusTickMsg:
		if m.Loaded && model.DayKey(m.opts.Now()) != m.loadedDay {
			return m, tea.Batch(reloadStateCmd(m.ctx, m.syncer), statusTickCmd(m.opts.StatusRefresh))
		}
		return m, tea.Batch(refreshStatusCmd(m.ctx, m.syncer), statusTickCmd(m.opts.StatusRefresh))
	case StateLoadedMsg:
		if typed.Err != nil {
			return m.fail(typed.Err)
		}
		m.State = typed.State
		m.Sync = typed.Sync
		m.Loaded = true
		m.loadedDay = model.DayKey(m.opts.Now())
		m.clampCursors()
		return m, nil
	case SyncStatusMsg:
		if typed.Err == nil {
			m.Sync = typed.Status
		}
		return m, nil
	case SyncEventMsg:
		m.applySyncEvent(typed.Event)
		return m, tea.Batch(waitForSyncEvent(m.events), refreshStatusCmd(m.ctx, m.syncer))
	case FlushDoneMsg:
		switch {
		case errors.Is(typed.Err, accesskey.ErrMissingSecret):
			m.Sync.SecretConfigured = false
			m.Status = StatusBar{Text: "set a secret to enable cloud sync", IsError: true}
		case typed.Err != nil:
			m.LastError = typed.Err
			m.Status = StatusBar{Text: "save failed: " + typed.Err.Error(), IsError: true}
		default:
			m.Status = StatusBar{Text: "saved"}
		}
		return m, refreshStatusCmd(m.ctx, m.syncer)
	case PullDoneMsg:
		switch {
		case typed.Err != nil:
			m.LastError = typed.Err
			m.Status = StatusBar{Text: "pull failed: " + typed.Err.Error(), IsError: true}
		case typed.Applied:
			m.Status = StatusBar{Text: "pulled newer remote state"}
		default:
			m.Status = StatusBar{Text: "already up to date"}
		}
		return m, refreshStatusCmd(m.ctx, m.syncer)
	case SetStatusMsg:
		m.Status = StatusBar{Text: typed.Text, IsError: typed.IsError}
		return m, nil
	case ClearStatusMsg:
		m.Status = StatusBar{}
		return m, nil
	case AppErrorMsg:
		return m.fail(typed.Err)
	}
	return m, nil
}

func (m Model) fail(err error) (tea.Model, tea.Cmd) {
	m.LastError = err
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
	}
	return m, nil
}

func (m *Model) applySyncEvent(ev SyncEvent) {
	switch ev.Kind {
	case SyncEventApplied:
		m.State = ev.State
		m.clampCursors()
		m.Status = StatusBar{Text: "remote changes applied"}
	case SyncEventDirty:
		m.Sync.Dirty = true
		m.Sync.DirtyAt = ev.At
	case SyncEventSaved:
		m.Sync.LastSaveAt = ev.At
	case SyncEventMissingSecret:
		m.Sync.SecretConfigured = false
	case SyncEventError:
		m.LastError = ev.Err
		m.Status = StatusBar{Text: fmt.Sprintf("%s failed: %v", ev.Op, ev.Err), IsError: true}
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	keyStr := msg.String()
	switch keyStr {
	case "ctrl+c", m.Keys.Quit:
		m.Quitting = true
		return m, tea.Quit
	case m.Keys.Help:
		m.HelpVisible = !m.HelpVisible
		return m, nil
	case m.Keys.Palette:
		return m.openPalette(""), nil
	case "a":
		return m.openPalette("add "), nil
	case "e":
		if _, ok := m.selectedTask(); ok && m.Focus == SectionTasks {
			return m.openPalette("edit "), nil
		}
		return m, nil
	case m.Keys.Flush:
		m.Status = StatusBar{Text: "saving..."}
		return m, flushCmd(m.ctx, m.syncer, m.opts.SyncTimeout)
	case m.Keys.Pull:
		m.Status = StatusBar{Text: "checking remote..."}
		return m, pullCmd(m.ctx, m.syncer, m.opts.SyncTimeout)
	case "tab":
		m.Focus = (m.Focus + 1) % 3
		return m, nil
	case "shift+tab":
		m.Focus = (m.Focus + 2) % 3
		return m, nil
	case "j", "down":
		m.moveCursor(1)
		return m, nil
	case "k", "up":
		m.moveCursor(-1)
		return m, nil
	case "v":
		next := model.ViewAll
		if m.State.ViewMode == model.ViewAll {
			next = model.ViewToday
		}
		return m.applyEdit(func(st *model.AppState) error { return st.SetViewMode(next) }, "view: "+string(next))
	case "+", "=":
		return m.applyEdit(func(st *model.AppState) error { st.StepManuscript(1); return nil }, "")
	case "-":
		return m.applyEdit(func(st *model.AppState) error { st.StepManuscript(-1); return nil }, "")
	case "0", "1", "2", "3", "4", "5":
		level := int(keyStr[0] - '0')
		return m.applyEdit(func(st *model.AppState) error { return st.SetMood(level) }, fmt.Sprintf("mood %d (capacity %d)", level, model.Capacity(level)))
	case " ", "enter":
		return m.toggleSelected()
	case "d", "x":
		return m.deleteSelected()
	}
	return m, nil
}

func (m *Model) moveCursor(delta int) {
	switch m.Focus {
	case SectionTasks:
		m.TaskCursor = clampIndex(m.TaskCursor+delta, len(m.State.VisibleTasks()))
	case SectionDaily:
		m.DailyCursor = clampIndex(m.DailyCursor+delta, len(m.State.DailyItems))
	}
}

func (m Model) toggleSelected() (tea.Model, tea.Cmd) {
	switch m.Focus {
	case SectionTasks:
		t, ok := m.selectedTask()
		if !ok {
			return m, nil
		}
		return m.applyEdit(func(st *model.AppState) error { return st.ToggleTask(t.ID) }, "")
	case SectionDaily:
		d, ok := m.selectedDaily()
		if !ok {
			return m, nil
		}
		return m.applyEdit(func(st *model.AppState) error { return st.ToggleDaily(d.ID) }, "")
	}
	return m, nil
}

func (m Model) deleteSelected() (tea.Model, tea.Cmd) {
	switch m.Focus {
	case SectionTasks:
		t, ok := m.selectedTask()
		if !ok {
			return m, nil
		}
		return m.applyEdit(func(st *model.AppState) error { return st.DeleteTask(t.ID) }, "deleted: "+t.Title)
	case SectionDaily:
		d, ok := m.selectedDaily()
		if !ok {
			return m, nil
		}
		return m.applyEdit(func(st *model.AppState) error { return st.DeleteDaily(d.ID) }, "deleted daily: "+d.Title)
	}
	return m, nil
}

func (m Model) applyEdit(fn func(*model.AppState) error, okText string) (tea.Model, tea.Cmd) {
	if err := m.edit(fn); err != nil {
		return m.fail(err)
	}
	if okText != "" {
		m.Status = StatusBar{Text: okText}
	}
	return m, nil
}

func (m Model) View() string {
	now := m.opts.Now()
	status := ""
	if m.Status.Text != "" {
		if m.Status.IsError {
			status = "error: " + m.Status.Text
		} else {
			status = m.Status.Text
		}
	}

	left := strings.Join([]string{
		views.RenderTasksPanel(m.tasksPanelData(now)),
		"",
		views.RenderDailyPanel(m.dailyPanelData()),
	}, "\n")

	right := []string{views.RenderManuscriptPanel(m.manuscriptPanelData(now)), "", views.RenderSyncPanel(m.syncPanelData(now))}
	if m.HelpVisible {
		right = append(right, "", m.renderHelpView())
	}

	banner := ""
	if m.Loaded {
		banner = views.RenderSecretBanner(m.Sync.SecretConfigured)
	}

	return views.RenderApp(views.AppData{
		Header:     fmt.Sprintf("flow | %s | focus: %s | sync: %s", model.DayKey(now), m.Focus, m.Sync.State),
		Banner:     banner,
		LeftPane:   left,
		RightPane:  strings.Join(right, "\n"),
		StatusLine: status,
		IsError:    m.Status.IsError,
		Overlay:    views.RenderCommandPalette(m.Palette.Active, m.commandInput.View()),
		Footer:     fmt.Sprintf("keys: tab section | j/k move | space toggle | d delete | 0-5 mood | v view | +/- ms | a add | %s cmd | %s save | %s pull | %s help | %s quit", m.Keys.Palette, m.Keys.Flush, m.Keys.Pull, m.Keys.Help, m.Keys.Quit),
	})
}
