package update

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/fuusan091240-hub/flow-schedule/internal/model"
	"github.com/fuusan091240-hub/flow-schedule/internal/reconciler"
	"github.com/google/uuid"
)

type Section int

const (
	SectionTasks Section = iota
	SectionDaily
	SectionManuscript
)

func (s Section) String() string {
	switch s {
	case SectionTasks:
		return "tasks"
	case SectionDaily:
		return "daily"
	case SectionManuscript:
		return "manuscript"
	default:
		return "unknown"
	}
}

type StatusBar struct {
	Text    string
	IsError bool
}

type GlobalKeyMap struct {
	Palette string
	Flush   string
	Pull    string
	Help    string
	Quit    string
}

type CommandPaletteState struct {
	Active bool
	Input  string
}

type Options struct {
	Events        <-chan SyncEvent
	Now           func() time.Time
	NewID         func() string
	SyncTimeout   time.Duration
	StatusRefresh time.Duration
}

type Model struct {
	State       model.AppState
	Sync        reconciler.Status
	Loaded      bool
	Focus       Section
	TaskCursor  int
	DailyCursor int
	Palette     CommandPaletteState
	HelpVisible bool
	Status      StatusBar
	Keys        GlobalKeyMap
	Quitting    bool
	LastError   error

	ctx    context.Context
	syncer Syncer
	events <-chan SyncEvent
	opts   Options
	// loadedDay is the calendar day State was last loaded for.
	loadedDay string

	commandInput textinput.Model
	progressBar  progress.Model
	syncSpinner  spinner.Model
	helpModel    help.Model
}

type StateLoadedMsg struct {
	State model.AppState
	Sync  reconciler.Status
	Err   error
}

type SyncEventMsg struct {
	Event SyncEvent
}

type SyncStatusMsg struct {
	Status reconciler.Status
	Err    error
}

type FlushDoneMsg struct {
	Err error
}

type PullDoneMsg struct {
	Applied bool
	Err     error
}

type SetStatusMsg struct {
	Text    string
	IsError bool
}

type ClearStatusMsg struct{}

type AppErrorMsg struct {
	Err error
}

type statusTickMsg struct{}

func NewModel(ctx context.Context, syncer Syncer, opts Options) Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = 15 * time.Second
	}
	if opts.StatusRefresh <= 0 {
		opts.StatusRefresh = time.Second
	}
	m := Model{
		State:  model.DefaultState(opts.Now()),
		Focus:  SectionTasks,
		ctx:    ctx,
		syncer: syncer,
		events: opts.Events,
		opts:   opts,
		Keys: GlobalKeyMap{
			Palette: "/",
			Flush:   "s",
			Pull:    "p",
			Help:    "?",
			Quit:    "q",
		},
	}
	m.initBubbleComponents()
	return m
}

func (m *Model) initBubbleComponents() {
	m.commandInput = textinput.New()
	m.commandInput.Prompt = "/"
	m.commandInput.CharLimit = 256
	m.commandInput.Width = 48

	m.progressBar = progress.New(progress.WithDefaultGradient(), progress.WithWidth(36))

	m.syncSpinner = spinner.New()
	m.syncSpinner.Spinner = spinner.Dot

	m.helpModel = help.New()
}

func (m Model) selectedTask() (model.Task, bool) {
	visible := m.State.VisibleTasks()
	if m.TaskCursor < 0 || m.TaskCursor >= len(visible) {
		return model.Task{}, false
	}
	return visible[m.TaskCursor], true
}

func (m Model) selectedDaily() (model.DailyItem, bool) {
	if m.DailyCursor < 0 || m.DailyCursor >= len(m.State.DailyItems) {
		return model.DailyItem{}, false
	}
	return m.State.DailyItems[m.DailyCursor], true
}

func (m *Model) clampCursors() {
	m.TaskCursor = clampIndex(m.TaskCursor, len(m.State.VisibleTasks()))
	m.DailyCursor = clampIndex(m.DailyCursor, len(m.State.DailyItems))
}

func clampIndex(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// edit applies fn through the syncer so the change is persisted and marked
// for upload, then adopts the stored result.
func (m *Model) edit(fn func(*model.AppState) error) error {
	st, err := m.syncer.Edit(m.ctx, fn)
	if err != nil {
		return err
	}
	m.State = st
	m.clampCursors()
	return nil
}
