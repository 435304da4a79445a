package update

import (
	"context"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fuusan091240-hub/flow-schedule/internal/model"
	"github.com/fuusan091240-hub/flow-schedule/internal/reconciler"
)

// Syncer is the slice of the reconciler the UI drives.
type Syncer interface {
	Load(ctx context.Context) (model.AppState, error)
	Edit(ctx context.Context, fn func(*model.AppState) error) (model.AppState, error)
	ConfigureSecret(ctx context.Context, secret string) error
	PullIfNewer(ctx context.Context) (bool, error)
	Flush(ctx context.Context) error
	Status(ctx context.Context) (reconciler.Status, error)
	TriggerInitialSync()
}

type SyncEventKind string

const (
	SyncEventApplied       SyncEventKind = "applied"
	SyncEventDirty         SyncEventKind = "dirty"
	SyncEventSaved         SyncEventKind = "saved"
	SyncEventMissingSecret SyncEventKind = "missing_secret"
	SyncEventError         SyncEventKind = "error"
)

type SyncEvent struct {
	Kind  SyncEventKind
	State model.AppState
	At    time.Time
	Op    string
	Err   error
}

// EventBridge turns reconciler hooks, which fire on background goroutines,
// into a channel the program loop can wait on. Publishing never blocks; an
// event that finds the buffer full is dropped and counted.
type EventBridge struct {
	ch      chan SyncEvent
	dropped atomic.Uint64
}

func NewEventBridge(buf int) *EventBridge {
	if buf <= 0 {
		buf = 32
	}
	return &EventBridge{ch: make(chan SyncEvent, buf)}
}

func (b *EventBridge) C() <-chan SyncEvent {
	return b.ch
}

func (b *EventBridge) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *EventBridge) Hooks() reconciler.Hooks {
	return reconciler.Hooks{
		OnStateApplied: func(st model.AppState) {
			b.publish(SyncEvent{Kind: SyncEventApplied, State: st})
		},
		OnDirty: func(at time.Time) {
			b.publish(SyncEvent{Kind: SyncEventDirty, At: at})
		},
		OnSaved: func(at time.Time) {
			b.publish(SyncEvent{Kind: SyncEventSaved, At: at})
		},
		OnMissingSecret: func() {
			b.publish(SyncEvent{Kind: SyncEventMissingSecret})
		},
		OnError: func(op string, err error) {
			b.publish(SyncEvent{Kind: SyncEventError, Op: op, Err: err})
		},
	}
}

func (b *EventBridge) publish(ev SyncEvent) {
	select {
	case b.ch <- ev:
	default:
		b.dropped.Add(1)
	}
}

func waitForSyncEvent(ch <-chan SyncEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return SyncEventMsg{Event: ev}
	}
}

func loadStateCmd(ctx context.Context, s Syncer) tea.Cmd {
	return func() tea.Msg {
		st, err := s.Load(ctx)
		if err != nil {
			return StateLoadedMsg{Err: err}
		}
		s.TriggerInitialSync()
		status, err := s.Status(ctx)
		return StateLoadedMsg{State: st, Sync: status, Err: err}
	}
}

// reloadStateCmd reads state again after the calendar day changed, so the
// daily reset shows without waiting for an edit.
func reloadStateCmd(ctx context.Context, s Syncer) tea.Cmd {
	return func() tea.Msg {
		st, err := s.Load(ctx)
		if err != nil {
			return StateLoadedMsg{Err: err}
		}
		status, err := s.Status(ctx)
		return StateLoadedMsg{State: st, Sync: status, Err: err}
	}
}

func refreshStatusCmd(ctx context.Context, s Syncer) tea.Cmd {
	return func() tea.Msg {
		status, err := s.Status(ctx)
		return SyncStatusMsg{Status: status, Err: err}
	}
}

func flushCmd(ctx context.Context, s Syncer, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return FlushDoneMsg{Err: s.Flush(cctx)}
	}
}

func pullCmd(ctx context.Context, s Syncer, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		applied, err := s.PullIfNewer(cctx)
		return PullDoneMsg{Applied: applied, Err: err}
	}
}

func statusTickCmd(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(time.Time) tea.Msg { return statusTickMsg{} })
}
