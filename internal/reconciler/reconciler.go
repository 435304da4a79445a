// Package reconciler keeps local state and the remote snapshot store in step.
//
// Local edits are persisted immediately and pushed after a debounce window.
// A pull runs once at startup (and after a secret is configured) and is
// applied only when the remote snapshot is strictly newer than the last one
// applied and no unsaved local edit exists. There is no background polling.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fuusan091240-hub/flow-schedule/internal/accesskey"
	"github.com/fuusan091240-hub/flow-schedule/internal/model"
	"github.com/fuusan091240-hub/flow-schedule/internal/scheduler"
	"github.com/fuusan091240-hub/flow-schedule/internal/snapshot"
	"github.com/fuusan091240-hub/flow-schedule/internal/storage"
	"github.com/fuusan091240-hub/flow-schedule/internal/transport"
)

const (
	DefaultDebounce         = 1500 * time.Millisecond
	DefaultInitialPullDelay = 300 * time.Millisecond

	jobSave = "save"
	jobPull = "pull"
)

// State is the observable phase of the reconciler.
type State int

const (
	Idle State = iota
	PendingSave
	Saving
	Restoring
)

func (s State) String() string {
	switch s {
	case PendingSave:
		return "pending"
	case Saving:
		return "saving"
	case Restoring:
		return "restoring"
	default:
		return "idle"
	}
}

// Hooks are optional observers. They run outside the reconciler lock and may
// call back into the reconciler.
type Hooks struct {
	OnStateApplied  func(model.AppState)
	OnDirty         func(at time.Time)
	OnSaved         func(at time.Time)
	OnMissingSecret func()
	OnError         func(op string, err error)
}

type Options struct {
	Debounce         time.Duration
	InitialPullDelay time.Duration
	Now              func() time.Time
	Logger           *slog.Logger
	Hooks            Hooks
}

type Reconciler struct {
	store  *storage.Store
	tr     transport.Transport
	opts   Options
	engine *scheduler.Engine
	logger *slog.Logger

	// mu guards local state and sync bookkeeping across read-modify-write.
	// editGen counts local edits and saveGen counts completed saves.
	mu      sync.Mutex
	editGen uint64
	saveGen uint64

	// Phase flags are written under mu and read lock-free by State.
	armedSeq  atomic.Uint64
	saving    atomic.Bool
	restoring atomic.Bool

	// saveMu serializes sends so a manual flush never races a timer save.
	saveMu  sync.Mutex
	pulling atomic.Bool

	initialOnce sync.Once
	startOnce   sync.Once
	stopOnce    sync.Once
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func New(store *storage.Store, tr transport.Transport, opts Options) *Reconciler {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.InitialPullDelay <= 0 {
		opts.InitialPullDelay = DefaultInitialPullDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		store:  store,
		tr:     tr,
		opts:   opts,
		engine: scheduler.NewEngine(8),
		logger: logger.With("component", "reconciler"),
		ctx:    ctx,
		cancel: cancel,
	}
	r.engine.SetDropHandler(r.handleDropped)
	return r
}

// Start runs fired save and pull jobs one at a time on a single goroutine.
func (r *Reconciler) Start() {
	r.startOnce.Do(func() {
		r.engine.Start()
		r.wg.Add(1)
		go r.loop()
	})
}

// Stop disarms pending jobs and waits for the job loop to exit. Unsaved edits
// stay marked dirty and are resent by a later edit or Flush.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		r.engine.Stop()
		r.wg.Wait()
	})
}

func (r *Reconciler) loop() {
	defer r.wg.Done()
	for job := range r.engine.C() {
		switch job.Key {
		case jobSave:
			r.handleSaveJob(r.ctx, job)
		case jobPull:
			if _, err := r.pull(r.ctx, false); err != nil {
				r.logger.Debug("scheduled pull ended without applying", "err", err)
			}
		}
	}
}

// State reports the current phase. Restoring takes precedence over Saving.
func (r *Reconciler) State() State {
	switch {
	case r.restoring.Load():
		return Restoring
	case r.saving.Load():
		return Saving
	case r.armedSeq.Load() != 0:
		return PendingSave
	default:
		return Idle
	}
}

// Load returns the current local state, clearing daily done flags first
// when the calendar day has changed. A daily reset does not mark dirty.
func (r *Reconciler) Load(ctx context.Context) (model.AppState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.store.ResetDailyIfNeeded(ctx, model.DayKey(r.opts.Now())); err != nil {
		return model.AppState{}, err
	}
	return r.store.LoadState(ctx)
}

// Edit applies fn to the persisted state and marks it dirty in one step, so
// a pull can never land between the mutation and the dirty mark. A pending
// daily reset is applied first, so stale done flags are never saved.
func (r *Reconciler) Edit(ctx context.Context, fn func(*model.AppState) error) (model.AppState, error) {
	r.mu.Lock()
	if _, err := r.store.ResetDailyIfNeeded(ctx, model.DayKey(r.opts.Now())); err != nil {
		r.mu.Unlock()
		return model.AppState{}, err
	}
	st, err := r.store.LoadState(ctx)
	if err != nil {
		r.mu.Unlock()
		return model.AppState{}, err
	}
	if err := fn(&st); err != nil {
		r.mu.Unlock()
		return model.AppState{}, err
	}
	if err := r.store.SaveState(ctx, st); err != nil {
		r.mu.Unlock()
		return model.AppState{}, err
	}
	at, marked, err := r.markDirtyLocked(ctx)
	r.mu.Unlock()
	if err != nil {
		return st, err
	}
	if marked {
		r.fireDirty(at)
	}
	return st, nil
}

// NotifyEdited records that local state changed outside Edit and arms the
// debounced save.
func (r *Reconciler) NotifyEdited(ctx context.Context) error {
	r.mu.Lock()
	at, marked, err := r.markDirtyLocked(ctx)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if marked {
		r.fireDirty(at)
	}
	return nil
}

func (r *Reconciler) markDirtyLocked(ctx context.Context) (time.Time, bool, error) {
	if r.restoring.Load() {
		return time.Time{}, false, nil
	}
	now := r.opts.Now()
	if err := r.store.SetLocalDirtyAt(ctx, now); err != nil {
		return time.Time{}, false, err
	}
	r.editGen++
	if err := r.armSaveLocked(); err != nil {
		return now, true, err
	}
	return now, true, nil
}

// armSaveLocked replaces any armed save with a fresh one a full debounce away.
func (r *Reconciler) armSaveLocked() error {
	job, err := r.engine.Schedule(jobSave, r.opts.Debounce)
	if err != nil {
		return fmt.Errorf("reconciler: arm save: %w", err)
	}
	r.armedSeq.Store(job.Seq)
	return nil
}

// TriggerInitialSync schedules the startup pull once. A dirty flag left by a
// previous run re-arms the save instead of waiting for the next edit.
func (r *Reconciler) TriggerInitialSync() {
	r.initialOnce.Do(func() {
		if _, err := r.engine.Schedule(jobPull, r.opts.InitialPullDelay); err != nil {
			r.logger.Warn("schedule initial pull failed", "err", err)
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, dirty, err := r.store.LocalDirtyAt(r.ctx); err == nil && dirty {
			if err := r.armSaveLocked(); err != nil {
				r.logger.Warn("resume pending save failed", "err", err)
			}
		}
	})
}

// ConfigureSecret stores secret (an empty value clears it). A non-empty
// secret schedules a pull and, when edits were waiting on it, a save.
func (r *Reconciler) ConfigureSecret(ctx context.Context, secret string) error {
	secret = strings.TrimSpace(secret)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.SetSecret(ctx, secret); err != nil {
		return err
	}
	if secret == "" {
		r.logger.Info("sync secret cleared")
		return nil
	}
	r.logger.Info("sync secret configured")
	if _, dirty, err := r.store.LocalDirtyAt(ctx); err != nil {
		return err
	} else if dirty {
		if err := r.armSaveLocked(); err != nil {
			return err
		}
	}
	if _, err := r.engine.Schedule(jobPull, r.opts.InitialPullDelay); err != nil {
		return fmt.Errorf("reconciler: schedule pull: %w", err)
	}
	return nil
}

// Status is a point-in-time view of sync bookkeeping for display.
type Status struct {
	State            State
	SecretConfigured bool
	Dirty            bool
	DirtyAt          time.Time
	LastSaveAt       time.Time
	LastPulledAt     time.Time
}

func (r *Reconciler) Status(ctx context.Context) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := Status{State: r.State()}
	secret, err := r.store.Secret(ctx)
	if err != nil {
		return Status{}, err
	}
	out.SecretConfigured = secret != ""
	if out.DirtyAt, out.Dirty, err = r.store.LocalDirtyAt(ctx); err != nil {
		return Status{}, err
	}
	if out.LastSaveAt, _, err = r.store.LastSaveAt(ctx); err != nil {
		return Status{}, err
	}
	if out.LastPulledAt, _, err = r.store.LastPulledAt(ctx); err != nil {
		return Status{}, err
	}
	return out, nil
}

// Dirty reports whether an edit has not yet been saved remotely.
func (r *Reconciler) Dirty(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, dirty, err := r.store.LocalDirtyAt(ctx)
	return dirty, err
}

// Flush sends the current state now, disarming any pending debounced save.
// It is the manual retry after a failed save.
func (r *Reconciler) Flush(ctx context.Context) error {
	r.mu.Lock()
	r.armedSeq.Store(0)
	r.engine.Cancel(jobSave)
	r.mu.Unlock()
	return r.save(ctx)
}

func (r *Reconciler) handleSaveJob(ctx context.Context, job scheduler.Job) {
	r.mu.Lock()
	if job.Seq != r.armedSeq.Load() {
		r.mu.Unlock()
		return
	}
	r.armedSeq.Store(0)
	r.mu.Unlock()
	if err := r.save(ctx); err != nil {
		r.logger.Debug("debounced save ended with error", "err", err)
	}
}

func (r *Reconciler) save(ctx context.Context) error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.Lock()
	r.saving.Store(true)
	gen := r.editGen
	secret, err := r.store.Secret(ctx)
	if err != nil {
		r.saving.Store(false)
		r.mu.Unlock()
		return r.fail("save", err)
	}
	key, err := accesskey.Derive(secret)
	if err != nil {
		r.saving.Store(false)
		r.mu.Unlock()
		r.logger.Info("save skipped: no sync secret configured")
		if r.opts.Hooks.OnMissingSecret != nil {
			r.opts.Hooks.OnMissingSecret()
		}
		return err
	}
	st, err := r.store.LoadState(ctx)
	if err != nil {
		r.saving.Store(false)
		r.mu.Unlock()
		return r.fail("save", err)
	}
	env, err := snapshot.Encode(st, r.opts.Now())
	r.mu.Unlock()
	if err != nil {
		r.saving.Store(false)
		return r.fail("save", err)
	}

	sendErr := r.tr.Send(ctx, key, env)

	r.mu.Lock()
	r.saving.Store(false)
	if sendErr != nil {
		r.mu.Unlock()
		return r.fail("save", sendErr)
	}
	r.saveGen++
	now := r.opts.Now()
	if err := r.store.SetLastSaveAt(ctx, now); err != nil {
		r.mu.Unlock()
		return r.fail("save", err)
	}
	// An edit that landed while the send was in flight keeps the dirty flag.
	if r.editGen == gen {
		if err := r.store.ClearLocalDirtyAt(ctx); err != nil {
			r.mu.Unlock()
			return r.fail("save", err)
		}
	}
	r.mu.Unlock()

	r.logger.Info("snapshot saved", "saved_at", env.SavedAt, "key", key.Short())
	if r.opts.Hooks.OnSaved != nil {
		r.opts.Hooks.OnSaved(now)
	}
	return nil
}

// PullIfNewer fetches the remote snapshot and applies it when it is strictly
// newer than the last applied one and no local edit is pending. A pull that
// starts while another is running is dropped, and so is a fetched snapshot
// when a local edit or save happened while the fetch was in flight. It
// reports whether remote state was applied.
func (r *Reconciler) PullIfNewer(ctx context.Context) (bool, error) {
	return r.pull(ctx, true)
}

// pull is PullIfNewer. Scheduled pulls pass report=false: a failed fetch is
// then only logged and never reaches OnError.
func (r *Reconciler) pull(ctx context.Context, report bool) (bool, error) {
	if !r.pulling.CompareAndSwap(false, true) {
		r.logger.Debug("pull already in progress; dropped")
		return false, nil
	}
	defer r.pulling.Store(false)

	secret, err := r.store.Secret(ctx)
	if err != nil {
		return false, r.fail("pull", err)
	}
	key, err := accesskey.Derive(secret)
	if err != nil {
		r.logger.Debug("pull skipped: no sync secret configured")
		return false, nil
	}

	r.mu.Lock()
	editGen, saveGen := r.editGen, r.saveGen
	r.mu.Unlock()

	env, err := r.tr.Fetch(ctx, key)
	if err != nil {
		if !report {
			r.logger.Info("scheduled pull skipped: fetch failed", "err", err)
			return false, err
		}
		return false, r.fail("pull", err)
	}
	if env == nil {
		r.logger.Debug("no remote snapshot", "key", key.Short())
		return false, nil
	}
	remoteAt, ok := env.SavedTime()
	if !ok {
		r.logger.Warn("remote snapshot has unusable savedAt; skipped", "saved_at", env.SavedAt)
		return false, nil
	}

	r.mu.Lock()
	if r.editGen != editGen || r.saveGen != saveGen || r.saving.Load() {
		r.mu.Unlock()
		r.logger.Info("local state changed during fetch; remote snapshot not applied", "remote", remoteAt)
		return false, nil
	}
	lastPulled, hasPulled, err := r.store.LastPulledAt(ctx)
	if err != nil {
		r.mu.Unlock()
		return false, r.fail("pull", err)
	}
	if hasPulled && !remoteAt.After(lastPulled) {
		r.mu.Unlock()
		r.logger.Debug("remote snapshot not newer", "remote", remoteAt, "last_pulled", lastPulled)
		return false, nil
	}
	if _, dirty, err := r.store.LocalDirtyAt(ctx); err != nil {
		r.mu.Unlock()
		return false, r.fail("pull", err)
	} else if dirty {
		r.mu.Unlock()
		r.logger.Info("local edits pending; remote snapshot not applied", "remote", remoteAt)
		return false, nil
	}

	r.restoring.Store(true)
	st := snapshot.Decode(*env, r.opts.Now())
	err = r.store.SaveState(ctx, st)
	if err == nil {
		err = r.store.SetLastPulledAt(ctx, remoteAt)
	}
	r.restoring.Store(false)
	r.mu.Unlock()
	if err != nil {
		return false, r.fail("pull", err)
	}

	r.logger.Info("remote snapshot applied", "saved_at", env.SavedAt)
	if r.opts.Hooks.OnStateApplied != nil {
		r.opts.Hooks.OnStateApplied(st)
	}
	return true, nil
}

// handleDropped re-arms a job the engine could not deliver, so a save that is
// still wanted is not lost and State does not stay PendingSave forever.
func (r *Reconciler) handleDropped(job scheduler.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch job.Key {
	case jobSave:
		if job.Seq != r.armedSeq.Load() {
			return
		}
		r.logger.Warn("save job dropped; re-arming")
		if err := r.armSaveLocked(); err != nil {
			r.armedSeq.Store(0)
			r.logger.Warn("re-arm save failed", "err", err)
		}
	case jobPull:
		if _, err := r.engine.Schedule(jobPull, r.opts.InitialPullDelay); err != nil {
			r.logger.Warn("re-arm pull failed", "err", err)
		}
	}
}

func (r *Reconciler) fireDirty(at time.Time) {
	if r.opts.Hooks.OnDirty != nil {
		r.opts.Hooks.OnDirty(at)
	}
}

func (r *Reconciler) fail(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	r.logger.Warn("sync operation failed", "op", op, "err", err)
	if r.opts.Hooks.OnError != nil {
		r.opts.Hooks.OnError(op, err)
	}
	return err
}
