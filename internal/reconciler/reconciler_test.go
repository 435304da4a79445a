package reconciler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fuusan091240-hub/flow-schedule/internal/accesskey"
	"github.com/fuusan091240-hub/flow-schedule/internal/model"
	"github.com/fuusan091240-hub/flow-schedule/internal/scheduler"
	"github.com/fuusan091240-hub/flow-schedule/internal/snapshot"
	"github.com/fuusan091240-hub/flow-schedule/internal/storage"
	"github.com/fuusan091240-hub/flow-schedule/internal/transport"
)

type fakeTransport struct {
	mu        sync.Mutex
	sends     []snapshot.Envelope
	sendTimes []time.Time
	sendErr   error
	sendHook  func()
	sent      chan struct{}
	fetches   int
	fetchFn   func(ctx context.Context) (*snapshot.Envelope, error)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(chan struct{}, 16)}
}

func (f *fakeTransport) Send(ctx context.Context, key accesskey.Key, env snapshot.Envelope) error {
	f.mu.Lock()
	hook := f.sendHook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sends = append(f.sends, env)
	f.sendTimes = append(f.sendTimes, time.Now())
	select {
	case f.sent <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeTransport) Fetch(ctx context.Context, key accesskey.Key) (*snapshot.Envelope, error) {
	f.mu.Lock()
	f.fetches++
	fn := f.fetchFn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx)
}

func (f *fakeTransport) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakeTransport) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func setupReconciler(t *testing.T, tr transport.Transport, opts Options) (*Reconciler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(storage.DriverPureGo, filepath.Join(t.TempDir(), "flow-test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := New(store, tr, opts)
	t.Cleanup(r.Stop)
	return r, store
}

func setSecret(t *testing.T, store *storage.Store) {
	t.Helper()
	if err := store.SetSecret(context.Background(), "correct horse"); err != nil {
		t.Fatalf("set secret: %v", err)
	}
}

func remoteEnvelope(t *testing.T, savedAt string, mood int) *snapshot.Envelope {
	t.Helper()
	st := model.DefaultState(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
	st.MoodLevel = mood
	env, err := snapshot.Encode(st, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env.SavedAt = savedAt
	return &env
}

func setMood(level int) func(*model.AppState) error {
	return func(st *model.AppState) error { return st.SetMood(level) }
}

func TestEditsWithinDebounceCoalesceIntoOneSend(t *testing.T) {
	tr := newFakeTransport()
	r, store := setupReconciler(t, tr, Options{Debounce: 400 * time.Millisecond})
	setSecret(t, store)
	r.Start()

	ctx := context.Background()
	if _, err := r.Edit(ctx, setMood(4)); err != nil {
		t.Fatalf("first edit: %v", err)
	}
	if got := r.State(); got != PendingSave {
		t.Fatalf("expected pending save, got %s", got)
	}
	time.Sleep(200 * time.Millisecond)
	if _, err := r.Edit(ctx, setMood(5)); err != nil {
		t.Fatalf("second edit: %v", err)
	}
	secondEdit := time.Now()

	select {
	case <-tr.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for save")
	}
	time.Sleep(300 * time.Millisecond)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.sends) != 1 {
		t.Fatalf("expected exactly one send, got %d", len(tr.sends))
	}
	if wait := tr.sendTimes[0].Sub(secondEdit); wait < 350*time.Millisecond {
		t.Fatalf("save fired %s after the last edit, before the debounce window closed", wait)
	}
	decoded := snapshot.Decode(tr.sends[0], time.Now())
	if decoded.MoodLevel != 5 {
		t.Fatalf("save should carry the final state, got mood %d", decoded.MoodLevel)
	}
}

func TestSuccessfulSaveClearsDirtyAndStampsLastSave(t *testing.T) {
	tr := newFakeTransport()
	var savedAt time.Time
	r, store := setupReconciler(t, tr, Options{Hooks: Hooks{OnSaved: func(at time.Time) { savedAt = at }}})
	setSecret(t, store)
	ctx := context.Background()

	if _, err := r.Edit(ctx, setMood(1)); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := r.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if dirty, _ := r.Dirty(ctx); dirty {
		t.Fatal("expected dirty flag cleared after save")
	}
	last, ok, err := store.LastSaveAt(ctx)
	if err != nil || !ok || last.IsZero() {
		t.Fatalf("expected lastSaveAt recorded, got %v ok=%v err=%v", last, ok, err)
	}
	if savedAt.IsZero() {
		t.Fatal("expected OnSaved hook to fire")
	}
	if got := r.State(); got != Idle {
		t.Fatalf("expected idle after flush, got %s", got)
	}
}

func TestMissingSecretMakesNoNetworkCall(t *testing.T) {
	tr := newFakeTransport()
	missing := make(chan struct{}, 1)
	r, _ := setupReconciler(t, tr, Options{
		Debounce: 50 * time.Millisecond,
		Hooks: Hooks{OnMissingSecret: func() {
			select {
			case missing <- struct{}{}:
			default:
			}
		}},
	})
	r.Start()

	ctx := context.Background()
	if err := r.NotifyEdited(ctx); err != nil {
		t.Fatalf("notify edited: %v", err)
	}
	select {
	case <-missing:
	case <-time.After(time.Second):
		t.Fatal("expected missing secret signal")
	}
	if tr.sendCount() != 0 || tr.fetchCount() != 0 {
		t.Fatalf("expected no network calls, sends=%d fetches=%d", tr.sendCount(), tr.fetchCount())
	}
	if dirty, _ := r.Dirty(ctx); !dirty {
		t.Fatal("edit should stay dirty until it can be saved")
	}
	if applied, err := r.PullIfNewer(ctx); applied || err != nil {
		t.Fatalf("pull without secret should be a no-op, applied=%v err=%v", applied, err)
	}
	if tr.fetchCount() != 0 {
		t.Fatal("pull without secret must not fetch")
	}
}

func TestSendFailureKeepsDirtyUntilManualRetry(t *testing.T) {
	tr := newFakeTransport()
	tr.sendErr = transport.ErrSendFailure
	var reported []string
	r, store := setupReconciler(t, tr, Options{Hooks: Hooks{OnError: func(op string, err error) {
		reported = append(reported, op)
	}}})
	setSecret(t, store)
	ctx := context.Background()

	if _, err := r.Edit(ctx, setMood(3)); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := r.Flush(ctx); !errors.Is(err, transport.ErrSendFailure) {
		t.Fatalf("expected send failure, got %v", err)
	}
	if dirty, _ := r.Dirty(ctx); !dirty {
		t.Fatal("failed save must leave the dirty flag set")
	}
	if len(reported) != 1 || reported[0] != "save" {
		t.Fatalf("expected one reported save error, got %v", reported)
	}
	if got := r.State(); got != Idle {
		t.Fatalf("expected idle after failed save, got %s", got)
	}

	tr.mu.Lock()
	tr.sendErr = nil
	tr.mu.Unlock()
	if err := r.Flush(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if dirty, _ := r.Dirty(ctx); dirty {
		t.Fatal("successful retry should clear dirty")
	}
}

func TestEditDuringSaveStaysDirty(t *testing.T) {
	tr := newFakeTransport()
	entered := make(chan struct{})
	release := make(chan struct{})
	tr.sendHook = func() {
		close(entered)
		<-release
	}
	r, store := setupReconciler(t, tr, Options{})
	setSecret(t, store)
	ctx := context.Background()

	if _, err := r.Edit(ctx, setMood(1)); err != nil {
		t.Fatalf("edit: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- r.Flush(ctx) }()
	<-entered
	if got := r.State(); got != Saving {
		t.Fatalf("expected saving, got %s", got)
	}
	if _, err := r.Edit(ctx, setMood(2)); err != nil {
		t.Fatalf("edit during save: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("flush: %v", err)
	}
	if dirty, _ := r.Dirty(ctx); !dirty {
		t.Fatal("edit made during an in-flight save must stay dirty")
	}
	if got := r.State(); got != PendingSave {
		t.Fatalf("expected the later edit to keep a save armed, got %s", got)
	}
}

func TestPullAppliesStrictlyNewerRemote(t *testing.T) {
	tr := newFakeTransport()
	tr.fetchFn = func(ctx context.Context) (*snapshot.Envelope, error) {
		return remoteEnvelope(t, "2025-01-02T00:00:00Z", 5), nil
	}
	var applied model.AppState
	r, store := setupReconciler(t, tr, Options{Hooks: Hooks{OnStateApplied: func(st model.AppState) { applied = st }}})
	setSecret(t, store)
	ctx := context.Background()
	if err := store.SetLastPulledAt(ctx, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("seed lastPulledAt: %v", err)
	}

	ok, err := r.PullIfNewer(ctx)
	if err != nil || !ok {
		t.Fatalf("expected remote applied, ok=%v err=%v", ok, err)
	}
	mood, err := store.Mood(ctx)
	if err != nil || mood != 5 {
		t.Fatalf("expected remote mood applied, got %d err=%v", mood, err)
	}
	last, has, err := store.LastPulledAt(ctx)
	if err != nil || !has || !last.Equal(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected lastPulledAt advanced, got %v has=%v err=%v", last, has, err)
	}
	if applied.MoodLevel != 5 {
		t.Fatalf("expected OnStateApplied with remote state, got %#v", applied)
	}
	if dirty, _ := r.Dirty(ctx); dirty {
		t.Fatal("applying remote state must not mark dirty")
	}
}

func TestPullSameSavedAtAppliesOnce(t *testing.T) {
	tr := newFakeTransport()
	tr.fetchFn = func(ctx context.Context) (*snapshot.Envelope, error) {
		return remoteEnvelope(t, "2025-01-02T00:00:00.000Z", 4), nil
	}
	applies := 0
	r, store := setupReconciler(t, tr, Options{Hooks: Hooks{OnStateApplied: func(model.AppState) { applies++ }}})
	setSecret(t, store)
	ctx := context.Background()

	first, err := r.PullIfNewer(ctx)
	if err != nil || !first {
		t.Fatalf("first pull should apply, ok=%v err=%v", first, err)
	}
	second, err := r.PullIfNewer(ctx)
	if err != nil || second {
		t.Fatalf("second pull of same savedAt should be a no-op, ok=%v err=%v", second, err)
	}
	if applies != 1 {
		t.Fatalf("expected one apply, got %d", applies)
	}
}

func TestPullOlderRemoteIsNoop(t *testing.T) {
	tr := newFakeTransport()
	tr.fetchFn = func(ctx context.Context) (*snapshot.Envelope, error) {
		return remoteEnvelope(t, "2025-01-01T00:00:00Z", 0), nil
	}
	r, store := setupReconciler(t, tr, Options{})
	setSecret(t, store)
	ctx := context.Background()
	if err := store.SetLastPulledAt(ctx, time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("seed lastPulledAt: %v", err)
	}
	if ok, err := r.PullIfNewer(ctx); ok || err != nil {
		t.Fatalf("older remote should be ignored, ok=%v err=%v", ok, err)
	}
	if mood, _ := store.Mood(ctx); mood != model.DefaultMood {
		t.Fatalf("local state should be untouched, got mood %d", mood)
	}
}

func TestLocalEditsWinOverNewerRemote(t *testing.T) {
	tr := newFakeTransport()
	tr.fetchFn = func(ctx context.Context) (*snapshot.Envelope, error) {
		return remoteEnvelope(t, "2030-01-01T00:00:00Z", 0), nil
	}
	r, store := setupReconciler(t, tr, Options{})
	setSecret(t, store)
	ctx := context.Background()

	if _, err := r.Edit(ctx, setMood(4)); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if ok, err := r.PullIfNewer(ctx); ok || err != nil {
		t.Fatalf("dirty local state must block the pull, ok=%v err=%v", ok, err)
	}
	if mood, _ := store.Mood(ctx); mood != 4 {
		t.Fatalf("local edit lost, mood=%d", mood)
	}
	if _, has, _ := store.LastPulledAt(ctx); has {
		t.Fatal("skipped pull must not advance lastPulledAt")
	}
}

func TestPullNullRemoteIsNoop(t *testing.T) {
	tr := newFakeTransport()
	r, store := setupReconciler(t, tr, Options{})
	setSecret(t, store)
	if ok, err := r.PullIfNewer(context.Background()); ok || err != nil {
		t.Fatalf("null remote should be a no-op, ok=%v err=%v", ok, err)
	}
	if tr.fetchCount() != 1 {
		t.Fatalf("expected one fetch, got %d", tr.fetchCount())
	}
}

func TestPullFetchTimeoutLeavesLocalState(t *testing.T) {
	tr := newFakeTransport()
	tr.fetchFn = func(ctx context.Context) (*snapshot.Envelope, error) {
		return nil, transport.ErrFetchTimeout
	}
	r, store := setupReconciler(t, tr, Options{})
	setSecret(t, store)
	ctx := context.Background()
	if err := store.SetMood(ctx, 1); err != nil {
		t.Fatalf("seed mood: %v", err)
	}

	ok, err := r.PullIfNewer(ctx)
	if ok || !errors.Is(err, transport.ErrFetchTimeout) {
		t.Fatalf("expected timeout reported without applying, ok=%v err=%v", ok, err)
	}
	if mood, _ := store.Mood(ctx); mood != 1 {
		t.Fatalf("local state changed after failed pull: mood=%d", mood)
	}
	if got := r.State(); got != Idle {
		t.Fatalf("expected idle, got %s", got)
	}
}

func TestConcurrentPullIsDropped(t *testing.T) {
	tr := newFakeTransport()
	entered := make(chan struct{})
	release := make(chan struct{})
	tr.fetchFn = func(ctx context.Context) (*snapshot.Envelope, error) {
		close(entered)
		<-release
		return remoteEnvelope(t, "2025-01-02T00:00:00Z", 3), nil
	}
	r, store := setupReconciler(t, tr, Options{})
	setSecret(t, store)
	ctx := context.Background()

	done := make(chan bool, 1)
	go func() {
		ok, _ := r.PullIfNewer(ctx)
		done <- ok
	}()
	<-entered
	if ok, err := r.PullIfNewer(ctx); ok || err != nil {
		t.Fatalf("second pull should be dropped, ok=%v err=%v", ok, err)
	}
	close(release)
	if !<-done {
		t.Fatal("first pull should apply")
	}
	if tr.fetchCount() != 1 {
		t.Fatalf("dropped pull must not fetch, fetches=%d", tr.fetchCount())
	}
}

func TestInitialSyncPullsOnce(t *testing.T) {
	tr := newFakeTransport()
	pulled := make(chan struct{}, 4)
	tr.fetchFn = func(ctx context.Context) (*snapshot.Envelope, error) {
		pulled <- struct{}{}
		return nil, nil
	}
	r, store := setupReconciler(t, tr, Options{InitialPullDelay: 20 * time.Millisecond})
	setSecret(t, store)
	r.Start()

	r.TriggerInitialSync()
	r.TriggerInitialSync()
	select {
	case <-pulled:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial pull")
	}
	time.Sleep(100 * time.Millisecond)
	if tr.fetchCount() != 1 {
		t.Fatalf("expected a single startup pull, got %d", tr.fetchCount())
	}
}

func TestConfigureSecretSchedulesPull(t *testing.T) {
	tr := newFakeTransport()
	pulled := make(chan struct{}, 1)
	tr.fetchFn = func(ctx context.Context) (*snapshot.Envelope, error) {
		pulled <- struct{}{}
		return nil, nil
	}
	r, store := setupReconciler(t, tr, Options{InitialPullDelay: 20 * time.Millisecond})
	r.Start()

	ctx := context.Background()
	if err := r.ConfigureSecret(ctx, "  new secret  "); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if secret, _ := store.Secret(ctx); secret != "new secret" {
		t.Fatalf("expected trimmed secret stored, got %q", secret)
	}
	select {
	case <-pulled:
	case <-time.After(time.Second):
		t.Fatal("expected pull after secret configured")
	}

	if err := r.ConfigureSecret(ctx, ""); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if secret, _ := store.Secret(ctx); secret != "" {
		t.Fatalf("expected secret cleared, got %q", secret)
	}
}

func TestLoadResetsDailyOncePerDay(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.Local)
	r, store := setupReconciler(t, newFakeTransport(), Options{Now: func() time.Time { return now }})
	ctx := context.Background()

	st, err := r.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := r.Edit(ctx, func(s *model.AppState) error { return s.ToggleDaily(st.DailyItems[0].ID) }); err != nil {
		t.Fatalf("toggle daily: %v", err)
	}
	if err := store.ClearLocalDirtyAt(ctx); err != nil {
		t.Fatalf("clear dirty: %v", err)
	}

	st, _ = r.Load(ctx)
	if !st.DailyItems[0].Done {
		t.Fatal("same-day load must keep daily done flags")
	}
	now = now.Add(24 * time.Hour)
	st, _ = r.Load(ctx)
	if st.DailyItems[0].Done {
		t.Fatal("next-day load should clear daily done flags")
	}
	if dirty, _ := r.Dirty(ctx); dirty {
		t.Fatal("daily reset must not mark dirty")
	}
}

func TestStatusReportsBookkeeping(t *testing.T) {
	tr := newFakeTransport()
	r, store := setupReconciler(t, tr, Options{})
	ctx := context.Background()

	st, err := r.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.SecretConfigured || st.Dirty || !st.LastSaveAt.IsZero() || st.State != Idle {
		t.Fatalf("unexpected empty status: %+v", st)
	}

	setSecret(t, store)
	if _, err := r.Edit(ctx, setMood(0)); err != nil {
		t.Fatalf("edit: %v", err)
	}
	st, _ = r.Status(ctx)
	if !st.SecretConfigured || !st.Dirty || st.DirtyAt.IsZero() || st.State != PendingSave {
		t.Fatalf("expected dirty pending status, got %+v", st)
	}
	if err := r.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	st, _ = r.Status(ctx)
	if st.Dirty || st.LastSaveAt.IsZero() || st.State != Idle {
		t.Fatalf("expected clean status after flush, got %+v", st)
	}
}

func TestSaveDuringFetchBlocksOlderRemote(t *testing.T) {
	tr := newFakeTransport()
	entered := make(chan struct{})
	release := make(chan struct{})
	tr.fetchFn = func(ctx context.Context) (*snapshot.Envelope, error) {
		close(entered)
		<-release
		return remoteEnvelope(t, "2025-01-02T00:00:00Z", 1), nil
	}
	r, store := setupReconciler(t, tr, Options{})
	setSecret(t, store)
	ctx := context.Background()
	if err := store.SetLastPulledAt(ctx, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("seed last pulled: %v", err)
	}
	if _, err := r.Edit(ctx, setMood(4)); err != nil {
		t.Fatalf("edit: %v", err)
	}

	done := make(chan bool, 1)
	go func() {
		ok, _ := r.PullIfNewer(ctx)
		done <- ok
	}()
	<-entered
	if err := r.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if dirty, _ := r.Dirty(ctx); dirty {
		t.Fatal("flush should have cleared dirty")
	}
	close(release)

	if <-done {
		t.Fatal("snapshot fetched before the save must not be applied")
	}
	if mood, _ := store.Mood(ctx); mood != 4 {
		t.Fatalf("saved local edit overwritten: mood=%d", mood)
	}
	last, _, _ := store.LastPulledAt(ctx)
	if !last.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("lastPulledAt moved to %s", last)
	}
}

func TestEditAfterMidnightResetsDailyFirst(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 50, 0, 0, time.Local)
	r, store := setupReconciler(t, newFakeTransport(), Options{Now: func() time.Time { return now }})
	ctx := context.Background()

	st, err := r.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	first := st.DailyItems[0].ID
	if _, err := r.Edit(ctx, func(s *model.AppState) error { return s.ToggleDaily(first) }); err != nil {
		t.Fatalf("toggle daily: %v", err)
	}

	now = now.Add(20 * time.Minute)
	st, err = r.Edit(ctx, setMood(3))
	if err != nil {
		t.Fatalf("edit after midnight: %v", err)
	}
	if st.DailyItems[0].Done {
		t.Fatal("edit after midnight kept yesterday's done flag")
	}
	stored, _ := store.Daily(ctx)
	if stored[0].Done {
		t.Fatal("stale done flag persisted")
	}
	if day, _ := store.DailyLastReset(ctx); day != model.DayKey(now) {
		t.Fatalf("expected last reset %s, got %s", model.DayKey(now), day)
	}
}

func TestScheduledPullFetchFailureIsNotReported(t *testing.T) {
	tr := newFakeTransport()
	fetched := make(chan struct{}, 1)
	tr.fetchFn = func(ctx context.Context) (*snapshot.Envelope, error) {
		fetched <- struct{}{}
		return nil, transport.ErrFetchError
	}
	var mu sync.Mutex
	var reported []string
	r, store := setupReconciler(t, tr, Options{
		InitialPullDelay: 10 * time.Millisecond,
		Hooks: Hooks{OnError: func(op string, err error) {
			mu.Lock()
			reported = append(reported, op)
			mu.Unlock()
		}},
	})
	setSecret(t, store)
	r.Start()
	r.TriggerInitialSync()
	select {
	case <-fetched:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for scheduled pull")
	}
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(reported) != 0 {
		t.Fatalf("scheduled pull failure reached OnError: %v", reported)
	}

	if _, err := r.PullIfNewer(context.Background()); !errors.Is(err, transport.ErrFetchError) {
		t.Fatalf("manual pull should report fetch error, got %v", err)
	}
	if len(reported) != 1 || reported[0] != "pull" {
		t.Fatalf("manual pull failure should reach OnError once, got %v", reported)
	}
}

func TestDroppedSaveJobIsRearmed(t *testing.T) {
	tr := newFakeTransport()
	r, store := setupReconciler(t, tr, Options{Debounce: 30 * time.Millisecond})
	setSecret(t, store)
	ctx := context.Background()
	if _, err := r.Edit(ctx, setMood(3)); err != nil {
		t.Fatalf("edit: %v", err)
	}

	armed := r.armedSeq.Load()
	r.handleDropped(scheduler.Job{Key: jobSave, Seq: armed})
	rearmed := r.armedSeq.Load()
	if rearmed == 0 || rearmed == armed {
		t.Fatalf("expected a fresh save armed, before=%d after=%d", armed, rearmed)
	}
	r.handleDropped(scheduler.Job{Key: jobSave, Seq: armed})
	if r.armedSeq.Load() != rearmed {
		t.Fatal("a stale dropped job must not re-arm")
	}

	r.Start()
	select {
	case <-tr.sent:
	case <-time.After(time.Second):
		t.Fatal("re-armed save never ran")
	}
	deadline := time.Now().Add(time.Second)
	for r.State() != Idle {
		if time.Now().After(deadline) {
			t.Fatalf("expected idle after save, got %s", r.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
