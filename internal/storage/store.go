package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fuusan091240-hub/flow-schedule/internal/model"
)

// Persisted keys. The sync bookkeeping keys are written only by the reconciler.
const (
	KeySecret         = "secret"
	KeyMood           = "mood"
	KeyTasks          = "tasks"
	KeyDaily          = "daily"
	KeyDailyLastReset = "dailyLastReset"
	KeyManuscript     = "manuscript"
	KeyViewMode       = "viewMode"
	KeyLastSaveAt     = "lastSaveAt"
	KeyLastPulledAt   = "lastPulledAt"
	KeyLocalDirtyAt   = "localDirtyAt"
)

// Store is the typed view over a Backend. Malformed stored values read back
// as defaults; only substrate failures surface as errors.
type Store struct {
	backend Backend
	now     func() time.Time
}

func NewStore(backend Backend) (*Store, error) {
	if backend == nil {
		return nil, errors.New("storage: nil backend")
	}
	return &Store{backend: backend, now: time.Now}, nil
}

// Open opens the SQLite file at path with the given driver and wraps it in a Store.
func Open(driver, path string) (*Store, error) {
	backend, err := OpenSQLite(driver, path)
	if err != nil {
		return nil, err
	}
	return NewStore(backend)
}

func (s *Store) Close() error {
	return s.backend.Close()
}

// SetClock overrides the clock used for defaults such as the manuscript deadline.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Store) Secret(ctx context.Context) (string, error) {
	v, _, err := s.backend.Get(ctx, KeySecret)
	return v, err
}

func (s *Store) SetSecret(ctx context.Context, secret string) error {
	if secret == "" {
		return s.backend.Delete(ctx, KeySecret)
	}
	return s.backend.Set(ctx, KeySecret, secret)
}

func (s *Store) Mood(ctx context.Context) (int, error) {
	raw, ok, err := s.backend.Get(ctx, KeyMood)
	if err != nil || !ok {
		return model.DefaultMood, err
	}
	v, convErr := strconv.Atoi(strings.TrimSpace(raw))
	if convErr != nil || v < model.MinMood || v > model.MaxMood {
		return model.DefaultMood, nil
	}
	return v, nil
}

func (s *Store) SetMood(ctx context.Context, mood int) error {
	if mood < model.MinMood || mood > model.MaxMood {
		return fmt.Errorf("%w: %d", model.ErrInvalidMood, mood)
	}
	return s.backend.Set(ctx, KeyMood, strconv.Itoa(mood))
}

func (s *Store) Tasks(ctx context.Context) ([]model.Task, error) {
	var records []taskRecord
	ok, err := s.getJSON(ctx, KeyTasks, &records)
	if err != nil || !ok {
		return []model.Task{}, err
	}
	return fromTaskRecords(records), nil
}

func (s *Store) SetTasks(ctx context.Context, tasks []model.Task) error {
	return s.setJSON(ctx, KeyTasks, toTaskRecords(tasks))
}

func (s *Store) Daily(ctx context.Context) ([]model.DailyItem, error) {
	var records []dailyRecord
	ok, err := s.getJSON(ctx, KeyDaily, &records)
	if err != nil {
		return nil, err
	}
	if !ok {
		return model.DefaultState(s.now()).DailyItems, nil
	}
	return fromDailyRecords(records), nil
}

func (s *Store) SetDaily(ctx context.Context, items []model.DailyItem) error {
	return s.setJSON(ctx, KeyDaily, toDailyRecords(items))
}

func (s *Store) DailyLastReset(ctx context.Context) (string, error) {
	v, _, err := s.backend.Get(ctx, KeyDailyLastReset)
	return v, err
}

// ResetDailyIfNeeded clears every daily done flag once per calendar day.
// It reports whether a reset happened.
func (s *Store) ResetDailyIfNeeded(ctx context.Context, today string) (bool, error) {
	last, err := s.DailyLastReset(ctx)
	if err != nil {
		return false, err
	}
	if last == today {
		return false, nil
	}
	items, err := s.Daily(ctx)
	if err != nil {
		return false, err
	}
	st := model.AppState{DailyItems: items}
	st.ResetDaily()
	payload, err := json.Marshal(toDailyRecords(st.DailyItems))
	if err != nil {
		return false, err
	}
	if err := s.backend.SetMany(ctx, map[string]string{
		KeyDaily:          string(payload),
		KeyDailyLastReset: today,
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Manuscript(ctx context.Context) (model.ManuscriptGoal, error) {
	var record manuscriptRecord
	ok, err := s.getJSON(ctx, KeyManuscript, &record)
	if err != nil {
		return model.ManuscriptGoal{}, err
	}
	if !ok || record.Title == "" || record.Deadline == "" {
		return model.DefaultManuscript(s.now()), nil
	}
	return fromManuscriptRecord(record), nil
}

func (s *Store) SetManuscript(ctx context.Context, g model.ManuscriptGoal) error {
	return s.setJSON(ctx, KeyManuscript, toManuscriptRecord(g.Clamp()))
}

func (s *Store) ViewMode(ctx context.Context) (model.ViewMode, error) {
	raw, ok, err := s.backend.Get(ctx, KeyViewMode)
	if err != nil || !ok {
		return model.ViewToday, err
	}
	v := model.ViewMode(raw)
	if !v.IsValid() {
		return model.ViewToday, nil
	}
	return v, nil
}

func (s *Store) SetViewMode(ctx context.Context, v model.ViewMode) error {
	if !v.IsValid() {
		return fmt.Errorf("storage: invalid view mode %q", v)
	}
	return s.backend.Set(ctx, KeyViewMode, string(v))
}

// LoadState reads the full application state.
func (s *Store) LoadState(ctx context.Context) (model.AppState, error) {
	var (
		st  model.AppState
		err error
	)
	if st.MoodLevel, err = s.Mood(ctx); err != nil {
		return model.AppState{}, err
	}
	if st.Tasks, err = s.Tasks(ctx); err != nil {
		return model.AppState{}, err
	}
	if st.DailyItems, err = s.Daily(ctx); err != nil {
		return model.AppState{}, err
	}
	if st.Manuscript, err = s.Manuscript(ctx); err != nil {
		return model.AppState{}, err
	}
	if st.ViewMode, err = s.ViewMode(ctx); err != nil {
		return model.AppState{}, err
	}
	return st, nil
}

// SaveState replaces all application state keys in one write.
func (s *Store) SaveState(ctx context.Context, st model.AppState) error {
	if st.MoodLevel < model.MinMood || st.MoodLevel > model.MaxMood {
		return fmt.Errorf("%w: %d", model.ErrInvalidMood, st.MoodLevel)
	}
	view := st.ViewMode
	if !view.IsValid() {
		view = model.ViewToday
	}
	tasks, err := json.Marshal(toTaskRecords(st.Tasks))
	if err != nil {
		return err
	}
	daily, err := json.Marshal(toDailyRecords(st.DailyItems))
	if err != nil {
		return err
	}
	manuscript, err := json.Marshal(toManuscriptRecord(st.Manuscript.Clamp()))
	if err != nil {
		return err
	}
	return s.backend.SetMany(ctx, map[string]string{
		KeyMood:       strconv.Itoa(st.MoodLevel),
		KeyTasks:      string(tasks),
		KeyDaily:      string(daily),
		KeyManuscript: string(manuscript),
		KeyViewMode:   string(view),
	})
}

func (s *Store) LastSaveAt(ctx context.Context) (time.Time, bool, error) {
	return s.getTime(ctx, KeyLastSaveAt)
}

func (s *Store) SetLastSaveAt(ctx context.Context, t time.Time) error {
	return s.setTime(ctx, KeyLastSaveAt, t)
}

func (s *Store) LastPulledAt(ctx context.Context) (time.Time, bool, error) {
	return s.getTime(ctx, KeyLastPulledAt)
}

func (s *Store) SetLastPulledAt(ctx context.Context, t time.Time) error {
	return s.setTime(ctx, KeyLastPulledAt, t)
}

func (s *Store) LocalDirtyAt(ctx context.Context) (time.Time, bool, error) {
	return s.getTime(ctx, KeyLocalDirtyAt)
}

func (s *Store) SetLocalDirtyAt(ctx context.Context, t time.Time) error {
	return s.setTime(ctx, KeyLocalDirtyAt, t)
}

func (s *Store) ClearLocalDirtyAt(ctx context.Context) error {
	return s.backend.Delete(ctx, KeyLocalDirtyAt)
}

func (s *Store) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil || !ok || strings.TrimSpace(raw) == "" {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.backend.Set(ctx, key, string(payload))
}

func (s *Store) getTime(ctx context.Context, key string) (time.Time, bool, error) {
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, parseErr := time.Parse(sqliteTimeLayout, raw)
	if parseErr != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}

func (s *Store) setTime(ctx context.Context, key string, t time.Time) error {
	return s.backend.Set(ctx, key, t.UTC().Format(sqliteTimeLayout))
}
