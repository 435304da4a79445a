package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/fuusan091240-hub/flow-schedule/internal/model"
)

func setupStore(t *testing.T, driver string) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "flow-test.db")
	store, err := Open(driver, dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	store.SetClock(func() time.Time { return time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC) })
	return store
}

func parseRFC3339(t *testing.T, value string) time.Time {
	t.Helper()
	out, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return out
}

func TestLoadStateDefaultsOnEmptyStore(t *testing.T) {
	store := setupStore(t, DriverCGO)
	st, err := store.LoadState(context.Background())
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if st.MoodLevel != model.DefaultMood || st.ViewMode != model.ViewToday {
		t.Fatalf("unexpected defaults: %#v", st)
	}
	if len(st.Tasks) != 0 || len(st.DailyItems) != 2 {
		t.Fatalf("unexpected default lists: %#v", st)
	}
	if st.Manuscript.TotalUnits != model.DefaultManuscriptTotal || st.Manuscript.DeadlineDate == "" {
		t.Fatalf("unexpected default manuscript: %#v", st.Manuscript)
	}
}

func TestSaveAndLoadStateRoundTrip(t *testing.T) {
	for _, driver := range []string{DriverCGO, DriverPureGo} {
		t.Run(driver, func(t *testing.T) {
			store := setupStore(t, driver)
			ctx := context.Background()
			created := parseRFC3339(t, "2026-02-09T12:00:00Z")

			in := model.AppState{
				MoodLevel: 4,
				Tasks: []model.Task{
					{ID: "t1", Title: "Edit chapter", Deadline: "2026-02-11", EnergyCost: 3, CreatedAt: created},
					{ID: "t2", Title: "Email editor", EnergyCost: 1, Done: true, CreatedAt: created},
				},
				DailyItems: []model.DailyItem{{ID: "d1", Title: "Walk", Done: true}},
				Manuscript: model.ManuscriptGoal{Title: "Novel", DeadlineDate: "2026-04-28", TotalUnits: 60, ProgressUnits: 12},
				ViewMode:   model.ViewAll,
			}
			if err := store.SaveState(ctx, in); err != nil {
				t.Fatalf("save state: %v", err)
			}
			got, err := store.LoadState(ctx)
			if err != nil {
				t.Fatalf("load state: %v", err)
			}
			if got.MoodLevel != 4 || got.ViewMode != model.ViewAll || len(got.Tasks) != 2 {
				t.Fatalf("unexpected state: %#v", got)
			}
			if got.Tasks[0].Title != "Edit chapter" || !got.Tasks[0].CreatedAt.Equal(created) || !got.Tasks[1].Done {
				t.Fatalf("unexpected tasks: %#v", got.Tasks)
			}
			if got.Manuscript != in.Manuscript {
				t.Fatalf("unexpected manuscript: %#v", got.Manuscript)
			}
			if len(got.DailyItems) != 1 || !got.DailyItems[0].Done {
				t.Fatalf("unexpected daily: %#v", got.DailyItems)
			}
		})
	}
}

func TestMalformedValuesReadAsDefaults(t *testing.T) {
	store := setupStore(t, DriverCGO)
	ctx := context.Background()
	for key, value := range map[string]string{
		KeyMood:       "eleven",
		KeyTasks:      "{not json",
		KeyManuscript: `{"title": 5}`,
		KeyViewMode:   "weekly",
	} {
		if err := store.backend.Set(ctx, key, value); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}
	st, err := store.LoadState(ctx)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if st.MoodLevel != model.DefaultMood || len(st.Tasks) != 0 || st.ViewMode != model.ViewToday {
		t.Fatalf("unexpected fallback state: %#v", st)
	}
	if st.Manuscript.Title != model.DefaultManuscriptTitle {
		t.Fatalf("unexpected fallback manuscript: %#v", st.Manuscript)
	}
}

func TestSetMoodValidatesRange(t *testing.T) {
	store := setupStore(t, DriverCGO)
	if err := store.SetMood(context.Background(), 9); !errors.Is(err, model.ErrInvalidMood) {
		t.Fatalf("expected ErrInvalidMood, got %v", err)
	}
}

func TestResetDailyIfNeededRunsOncePerDay(t *testing.T) {
	store := setupStore(t, DriverCGO)
	ctx := context.Background()
	if err := store.SetDaily(ctx, []model.DailyItem{{ID: "d1", Title: "Walk", Done: true}}); err != nil {
		t.Fatalf("set daily: %v", err)
	}

	reset, err := store.ResetDailyIfNeeded(ctx, "2026-02-09")
	if err != nil || !reset {
		t.Fatalf("expected first reset, got reset=%v err=%v", reset, err)
	}
	items, _ := store.Daily(ctx)
	if items[0].Done {
		t.Fatal("expected done flag cleared")
	}

	items[0].Done = true
	if err := store.SetDaily(ctx, items); err != nil {
		t.Fatalf("set daily: %v", err)
	}
	reset, err = store.ResetDailyIfNeeded(ctx, "2026-02-09")
	if err != nil || reset {
		t.Fatalf("expected no second reset on same day, got reset=%v err=%v", reset, err)
	}
	items, _ = store.Daily(ctx)
	if !items[0].Done {
		t.Fatal("same-day check should keep done flag")
	}
}

func TestSyncBookkeeping(t *testing.T) {
	store := setupStore(t, DriverCGO)
	ctx := context.Background()

	if _, ok, err := store.LocalDirtyAt(ctx); err != nil || ok {
		t.Fatalf("expected no dirty marker, ok=%v err=%v", ok, err)
	}
	dirty := time.Date(2026, 2, 9, 12, 0, 0, 123456789, time.UTC)
	if err := store.SetLocalDirtyAt(ctx, dirty); err != nil {
		t.Fatalf("set dirty: %v", err)
	}
	got, ok, err := store.LocalDirtyAt(ctx)
	if err != nil || !ok || !got.Equal(dirty) {
		t.Fatalf("unexpected dirty marker: %v ok=%v err=%v", got, ok, err)
	}
	if err := store.ClearLocalDirtyAt(ctx); err != nil {
		t.Fatalf("clear dirty: %v", err)
	}
	if _, ok, _ := store.LocalDirtyAt(ctx); ok {
		t.Fatal("expected dirty marker cleared")
	}

	pulled := parseRFC3339(t, "2025-01-02T00:00:00Z")
	if err := store.SetLastPulledAt(ctx, pulled); err != nil {
		t.Fatalf("set pulled: %v", err)
	}
	if got, ok, _ := store.LastPulledAt(ctx); !ok || !got.Equal(pulled) {
		t.Fatalf("unexpected lastPulledAt: %v", got)
	}
}

func TestSecretClearDeletesKey(t *testing.T) {
	store := setupStore(t, DriverCGO)
	ctx := context.Background()
	if err := store.SetSecret(ctx, "open sesame"); err != nil {
		t.Fatalf("set secret: %v", err)
	}
	if got, _ := store.Secret(ctx); got != "open sesame" {
		t.Fatalf("unexpected secret: %q", got)
	}
	if err := store.SetSecret(ctx, ""); err != nil {
		t.Fatalf("clear secret: %v", err)
	}
	if got, _ := store.Secret(ctx); got != "" {
		t.Fatalf("expected cleared secret, got %q", got)
	}
}
