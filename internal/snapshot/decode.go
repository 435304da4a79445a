package snapshot

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fuusan091240-hub/flow-schedule/internal/model"
)

const (
	defaultTaskTitle  = "Untitled task"
	defaultDailyTitle = "Untitled"
)

// Decode rebuilds an AppState from env. now supplies the default manuscript
// deadline and the fallback task creation time.
func Decode(env Envelope, now time.Time) model.AppState {
	fields, _ := decodeAny(env.Data).(map[string]any)
	fallbackCreated := now.UTC()
	if saved, ok := env.SavedTime(); ok {
		fallbackCreated = saved.UTC()
	}

	st := model.AppState{
		MoodLevel:  clampInt(asInt(fields["mood"], model.DefaultMood), model.MinMood, model.MaxMood),
		Tasks:      decodeTasks(fields["tasks"], fallbackCreated),
		DailyItems: decodeDaily(fields["daily"]),
		Manuscript: decodeManuscript(fields["manuscript"], now),
		ViewMode:   model.ViewToday,
	}
	if v := model.ViewMode(asString(fields["viewMode"], "")); v.IsValid() {
		st.ViewMode = v
	}
	return st
}

func decodeTasks(raw any, fallbackCreated time.Time) []model.Task {
	items, _ := raw.([]any)
	out := make([]model.Task, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		t := model.Task{
			ID:         asString(obj["id"], ""),
			Title:      strings.TrimSpace(asString(obj["title"], "")),
			EnergyCost: model.ClampEnergy(asInt(obj["energy"], 0)),
			Done:       asBool(obj["done"]),
			CreatedAt:  fallbackCreated,
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.Title == "" {
			t.Title = defaultTaskTitle
		}
		if day, err := model.NormalizeDate(asString(obj["deadline"], "")); err == nil {
			t.Deadline = day
		}
		if created, err := time.Parse(time.RFC3339Nano, asString(obj["createdAt"], "")); err == nil {
			t.CreatedAt = created.UTC()
		}
		out = append(out, t)
	}
	return out
}

func decodeDaily(raw any) []model.DailyItem {
	items, _ := raw.([]any)
	out := make([]model.DailyItem, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		d := model.DailyItem{
			ID:    asString(obj["id"], ""),
			Title: strings.TrimSpace(asString(obj["title"], "")),
			Done:  asBool(obj["done"]),
		}
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		if d.Title == "" {
			d.Title = defaultDailyTitle
		}
		out = append(out, d)
	}
	return out
}

func decodeManuscript(raw any, now time.Time) model.ManuscriptGoal {
	obj, _ := raw.(map[string]any)
	g := model.ManuscriptGoal{
		Title:         asString(obj["title"], model.DefaultManuscriptTitle),
		DeadlineDate:  model.DayKey(now),
		TotalUnits:    asInt(obj["total"], model.DefaultManuscriptTotal),
		ProgressUnits: asInt(obj["progress"], 0),
	}
	if strings.TrimSpace(g.Title) == "" {
		g.Title = model.DefaultManuscriptTitle
	}
	if day, err := model.NormalizeDate(asString(obj["deadline"], "")); err == nil && day != "" {
		g.DeadlineDate = day
	}
	return g.Clamp()
}

// decodeAny parses raw with UseNumber so integers survive unchanged. Any
// parse failure yields nil.
func decodeAny(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

func asString(v any, def string) string {
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// asInt accepts JSON numbers and numeric strings, truncating toward zero.
// Non-finite or non-numeric values yield def.
func asInt(v any, def int) int {
	var f float64
	switch typed := v.(type) {
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return def
		}
		f = parsed
	case float64:
		f = typed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return def
		}
		f = parsed
	default:
		return def
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return def
	}
	return int(math.Trunc(f))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
