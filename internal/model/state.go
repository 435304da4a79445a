package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

type ViewMode string

const (
	ViewToday ViewMode = "today"
	ViewAll   ViewMode = "all"
)

func (v ViewMode) IsValid() bool {
	switch v {
	case ViewToday, ViewAll:
		return true
	default:
		return false
	}
}

const (
	MinMood     = 0
	MaxMood     = 5
	DefaultMood = 2

	DefaultManuscriptTitle = "Manuscript"
	DefaultManuscriptTotal = 60
)

// capacityByMood maps a mood level to the energy budget available that day.
var capacityByMood = map[int]int{0: 2, 1: 3, 2: 5, 3: 3, 4: 6, 5: 5}

// Capacity returns the energy budget for a mood level.
func Capacity(mood int) int {
	return capacityByMood[mood]
}

type ManuscriptGoal struct {
	Title         string
	DeadlineDate  string
	TotalUnits    int
	ProgressUnits int
}

// Clamp enforces TotalUnits >= 1 and 0 <= ProgressUnits <= TotalUnits.
func (g ManuscriptGoal) Clamp() ManuscriptGoal {
	if g.TotalUnits < 1 {
		g.TotalUnits = 1
	}
	g.ProgressUnits = clamp(g.ProgressUnits, 0, g.TotalUnits)
	return g
}

func (g ManuscriptGoal) Remaining() int {
	return g.TotalUnits - g.ProgressUnits
}

// DaysLeft counts whole days until the deadline, never less than 1.
func (g ManuscriptGoal) DaysLeft(now time.Time) int {
	deadline, err := time.ParseInLocation(DateLayout, g.DeadlineDate, now.Location())
	if err != nil {
		return 1
	}
	days := int(math.Ceil(deadline.Sub(now).Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}

// UnitsPerDay is the pace needed to finish by the deadline.
func (g ManuscriptGoal) UnitsPerDay(now time.Time) float64 {
	return float64(g.Remaining()) / float64(g.DaysLeft(now))
}

type AppState struct {
	MoodLevel  int
	Tasks      []Task
	DailyItems []DailyItem
	Manuscript ManuscriptGoal
	ViewMode   ViewMode
}

// DefaultState is the state of a store that has never been written.
func DefaultState(now time.Time) AppState {
	return AppState{
		MoodLevel: DefaultMood,
		Tasks:     []Task{},
		DailyItems: []DailyItem{
			{ID: "d1", Title: "5-minute reset"},
			{ID: "d2", Title: "Move a little"},
		},
		Manuscript: DefaultManuscript(now),
		ViewMode:   ViewToday,
	}
}

func DefaultManuscript(now time.Time) ManuscriptGoal {
	return ManuscriptGoal{
		Title:        DefaultManuscriptTitle,
		DeadlineDate: DayKey(now),
		TotalUnits:   DefaultManuscriptTotal,
	}
}

// Clone returns a deep copy so callers can mutate without aliasing the original slices.
func (s AppState) Clone() AppState {
	out := s
	out.Tasks = append([]Task(nil), s.Tasks...)
	out.DailyItems = append([]DailyItem(nil), s.DailyItems...)
	if out.Tasks == nil {
		out.Tasks = []Task{}
	}
	if out.DailyItems == nil {
		out.DailyItems = []DailyItem{}
	}
	return out
}

func (s AppState) Capacity() int {
	return Capacity(s.MoodLevel)
}

// UsedEnergy sums the energy cost of completed tasks.
func (s AppState) UsedEnergy() int {
	used := 0
	for _, t := range s.Tasks {
		if t.Done {
			used += t.EnergyCost
		}
	}
	return used
}

func (s AppState) OverCapacity() bool {
	return s.UsedEnergy() > s.Capacity()
}

func (s AppState) CanDo(t Task) bool {
	return t.EnergyCost <= s.Capacity()
}

// VisibleTasks orders tasks by deadline (no deadline last) and hides done
// tasks in the today view.
func (s AppState) VisibleTasks() []Task {
	out := make([]Task, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		if s.ViewMode == ViewToday && t.Done {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.HasDeadline() != b.HasDeadline() {
			return a.HasDeadline()
		}
		return a.Deadline < b.Deadline
	})
	return out
}

func (s *AppState) SetMood(level int) error {
	if level < MinMood || level > MaxMood {
		return fmt.Errorf("%w: %d", ErrInvalidMood, level)
	}
	s.MoodLevel = level
	return nil
}

func (s *AppState) SetViewMode(v ViewMode) error {
	if !v.IsValid() {
		return fmt.Errorf("model: invalid view mode %q", v)
	}
	s.ViewMode = v
	return nil
}

func (s *AppState) AddTask(id, title, deadline string, energy int, now time.Time) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, ErrInvalidTitle
	}
	if energy < MinEnergy || energy > MaxEnergy {
		return Task{}, fmt.Errorf("%w: %d", ErrInvalidEnergy, energy)
	}
	day, err := NormalizeDate(deadline)
	if err != nil {
		return Task{}, err
	}
	t := Task{
		ID:         id,
		Title:      title,
		Deadline:   day,
		EnergyCost: energy,
		CreatedAt:  now.UTC(),
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	s.Tasks = append(s.Tasks, t)
	return t, nil
}

// EditTask replaces title, deadline and energy; an empty deadline clears it.
func (s *AppState) EditTask(id, title, deadline string, energy int) error {
	idx := s.taskIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrInvalidTitle
	}
	if energy < MinEnergy || energy > MaxEnergy {
		return fmt.Errorf("%w: %d", ErrInvalidEnergy, energy)
	}
	day, err := NormalizeDate(deadline)
	if err != nil {
		return err
	}
	s.Tasks[idx].Title = title
	s.Tasks[idx].Deadline = day
	s.Tasks[idx].EnergyCost = energy
	return nil
}

func (s *AppState) SetTaskDone(id string, done bool) error {
	idx := s.taskIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	s.Tasks[idx].Done = done
	return nil
}

func (s *AppState) ToggleTask(id string) error {
	idx := s.taskIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	s.Tasks[idx].Done = !s.Tasks[idx].Done
	return nil
}

func (s *AppState) DeleteTask(id string) error {
	idx := s.taskIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	s.Tasks = append(s.Tasks[:idx], s.Tasks[idx+1:]...)
	return nil
}

func (s *AppState) FindTask(id string) (Task, bool) {
	idx := s.taskIndex(id)
	if idx < 0 {
		return Task{}, false
	}
	return s.Tasks[idx], true
}

func (s *AppState) AddDaily(id, title string) (DailyItem, error) {
	item := DailyItem{ID: id, Title: strings.TrimSpace(title)}
	if err := item.Validate(); err != nil {
		return DailyItem{}, err
	}
	s.DailyItems = append(s.DailyItems, item)
	return item, nil
}

func (s *AppState) ToggleDaily(id string) error {
	idx := s.dailyIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: daily %s", ErrNotFound, id)
	}
	s.DailyItems[idx].Done = !s.DailyItems[idx].Done
	return nil
}

func (s *AppState) DeleteDaily(id string) error {
	idx := s.dailyIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: daily %s", ErrNotFound, id)
	}
	s.DailyItems = append(s.DailyItems[:idx], s.DailyItems[idx+1:]...)
	return nil
}

// ResetDaily clears every done flag.
func (s *AppState) ResetDaily() {
	for i := range s.DailyItems {
		s.DailyItems[i].Done = false
	}
}

// StepManuscript moves progress by delta, clamped into [0, total].
func (s *AppState) StepManuscript(delta int) {
	s.Manuscript.ProgressUnits += delta
	s.Manuscript = s.Manuscript.Clamp()
}

// SetManuscript replaces the goal. Progress is clamped rather than rejected.
func (s *AppState) SetManuscript(title, deadline string, total, progress int, now time.Time) error {
	if total < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidTotal, total)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultManuscriptTitle
	}
	day, err := NormalizeDate(deadline)
	if err != nil {
		return err
	}
	if day == "" {
		day = DayKey(now)
	}
	s.Manuscript = ManuscriptGoal{
		Title:         title,
		DeadlineDate:  day,
		TotalUnits:    total,
		ProgressUnits: progress,
	}.Clamp()
	return nil
}

func (s *AppState) taskIndex(id string) int {
	for i, t := range s.Tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *AppState) dailyIndex(id string) int {
	for i, d := range s.DailyItems {
		if d.ID == id {
			return i
		}
	}
	return -1
}
