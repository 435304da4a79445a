package update

import (
	"time"

	"github.com/fuusan091240-hub/flow-schedule/internal/model"
	"github.com/fuusan091240-hub/flow-schedule/internal/reconciler"
	"github.com/fuusan091240-hub/flow-schedule/internal/views"
)

func (m Model) tasksPanelData(now time.Time) views.TasksPanelData {
	data := views.TasksPanelData{
		Date:     model.DayKey(now),
		ViewMode: string(m.State.ViewMode),
		Mood:     m.State.MoodLevel,
		Capacity: m.State.Capacity(),
		Used:     m.State.UsedEnergy(),
		Cursor:   m.TaskCursor,
		Focused:  m.Focus == SectionTasks,
	}
	for _, t := range m.State.VisibleTasks() {
		data.Items = append(data.Items, views.TaskItemData{
			Title:    t.Title,
			Deadline: t.Deadline,
			Energy:   t.EnergyCost,
			Done:     t.Done,
			CanDo:    m.State.CanDo(t),
		})
	}
	return data
}

func (m Model) dailyPanelData() views.DailyPanelData {
	data := views.DailyPanelData{Cursor: m.DailyCursor, Focused: m.Focus == SectionDaily}
	for _, d := range m.State.DailyItems {
		data.Items = append(data.Items, views.DailyItemData{Title: d.Title, Done: d.Done})
	}
	return data
}

func (m Model) manuscriptPanelData(now time.Time) views.ManuscriptPanelData {
	g := m.State.Manuscript
	ratio := 0.0
	if g.TotalUnits > 0 {
		ratio = float64(g.ProgressUnits) / float64(g.TotalUnits)
	}
	return views.ManuscriptPanelData{
		Title:        g.Title,
		Deadline:     g.DeadlineDate,
		Total:        g.TotalUnits,
		Progress:     g.ProgressUnits,
		Remaining:    g.Remaining(),
		DaysLeft:     g.DaysLeft(now),
		PerDay:       g.UnitsPerDay(now),
		ProgressView: m.progressBar.ViewAs(ratio),
		Focused:      m.Focus == SectionManuscript,
	}
}

func (m Model) syncPanelData(now time.Time) views.SyncPanelData {
	data := views.SyncPanelData{
		State:            m.Sync.State.String(),
		SecretConfigured: m.Sync.SecretConfigured,
		Dirty:            m.Sync.Dirty,
		LastSaveAt:       m.Sync.LastSaveAt,
		LastPulledAt:     m.Sync.LastPulledAt,
		Now:              now,
	}
	if m.Sync.State == reconciler.Saving || m.Sync.State == reconciler.Restoring {
		data.Spinner = m.syncSpinner.View()
	}
	return data
}
