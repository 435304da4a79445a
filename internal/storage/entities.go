package storage

import (
	"time"

	"github.com/fuusan091240-hub/flow-schedule/internal/model"
)

type taskRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Deadline  string `json:"deadline"`
	Energy    int    `json:"energy"`
	Done      bool   `json:"done"`
	CreatedAt string `json:"createdAt"`
}

type dailyRecord struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

type manuscriptRecord struct {
	Title    string `json:"title"`
	Deadline string `json:"deadline"`
	Total    int    `json:"total"`
	Progress int    `json:"progress"`
}

func toTaskRecords(in []model.Task) []taskRecord {
	out := make([]taskRecord, 0, len(in))
	for _, t := range in {
		out = append(out, taskRecord{
			ID:        t.ID,
			Title:     t.Title,
			Deadline:  t.Deadline,
			Energy:    t.EnergyCost,
			Done:      t.Done,
			CreatedAt: t.CreatedAt.UTC().Format(sqliteTimeLayout),
		})
	}
	return out
}

func fromTaskRecords(in []taskRecord) []model.Task {
	out := make([]model.Task, 0, len(in))
	for _, r := range in {
		created, err := time.Parse(sqliteTimeLayout, r.CreatedAt)
		if err != nil {
			created = time.Time{}
		}
		out = append(out, model.Task{
			ID:         r.ID,
			Title:      r.Title,
			Deadline:   r.Deadline,
			EnergyCost: model.ClampEnergy(r.Energy),
			Done:       r.Done,
			CreatedAt:  created,
		})
	}
	return out
}

func toDailyRecords(in []model.DailyItem) []dailyRecord {
	out := make([]dailyRecord, 0, len(in))
	for _, d := range in {
		out = append(out, dailyRecord{ID: d.ID, Title: d.Title, Done: d.Done})
	}
	return out
}

func fromDailyRecords(in []dailyRecord) []model.DailyItem {
	out := make([]model.DailyItem, 0, len(in))
	for _, r := range in {
		out = append(out, model.DailyItem{ID: r.ID, Title: r.Title, Done: r.Done})
	}
	return out
}

func toManuscriptRecord(g model.ManuscriptGoal) manuscriptRecord {
	return manuscriptRecord{
		Title:    g.Title,
		Deadline: g.DeadlineDate,
		Total:    g.TotalUnits,
		Progress: g.ProgressUnits,
	}
}

func fromManuscriptRecord(r manuscriptRecord) model.ManuscriptGoal {
	return model.ManuscriptGoal{
		Title:         r.Title,
		DeadlineDate:  r.Deadline,
		TotalUnits:    r.Total,
		ProgressUnits: r.Progress,
	}.Clamp()
}
