package commands

import (
	"fmt"
	"time"

	"github.com/fuusan091240-hub/flow-schedule/internal/model"
)

type Result struct {
	Message string
}

type Handlers struct {
	Add        func(TaskArgs) (Result, error)
	Edit       func(TaskArgs) (Result, error)
	Daily      func(DailyArgs) (Result, error)
	Mood       func(MoodArgs) (Result, error)
	View       func(ViewArgs) (Result, error)
	Manuscript func(ManuscriptArgs) (Result, error)
	Secret     func(SecretArgs) (Result, error)
	Push       func() (Result, error)
	Pull       func() (Result, error)
}

func Execute(cmd Command, handlers Handlers) (Result, error) {
	switch cmd.Type {
	case TypeAdd:
		if handlers.Add == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Add(*cmd.Task)
	case TypeEdit:
		if handlers.Edit == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Edit(*cmd.Task)
	case TypeDaily:
		if handlers.Daily == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Daily(*cmd.Daily)
	case TypeMood:
		if handlers.Mood == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Mood(*cmd.Mood)
	case TypeView:
		if handlers.View == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.View(*cmd.View)
	case TypeManuscript:
		if handlers.Manuscript == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Manuscript(*cmd.Manuscript)
	case TypeSecret:
		if handlers.Secret == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Secret(*cmd.Secret)
	case TypePush:
		if handlers.Push == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Push()
	case TypePull:
		if handlers.Pull == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Pull()
	default:
		return Result{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command type: %s", cmd.Type)}
	}
}

func missing(t Type) error {
	return &CommandError{Code: ErrCodeHandlerMissing, Message: fmt.Sprintf("%s handler not configured", t)}
}

// ApplyEdit merges the given fields into task id, keeping what was not given.
func ApplyEdit(st *model.AppState, id string, a TaskArgs) error {
	cur, ok := st.FindTask(id)
	if !ok {
		return fmt.Errorf("%w: task %s", model.ErrNotFound, id)
	}
	title, deadline, energy := cur.Title, cur.Deadline, cur.EnergyCost
	if a.Title != "" {
		title = a.Title
	}
	if a.HasDeadline {
		deadline = a.Deadline
	}
	if a.HasEnergy {
		energy = a.Energy
	}
	return st.EditTask(id, title, deadline, energy)
}

// ApplyManuscript steps progress or overwrites the given goal fields.
func ApplyManuscript(st *model.AppState, a ManuscriptArgs, now time.Time) error {
	if a.Delta != 0 {
		st.StepManuscript(a.Delta)
		return nil
	}
	cur := st.Manuscript
	title, deadline, total, progress := cur.Title, cur.DeadlineDate, cur.TotalUnits, cur.ProgressUnits
	if a.Title != "" {
		title = a.Title
	}
	if a.Deadline != "" {
		deadline = a.Deadline
	}
	if a.HasTotal {
		total = a.Total
	}
	if a.HasProgress {
		progress = a.Progress
	}
	return st.SetManuscript(title, deadline, total, progress, now)
}
