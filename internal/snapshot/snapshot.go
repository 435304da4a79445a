// Package snapshot converts application state to and from the versioned
// envelope stored remotely.
//
// Decode is total: the remote store is not trusted to hold well-formed
// records, so every field is validated on its own and replaced by a safe
// default when missing or malformed. Decode never returns an error.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fuusan091240-hub/flow-schedule/internal/model"
)

const (
	Version = 1

	// SavedAtLayout matches the millisecond ISO-8601 form older clients wrote.
	SavedAtLayout = "2006-01-02T15:04:05.000Z07:00"
)

var ErrMalformedEnvelope = errors.New("snapshot: malformed envelope")

// Envelope is an immutable timestamped copy of the full state.
type Envelope struct {
	Version int             `json:"version"`
	SavedAt string          `json:"savedAt"`
	Data    json.RawMessage `json:"data"`
}

// SavedTime parses SavedAt. ok is false when it is missing or unparseable.
func (e Envelope) SavedTime() (time.Time, bool) {
	return ParseSavedAt(e.SavedAt)
}

func ParseSavedAt(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

type wireTask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Deadline  string `json:"deadline"`
	Energy    int    `json:"energy"`
	Done      bool   `json:"done"`
	CreatedAt string `json:"createdAt"`
}

type wireDaily struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

type wireManuscript struct {
	Title    string `json:"title"`
	Deadline string `json:"deadline"`
	Total    int    `json:"total"`
	Progress int    `json:"progress"`
}

type wireState struct {
	Mood       int            `json:"mood"`
	Tasks      []wireTask     `json:"tasks"`
	Daily      []wireDaily    `json:"daily"`
	Manuscript wireManuscript `json:"manuscript"`
	ViewMode   string         `json:"viewMode"`
}

// Encode stamps now as savedAt and copies the state verbatim.
func Encode(st model.AppState, now time.Time) (Envelope, error) {
	ws := wireState{
		Mood:     st.MoodLevel,
		Tasks:    make([]wireTask, 0, len(st.Tasks)),
		Daily:    make([]wireDaily, 0, len(st.DailyItems)),
		ViewMode: string(st.ViewMode),
		Manuscript: wireManuscript{
			Title:    st.Manuscript.Title,
			Deadline: st.Manuscript.DeadlineDate,
			Total:    st.Manuscript.TotalUnits,
			Progress: st.Manuscript.ProgressUnits,
		},
	}
	for _, t := range st.Tasks {
		ws.Tasks = append(ws.Tasks, wireTask{
			ID:        t.ID,
			Title:     t.Title,
			Deadline:  t.Deadline,
			Energy:    t.EnergyCost,
			Done:      t.Done,
			CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	for _, d := range st.DailyItems {
		ws.Daily = append(ws.Daily, wireDaily{ID: d.ID, Title: d.Title, Done: d.Done})
	}
	data, err := json.Marshal(ws)
	if err != nil {
		return Envelope{}, fmt.Errorf("snapshot: encode: %w", err)
	}
	return Envelope{
		Version: Version,
		SavedAt: now.UTC().Format(SavedAtLayout),
		Data:    data,
	}, nil
}

// ParseEnvelope reads a remote response body. A JSON null or empty body is
// "no snapshot" and yields nil without error. Only a body that is not a JSON
// object at all is an error; malformed fields inside are left to Decode.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if fields == nil {
		return nil, nil
	}
	env := &Envelope{Version: Version}
	if v, ok := fields["version"]; ok {
		env.Version = asInt(decodeAny(v), Version)
	}
	if v, ok := fields["savedAt"]; ok {
		env.SavedAt = asString(decodeAny(v), "")
	}
	if v, ok := fields["data"]; ok {
		env.Data = v
	}
	return env, nil
}
