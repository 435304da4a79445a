package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type TaskItemData struct {
	Title    string
	Deadline string
	Energy   int
	Done     bool
	CanDo    bool
}

type TasksPanelData struct {
	Date     string
	ViewMode string
	Mood     int
	Capacity int
	Used     int
	Items    []TaskItemData
	Cursor   int
	Focused  bool
}

type DailyItemData struct {
	Title string
	Done  bool
}

type DailyPanelData struct {
	Items   []DailyItemData
	Cursor  int
	Focused bool
}

type ManuscriptPanelData struct {
	Title        string
	Deadline     string
	Total        int
	Progress     int
	Remaining    int
	DaysLeft     int
	PerDay       float64
	ProgressView string
	Focused      bool
}

type SyncPanelData struct {
	State            string
	Spinner          string
	SecretConfigured bool
	Dirty            bool
	LastSaveAt       time.Time
	LastPulledAt     time.Time
	Now              time.Time
}

type HelpPanelData struct {
	Bindings []string
	HelpView string
}

func RenderTasksPanel(data TasksPanelData) string {
	var b strings.Builder
	b.WriteString(sectionTitle("tasks", data.Focused))
	b.WriteString(fmt.Sprintf("%s | mood %d | view: %s\n", data.Date, data.Mood, data.ViewMode))
	capacity := fmt.Sprintf("capacity %d / used %d", data.Capacity, data.Used)
	if data.Used > data.Capacity {
		capacity = overStyle.Render(capacity + " (over capacity)")
	}
	b.WriteString(capacity + "\n")
	if len(data.Items) == 0 {
		b.WriteString("  (no tasks)")
		return b.String()
	}
	for i, item := range data.Items {
		cursor := " "
		if data.Focused && i == data.Cursor {
			cursor = ">"
		}
		check := "[ ]"
		if item.Done {
			check = "[x]"
		}
		deadline := item.Deadline
		if deadline == "" {
			deadline = "none"
		}
		line := fmt.Sprintf("%s %s (due: %s / energy: %d)", check, item.Title, deadline, item.Energy)
		switch {
		case item.Done:
			line = doneStyle.Render(line)
		case !item.CanDo:
			line = dimStyle.Render(line)
		}
		b.WriteString(cursor + " " + line + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func RenderDailyPanel(data DailyPanelData) string {
	var b strings.Builder
	b.WriteString(sectionTitle("daily", data.Focused))
	if len(data.Items) == 0 {
		b.WriteString("  (no daily items)")
		return b.String()
	}
	for i, item := range data.Items {
		cursor := " "
		if data.Focused && i == data.Cursor {
			cursor = ">"
		}
		check := "[ ]"
		if item.Done {
			check = "[x]"
		}
		b.WriteString(fmt.Sprintf("%s %s %s\n", cursor, check, item.Title))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func RenderManuscriptPanel(data ManuscriptPanelData) string {
	var b strings.Builder
	b.WriteString(sectionTitle("manuscript", data.Focused))
	b.WriteString(fmt.Sprintf("%s (due %s)\n", data.Title, data.Deadline))
	b.WriteString(fmt.Sprintf("progress: %d / %d  remaining: %d\n", data.Progress, data.Total, data.Remaining))
	if data.ProgressView != "" {
		b.WriteString(data.ProgressView + "\n")
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("%d day(s) left -> %.1f per day", data.DaysLeft, data.PerDay)))
	return b.String()
}

func RenderSyncPanel(data SyncPanelData) string {
	var b strings.Builder
	b.WriteString("sync:\n")
	if !data.SecretConfigured {
		b.WriteString("secret: not set\n")
	} else {
		b.WriteString("secret: set\n")
	}
	state := data.State
	if data.Spinner != "" {
		state = data.Spinner + " " + state
	}
	b.WriteString("state: " + state + "\n")
	if data.Dirty {
		b.WriteString("local edits: unsaved\n")
	} else {
		b.WriteString("local edits: saved\n")
	}
	b.WriteString("last save: " + relTime(data.LastSaveAt, data.Now) + "\n")
	b.WriteString("last pull: " + relTime(data.LastPulledAt, data.Now))
	return b.String()
}

// RenderSecretBanner is empty once a secret is configured.
func RenderSecretBanner(secretConfigured bool) string {
	if secretConfigured {
		return ""
	}
	return "Cloud sync is off: no secret set. Press / and run `secret <passphrase>` on every device you use."
}

func RenderCommandPalette(active bool, input string) string {
	if !active {
		return ""
	}
	return fmt.Sprintf("command: %s", input)
}

func RenderHelpPanel(data HelpPanelData) string {
	var md strings.Builder
	md.WriteString("## Keys\n\n")
	for _, line := range data.Bindings {
		md.WriteString(line + "\n")
	}
	md.WriteString("\n## Commands\n\n")
	md.WriteString("- `add <title> [e:0-5] [due:YYYY-MM-DD]`\n")
	md.WriteString("- `edit [title] [e:N] [due:DATE|none]` on the selected task\n")
	md.WriteString("- `daily <title>`, `mood <0-5>`, `view today|all`\n")
	md.WriteString("- `ms +N|-N` or `ms [title] [due:DATE] [total:N] [done:N]`\n")
	md.WriteString("- `secret <passphrase>|clear`, `push`, `pull`\n")
	return strings.TrimSpace(RenderMarkdown(md.String()) + "\n" + data.HelpView)
}

func sectionTitle(name string, focused bool) string {
	if focused {
		return headerStyle.Render("> "+name) + "\n"
	}
	return name + "\n"
}

func relTime(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	if now.IsZero() {
		now = time.Now()
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
