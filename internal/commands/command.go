package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fuusan091240-hub/flow-schedule/internal/model"
)

type Type string

const (
	TypeAdd        Type = "add"
	TypeEdit       Type = "edit"
	TypeDaily      Type = "daily"
	TypeMood       Type = "mood"
	TypeView       Type = "view"
	TypeManuscript Type = "ms"
	TypeSecret     Type = "secret"
	TypePush       Type = "push"
	TypePull       Type = "pull"
)

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// TaskArgs carries the add and edit fields. Zero-valued options mean "not
// given"; for edit they keep the current value.
type TaskArgs struct {
	Title       string
	Energy      int
	HasEnergy   bool
	Deadline    string
	HasDeadline bool
}

type DailyArgs struct {
	Title string
}

type MoodArgs struct {
	Level int
}

type ViewArgs struct {
	Mode model.ViewMode
}

// ManuscriptArgs either steps progress (Delta != 0) or sets goal fields.
type ManuscriptArgs struct {
	Delta       int
	Title       string
	Deadline    string
	Total       int
	HasTotal    bool
	Progress    int
	HasProgress bool
}

type SecretArgs struct {
	Secret string
}

type Command struct {
	Type       Type
	Raw        string
	Task       *TaskArgs
	Daily      *DailyArgs
	Mood       *MoodArgs
	View       *ViewArgs
	Manuscript *ManuscriptArgs
	Secret     *SecretArgs
}

func Parse(input string) (Command, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}
	if strings.HasPrefix(raw, "/") {
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	}
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := strings.ToLower(parts[0])
	args := parts[1:]

	switch Type(head) {
	case TypeAdd:
		return parseTask(input, TypeAdd, args)
	case TypeEdit:
		return parseTask(input, TypeEdit, args)
	case TypeDaily:
		return parseDaily(input, args)
	case TypeMood:
		return parseMood(input, args)
	case TypeView:
		return parseView(input, args)
	case TypeManuscript, "manuscript":
		return parseManuscript(input, args)
	case TypeSecret:
		return parseSecret(input, args)
	case TypePush:
		return Command{Type: TypePush, Raw: input}, nil
	case TypePull:
		return Command{Type: TypePull, Raw: input}, nil
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

func parseTask(raw string, typ Type, args []string) (Command, error) {
	out := TaskArgs{}
	words := make([]string, 0, len(args))
	for _, arg := range args {
		key, value, ok := option(arg)
		switch {
		case ok && (key == "e" || key == "energy"):
			n, err := strconv.Atoi(value)
			if err != nil || n < model.MinEnergy || n > model.MaxEnergy {
				return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("energy must be %d-%d", model.MinEnergy, model.MaxEnergy)}
			}
			out.Energy, out.HasEnergy = n, true
		case ok && (key == "due" || key == "deadline"):
			if value == "-" || value == "none" {
				out.Deadline, out.HasDeadline = "", true
				continue
			}
			d, err := model.NormalizeDate(value)
			if err != nil {
				return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "due must be YYYY-MM-DD"}
			}
			out.Deadline, out.HasDeadline = d, true
		default:
			words = append(words, arg)
		}
	}
	out.Title = strings.TrimSpace(strings.Join(words, " "))
	if typ == TypeAdd && out.Title == "" {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "add requires a title"}
	}
	if typ == TypeEdit && out.Title == "" && !out.HasEnergy && !out.HasDeadline {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "edit requires a title, e:N or due:DATE"}
	}
	return Command{Type: typ, Raw: raw, Task: &out}, nil
}

func parseDaily(raw string, args []string) (Command, error) {
	title := strings.TrimSpace(strings.Join(args, " "))
	if title == "" {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "daily requires a title"}
	}
	return Command{Type: TypeDaily, Raw: raw, Daily: &DailyArgs{Title: title}}, nil
}

func parseMood(raw string, args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "mood requires a level"}
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < model.MinMood || n > model.MaxMood {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("mood must be %d-%d", model.MinMood, model.MaxMood)}
	}
	return Command{Type: TypeMood, Raw: raw, Mood: &MoodArgs{Level: n}}, nil
}

func parseView(raw string, args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "view requires today or all"}
	}
	mode := model.ViewMode(strings.ToLower(args[0]))
	if !mode.IsValid() {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "view must be today or all"}
	}
	return Command{Type: TypeView, Raw: raw, View: &ViewArgs{Mode: mode}}, nil
}

func parseManuscript(raw string, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "ms requires +N, -N or fields"}
	}
	if len(args) == 1 && (strings.HasPrefix(args[0], "+") || strings.HasPrefix(args[0], "-")) {
		n, err := strconv.Atoi(args[0])
		if err != nil || n == 0 {
			return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "ms step must be a non-zero number"}
		}
		return Command{Type: TypeManuscript, Raw: raw, Manuscript: &ManuscriptArgs{Delta: n}}, nil
	}

	out := ManuscriptArgs{}
	words := make([]string, 0, len(args))
	for _, arg := range args {
		key, value, ok := option(arg)
		switch {
		case ok && key == "due":
			d, err := model.NormalizeDate(value)
			if err != nil {
				return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "due must be YYYY-MM-DD"}
			}
			out.Deadline = d
		case ok && key == "total":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "total must be a number"}
			}
			out.Total, out.HasTotal = n, true
		case ok && key == "done":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "done must be a number"}
			}
			out.Progress, out.HasProgress = n, true
		default:
			words = append(words, arg)
		}
	}
	out.Title = strings.TrimSpace(strings.Join(words, " "))
	return Command{Type: TypeManuscript, Raw: raw, Manuscript: &out}, nil
}

func parseSecret(raw string, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "secret requires a value or 'clear'"}
	}
	secret := strings.Join(args, " ")
	if len(args) == 1 && strings.EqualFold(args[0], "clear") {
		secret = ""
	}
	return Command{Type: TypeSecret, Raw: raw, Secret: &SecretArgs{Secret: secret}}, nil
}

// option splits key:value tokens. Tokens without a colon are title words.
func option(arg string) (string, string, bool) {
	key, value, ok := strings.Cut(arg, ":")
	if !ok || key == "" || value == "" {
		return "", "", false
	}
	return strings.ToLower(key), value, true
}
