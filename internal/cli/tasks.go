package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fuusan091240-hub/flow-schedule/internal/model"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var errAmbiguousRef = fmt.Errorf("%w: ambiguous reference", model.ErrNotFound)

func newTaskCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"t"},
		Short:   "Add, list and complete tasks",
	}

	var energy int
	var due string
	add := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deadline, err := normalizeDue(due)
			if err != nil {
				return err
			}
			title := strings.Join(args, " ")
			return editAndSettle(cmd, opts, func(st *model.AppState) (string, error) {
				t, err := st.AddTask(uuid.NewString(), title, deadline, energy, opts.now())
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("added %s %s", shortID(t.ID), t.Title), nil
			})
		},
	}
	add.Flags().IntVarP(&energy, "energy", "e", 0, "energy cost 0-5")
	add.Flags().StringVar(&due, "due", "", "deadline YYYY-MM-DD")
	cmd.AddCommand(add)

	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				st, err := rt.rec.Load(ctx)
				if err != nil {
					return err
				}
				if all {
					st.ViewMode = model.ViewAll
				}
				printTasks(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}
	list.Flags().BoolVarP(&all, "all", "a", false, "include done tasks regardless of view mode")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editAndSettle(cmd, opts, func(st *model.AppState) (string, error) {
				t, err := findTask(st, args[0])
				if err != nil {
					return "", err
				}
				return "done: " + t.Title, st.SetTaskDone(t.ID, true)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "undo <id>",
		Short: "Mark a task not done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editAndSettle(cmd, opts, func(st *model.AppState) (string, error) {
				t, err := findTask(st, args[0])
				if err != nil {
					return "", err
				}
				return "reopened: " + t.Title, st.SetTaskDone(t.ID, false)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editAndSettle(cmd, opts, func(st *model.AppState) (string, error) {
				t, err := findTask(st, args[0])
				if err != nil {
					return "", err
				}
				return "deleted: " + t.Title, st.DeleteTask(t.ID)
			})
		},
	})

	var editTitle, editDue string
	var editEnergy int
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a task's title, energy or deadline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			return editAndSettle(cmd, opts, func(st *model.AppState) (string, error) {
				t, err := findTask(st, args[0])
				if err != nil {
					return "", err
				}
				title, deadline, energy := t.Title, t.Deadline, t.EnergyCost
				if flags.Changed("title") {
					title = editTitle
				}
				if flags.Changed("energy") {
					energy = editEnergy
				}
				if flags.Changed("due") {
					if deadline, err = normalizeDue(editDue); err != nil {
						return "", err
					}
				}
				return "updated: " + title, st.EditTask(t.ID, title, deadline, energy)
			})
		},
	}
	edit.Flags().StringVar(&editTitle, "title", "", "new title")
	edit.Flags().IntVarP(&editEnergy, "energy", "e", 0, "energy cost 0-5")
	edit.Flags().StringVar(&editDue, "due", "", "deadline YYYY-MM-DD, or none to clear")
	cmd.AddCommand(edit)
	return cmd
}

func newDailyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Manage the checklist that resets every day",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <title>",
		Short: "Add a daily item",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editAndSettle(cmd, opts, func(st *model.AppState) (string, error) {
				d, err := st.AddDaily(uuid.NewString(), strings.Join(args, " "))
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("added %s %s", shortID(d.ID), d.Title), nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List today's daily items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				st, err := rt.rec.Load(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(st.DailyItems) == 0 {
					fmt.Fprintln(out, "no daily items")
				}
				for _, d := range st.DailyItems {
					fmt.Fprintf(out, "%s %-8s %s\n", checkbox(d.Done), shortID(d.ID), d.Title)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "done <id>",
		Short: "Toggle a daily item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editAndSettle(cmd, opts, func(st *model.AppState) (string, error) {
				d, err := findDaily(st, args[0])
				if err != nil {
					return "", err
				}
				return "toggled: " + d.Title, st.ToggleDaily(d.ID)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a daily item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editAndSettle(cmd, opts, func(st *model.AppState) (string, error) {
				d, err := findDaily(st, args[0])
				if err != nil {
					return "", err
				}
				return "deleted: " + d.Title, st.DeleteDaily(d.ID)
			})
		},
	})
	return cmd
}

// editAndSettle applies one edit through the reconciler, prints its message
// and pushes before returning.
func editAndSettle(cmd *cobra.Command, opts *rootOptions, fn func(*model.AppState) (string, error)) error {
	return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
		var msg string
		if _, err := rt.rec.Edit(ctx, func(st *model.AppState) error {
			var err error
			msg, err = fn(st)
			return err
		}); err != nil {
			return err
		}
		if msg != "" {
			fmt.Fprintln(cmd.OutOrStdout(), msg)
		}
		rt.settle(ctx, cmd.ErrOrStderr())
		return nil
	})
}

func printTasks(out io.Writer, st model.AppState) {
	fmt.Fprintf(out, "mood %d | capacity %d / used %d", st.MoodLevel, st.Capacity(), st.UsedEnergy())
	if st.OverCapacity() {
		fmt.Fprint(out, " | over capacity")
	}
	fmt.Fprintln(out)
	visible := st.VisibleTasks()
	if len(visible) == 0 {
		fmt.Fprintln(out, "no tasks")
		return
	}
	for _, t := range visible {
		due := t.Deadline
		if due == "" {
			due = "none"
		}
		marker := ""
		if !t.Done && !st.CanDo(t) {
			marker = "  (over budget)"
		}
		fmt.Fprintf(out, "%s %-8s %s  due:%s e:%d%s\n", checkbox(t.Done), shortID(t.ID), t.Title, due, t.EnergyCost, marker)
	}
}

func checkbox(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func normalizeDue(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "-", "none":
		return "", nil
	}
	return model.NormalizeDate(raw)
}

// findTask resolves an exact ID or a unique ID prefix.
func findTask(st *model.AppState, ref string) (model.Task, error) {
	ref = strings.TrimSpace(ref)
	var match model.Task
	n := 0
	for _, t := range st.Tasks {
		if t.ID == ref {
			return t, nil
		}
		if ref != "" && strings.HasPrefix(t.ID, ref) {
			match = t
			n++
		}
	}
	switch n {
	case 1:
		return match, nil
	case 0:
		return model.Task{}, fmt.Errorf("%w: task %q", model.ErrNotFound, ref)
	default:
		return model.Task{}, fmt.Errorf("%w: task %q matches %d tasks", errAmbiguousRef, ref, n)
	}
}

func findDaily(st *model.AppState, ref string) (model.DailyItem, error) {
	ref = strings.TrimSpace(ref)
	var match model.DailyItem
	n := 0
	for _, d := range st.DailyItems {
		if d.ID == ref {
			return d, nil
		}
		if ref != "" && strings.HasPrefix(d.ID, ref) {
			match = d
			n++
		}
	}
	switch n {
	case 1:
		return match, nil
	case 0:
		return model.DailyItem{}, fmt.Errorf("%w: daily %q", model.ErrNotFound, ref)
	default:
		return model.DailyItem{}, fmt.Errorf("%w: daily %q matches %d items", errAmbiguousRef, ref, n)
	}
}
