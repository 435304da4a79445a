package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fuusan091240-hub/flow-schedule/internal/commands"
	"github.com/fuusan091240-hub/flow-schedule/internal/model"
	"github.com/spf13/cobra"
)

func newMoodCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mood [0-5]",
		Short: "Show or set today's mood, which sets the energy budget",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
					st, err := rt.rec.Load(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "mood %d (capacity %d, used %d)\n", st.MoodLevel, st.Capacity(), st.UsedEnergy())
					return nil
				})
			}
			level, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: %q", model.ErrInvalidMood, args[0])
			}
			return editAndSettle(cmd, opts, func(st *model.AppState) (string, error) {
				if err := st.SetMood(level); err != nil {
					return "", err
				}
				return fmt.Sprintf("mood %d (capacity %d)", level, st.Capacity()), nil
			})
		},
	}
}

func newViewCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "view [today|all]",
		Short:     "Show or set whether done tasks are listed",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(model.ViewToday), string(model.ViewAll)},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
					st, err := rt.rec.Load(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "view: %s\n", st.ViewMode)
					return nil
				})
			}
			mode := model.ViewMode(strings.ToLower(args[0]))
			return editAndSettle(cmd, opts, func(st *model.AppState) (string, error) {
				return "view: " + string(mode), st.SetViewMode(mode)
			})
		},
	}
}

func newManuscriptCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "manuscript",
		Aliases: []string{"ms"},
		Short:   "Track progress toward the manuscript goal",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show progress and the pace needed to finish",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				st, err := rt.rec.Load(ctx)
				if err != nil {
					return err
				}
				printManuscript(cmd.OutOrStdout(), st.Manuscript, opts)
				return nil
			})
		},
	})

	var a commands.ManuscriptArgs
	set := &cobra.Command{
		Use:   "set",
		Short: "Change the goal's title, deadline, total or progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			a.HasTotal = flags.Changed("total")
			a.HasProgress = flags.Changed("progress")
			if a.Title == "" && a.Deadline == "" && !a.HasTotal && !a.HasProgress {
				return fmt.Errorf("manuscript set: nothing to change")
			}
			return editAndSettle(cmd, opts, func(st *model.AppState) (string, error) {
				if err := commands.ApplyManuscript(st, a, opts.now()); err != nil {
					return "", err
				}
				g := st.Manuscript
				return fmt.Sprintf("%s: %d / %d (due %s)", g.Title, g.ProgressUnits, g.TotalUnits, g.DeadlineDate), nil
			})
		},
	}
	set.Flags().StringVar(&a.Title, "title", "", "goal title")
	set.Flags().StringVar(&a.Deadline, "due", "", "deadline YYYY-MM-DD")
	set.Flags().IntVar(&a.Total, "total", 0, "total units, at least 1")
	set.Flags().IntVar(&a.Progress, "progress", 0, "units done so far")
	cmd.AddCommand(set)

	cmd.AddCommand(stepCmd(opts, "inc", 1))
	cmd.AddCommand(stepCmd(opts, "dec", -1))
	return cmd
}

func stepCmd(opts *rootOptions, name string, sign int) *cobra.Command {
	return &cobra.Command{
		Use:   name + " [n]",
		Short: fmt.Sprintf("Move progress by n units (default 1, %s)", map[int]string{1: "up", -1: "down"}[sign]),
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 1
			if len(args) == 1 {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 1 {
					return fmt.Errorf("manuscript %s: invalid amount %q", name, args[0])
				}
				n = v
			}
			return editAndSettle(cmd, opts, func(st *model.AppState) (string, error) {
				st.StepManuscript(sign * n)
				g := st.Manuscript
				return fmt.Sprintf("%s: %d / %d", g.Title, g.ProgressUnits, g.TotalUnits), nil
			})
		},
	}
}

func printManuscript(out io.Writer, g model.ManuscriptGoal, opts *rootOptions) {
	now := opts.now()
	fmt.Fprintf(out, "%s (due %s)\n", g.Title, g.DeadlineDate)
	fmt.Fprintf(out, "progress:  %d / %d\n", g.ProgressUnits, g.TotalUnits)
	fmt.Fprintf(out, "remaining: %d\n", g.Remaining())
	fmt.Fprintf(out, "pace:      %d day(s) left -> %.1f per day\n", g.DaysLeft(now), g.UnitsPerDay(now))
}
