package cli

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fuusan091240-hub/flow-schedule/internal/update"
	"github.com/spf13/cobra"
)

func runTUI(cmd *cobra.Command, opts *rootOptions) error {
	bridge := update.NewEventBridge(64)
	rt, err := openRuntime(opts, bridge.Hooks())
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := commandContext(cmd)
	m := update.NewModel(ctx, rt.rec, update.Options{
		Events:      bridge.C(),
		Now:         opts.now,
		SyncTimeout: rt.cfg.Remote.FetchTimeout + rt.cfg.Remote.SendTimeout,
	})
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("flow: tui: %w", err)
	}
	if n := bridge.Dropped(); n > 0 {
		rt.logger.Debug("sync events dropped while the UI was busy", "count", n)
	}
	rt.settle(ctx, os.Stderr)
	return nil
}
