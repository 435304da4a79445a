package cli

import (
	"os"

	"github.com/fuusan091240-hub/flow-schedule/internal/config"
	"github.com/fuusan091240-hub/flow-schedule/internal/logging"
	"github.com/fuusan091240-hub/flow-schedule/internal/syncserver"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr, driver, path string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the snapshot store that flow clients sync against",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("driver") {
				cfg.Server.Driver = driver
			}
			if cmd.Flags().Changed("db") {
				cfg.Server.Path = path
			}
			level, err := logging.ParseLevel(cfg.Log.Level)
			if err != nil {
				return err
			}
			logger := logging.New(level, os.Stderr)

			store, err := syncserver.OpenSnapshotStore(cfg.Server.Driver, cfg.Server.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			logger.Info("snapshot store opened", "path", cfg.Server.Path, "driver", cfg.Server.Driver)
			return syncserver.New(store, logger).Run(commandContext(cmd), cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config server.addr)")
	cmd.Flags().StringVar(&driver, "driver", "", "sqlite driver: sqlite3 or sqlite")
	cmd.Flags().StringVar(&path, "db", "", "snapshot database path")
	return cmd
}
