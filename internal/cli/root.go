// Package cli is the flow command tree. The bare command runs the TUI; the
// subcommands edit the same local store one shot at a time and push the
// result before exiting.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fuusan091240-hub/flow-schedule/internal/config"
	"github.com/fuusan091240-hub/flow-schedule/internal/logging"
	"github.com/fuusan091240-hub/flow-schedule/internal/reconciler"
	"github.com/fuusan091240-hub/flow-schedule/internal/storage"
	"github.com/fuusan091240-hub/flow-schedule/internal/transport"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	now        func() time.Time
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &rootOptions{now: time.Now}
	root := &cobra.Command{
		Use:   "flow",
		Short: "Energy-aware task tracker with cloud snapshot sync",
		Long: `flow tracks tasks against a daily energy budget set by your mood,
keeps a short daily checklist and paces a manuscript goal.

State lives in a local SQLite file. When a sync secret is set, every edit is
pushed to the remote store after a short quiet period and a newer remote
snapshot is pulled at startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: ~/.flow/config.yaml then ./.flow/config.yaml)")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newSecretCmd(opts))
	root.AddCommand(newSyncCmd(opts))
	root.AddCommand(newTaskCmd(opts))
	root.AddCommand(newDailyCmd(opts))
	root.AddCommand(newMoodCmd(opts))
	root.AddCommand(newViewCmd(opts))
	root.AddCommand(newManuscriptCmd(opts))
	root.AddCommand(newExportCmd(opts))
	root.AddCommand(newImportCmd(opts))
	root.AddCommand(newConfigCmd(opts))
	root.Version = version
	return root
}

// Execute runs the command tree until it finishes or the process is signalled.
func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCommand(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// appRuntime is the local store plus the reconciler driving it.
type appRuntime struct {
	cfg    *config.Config
	store  *storage.Store
	rec    *reconciler.Reconciler
	logger *slog.Logger
	logs   io.Closer
	now    func() time.Time
}

func openRuntime(opts *rootOptions, hooks reconciler.Hooks) (*appRuntime, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger, logs, err := logging.OpenFile(level, cfg.Log.File)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	store.SetClock(opts.now)
	tr, err := transport.NewHTTPTransport(cfg.Remote.URL,
		transport.WithFetchTimeout(cfg.Remote.FetchTimeout),
		transport.WithSendTimeout(cfg.Remote.SendTimeout),
	)
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}
	rec := reconciler.New(store, tr, reconciler.Options{
		Debounce:         cfg.Sync.Debounce,
		InitialPullDelay: cfg.Sync.InitialPullDelay,
		Now:              opts.now,
		Logger:           logger,
		Hooks:            hooks,
	})
	rec.Start()
	logger.Debug("runtime opened", "store", cfg.Store.Path, "driver", cfg.Store.Driver, "remote", cfg.Remote.URL)
	return &appRuntime{cfg: cfg, store: store, rec: rec, logger: logger, logs: logs, now: opts.now}, nil
}

func (rt *appRuntime) Close() error {
	rt.rec.Stop()
	err := rt.store.Close()
	if cerr := rt.logs.Close(); err == nil {
		err = cerr
	}
	return err
}

// settle pushes pending edits before a one-shot command exits. The edit is
// already durable locally, so a failed push is reported but not returned.
func (rt *appRuntime) settle(ctx context.Context, errOut io.Writer) {
	status, err := rt.rec.Status(ctx)
	if err != nil || !status.Dirty {
		return
	}
	if !status.SecretConfigured {
		fmt.Fprintln(errOut, "saved locally; cloud sync is off (run `flow secret set <passphrase>`)")
		return
	}
	cctx, cancel := context.WithTimeout(ctx, rt.cfg.Remote.SendTimeout+time.Second)
	defer cancel()
	if err := rt.rec.Flush(cctx); err != nil {
		rt.logger.Warn("push before exit failed", "err", err)
		fmt.Fprintf(errOut, "saved locally; remote save failed: %v\n", err)
	}
}

// withRuntime opens the runtime for one command and always closes it.
func withRuntime(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, rt *appRuntime) error) error {
	rt, err := openRuntime(opts, reconciler.Hooks{})
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(commandContext(cmd), rt)
}
