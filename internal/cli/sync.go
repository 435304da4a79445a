package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fuusan091240-hub/flow-schedule/internal/accesskey"
	"github.com/spf13/cobra"
)

func newSecretCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the passphrase that names your remote snapshot",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <passphrase>",
		Short: "Set the sync passphrase (use the same one on every device)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				if err := rt.rec.ConfigureSecret(ctx, strings.Join(args, " ")); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "secret set")
				if err := pullOnce(ctx, rt, cmd.OutOrStdout()); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "initial pull failed: %v\n", err)
				}
				rt.settle(ctx, cmd.ErrOrStderr())
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the sync passphrase and stop syncing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				if err := rt.rec.ConfigureSecret(ctx, ""); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "secret cleared; cloud sync is off")
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether a passphrase is configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				secret, err := rt.store.Secret(ctx)
				if err != nil {
					return err
				}
				key, err := accesskey.Derive(secret)
				if err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), "secret: not set")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "secret: set (key %s)\n", key.Short())
				return nil
			})
		},
	})
	return cmd
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push, pull or inspect the remote snapshot",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "push",
		Short: "Save the current state remotely now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				cctx, cancel := context.WithTimeout(ctx, rt.cfg.Remote.SendTimeout+time.Second)
				defer cancel()
				if err := rt.rec.Flush(cctx); err != nil {
					return fmt.Errorf("push: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "pushed")
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "pull",
		Short: "Apply the remote snapshot if it is newer and nothing local is pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				return pullOnce(ctx, rt, cmd.OutOrStdout())
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show sync bookkeeping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				status, err := rt.rec.Status(ctx)
				if err != nil {
					return err
				}
				now := rt.now()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "secret:      %s\n", setOrNot(status.SecretConfigured))
				fmt.Fprintf(out, "remote:      %s\n", rt.cfg.Remote.URL)
				fmt.Fprintf(out, "last save:   %s\n", ago(status.LastSaveAt, now))
				fmt.Fprintf(out, "last pull:   %s\n", ago(status.LastPulledAt, now))
				if status.Dirty {
					fmt.Fprintf(out, "local edits: pending since %s\n", ago(status.DirtyAt, now))
				} else {
					fmt.Fprintln(out, "local edits: none pending")
				}
				return nil
			})
		},
	})
	return cmd
}

func pullOnce(ctx context.Context, rt *appRuntime, out io.Writer) error {
	cctx, cancel := context.WithTimeout(ctx, rt.cfg.Remote.FetchTimeout+time.Second)
	defer cancel()
	applied, err := rt.rec.PullIfNewer(cctx)
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	if applied {
		fmt.Fprintln(out, "pulled newer remote state")
	} else {
		fmt.Fprintln(out, "local state kept")
	}
	return nil
}

func setOrNot(ok bool) string {
	if ok {
		return "set"
	}
	return "not set"
}

func ago(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
