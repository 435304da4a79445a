package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fuusan091240-hub/flow-schedule/internal/model"
	"github.com/fuusan091240-hub/flow-schedule/internal/snapshot"
	"github.com/spf13/cobra"
)

var errEmptySnapshot = errors.New("import: file holds no snapshot")

func newExportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write the current state as a snapshot envelope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				st, err := rt.rec.Load(ctx)
				if err != nil {
					return err
				}
				env, err := snapshot.Encode(st, opts.now())
				if err != nil {
					return err
				}
				if err := writeEnvelope(args[0], env); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d task(s) to %s\n", len(st.Tasks), args[0])
				return nil
			})
		},
	}
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the local state with a snapshot file",
		Long: `import replaces the local state with the snapshot in <file>. Malformed
fields fall back to defaults exactly as a remote pull would. The import
counts as a local edit and is pushed like any other.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			env, err := snapshot.ParseEnvelope(raw)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			if env == nil {
				return errEmptySnapshot
			}
			imported := snapshot.Decode(*env, opts.now())
			return editAndSettle(cmd, opts, func(st *model.AppState) (string, error) {
				*st = imported
				return fmt.Sprintf("imported %d task(s) saved at %s", len(imported.Tasks), env.SavedAt), nil
			})
		},
	}
}

// writeEnvelope replaces path atomically via a temp file and rename.
func writeEnvelope(path string, env snapshot.Envelope) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	payload, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(payload, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
