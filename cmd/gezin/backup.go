package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/gezin/internal/backup"
	"github.com/dukerupert/gezin/internal/store"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, list and restore encrypted S3 backups",
	Long: `Backups hold every collection document, archived and encrypted with
the configured passphrase. Restoring overwrites the current collections, so
stop a running file-backend server first.`,
}

var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Upload a backup now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackups(cmd, func(m *backup.Manager) error {
			obj, err := m.RunNow(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%d bytes)\n", obj.Key, obj.Size)
			return nil
		})
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored backups, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackups(cmd, func(m *backup.Manager) error {
			objects, err := m.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSIZE\tLAST MODIFIED")
			for _, o := range objects {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", o.Key, o.Size, o.LastModified.Format(time.RFC3339))
			}
			return tw.Flush()
		})
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <key>",
	Short: "Replace the collections with the contents of a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackups(cmd, func(m *backup.Manager) error {
			kinds, err := m.Restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d collections from %s\n", len(kinds), args[0])
			return nil
		})
	},
}

func init() {
	backupCmd.AddCommand(backupRunCmd, backupListCmd, backupRestoreCmd)
}

// withBackups opens the configured backend and runs fn against a backup
// manager bound to it.
func withBackups(cmd *cobra.Command, fn func(*backup.Manager) error) error {
	ctx := cmd.Context()
	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()
	for _, kind := range store.Kinds {
		if err := backend.Init(ctx, kind); err != nil {
			return fmt.Errorf("init %s: %w", kind, err)
		}
	}

	m, err := backup.NewManager(ctx, backupConfig(cfg), backend, store.Kinds, logger.With("component", "backup"), nil)
	if err != nil {
		return err
	}
	if !m.Enabled() {
		return backup.ErrDisabled
	}
	return fn(m)
}
