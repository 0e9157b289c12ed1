package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/taskcal/internal/backup"
	"github.com/dukerupert/taskcal/internal/config"
	"github.com/dukerupert/taskcal/internal/database"
	"github.com/dukerupert/taskcal/internal/logging"
	"github.com/dukerupert/taskcal/internal/store"
)

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Run, list and restore encrypted database backups",
	}
	cmd.AddCommand(backupRunCmd())
	cmd.AddCommand(backupListCmd())
	cmd.AddCommand(backupRestoreCmd())
	return cmd
}

// withManager opens the configured database and hands a backup manager over it
// to fn.
func withManager(fn func(cfg *config.Config, m *backup.Manager) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	m := backup.NewManager(cfg.BackupConfig(), db, store.NewBackupStore(db), logger.With("component", "backup"))
	return fn(cfg, m)
}

func backupRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Back up the database now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(_ *config.Config, m *backup.Manager) error {
				id, err := m.RunNow(cmd.Context())
				if err != nil {
					return err
				}
				if err := m.Cleanup(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "backup %d complete\n", id)
				return nil
			})
		},
	}
}

func backupListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(_ *config.Config, m *backup.Manager) error {
				backups, err := m.List(limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSTATUS\tSIZE\tCREATED\tKEY")
				for _, b := range backups {
					fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", b.ID, b.Status, b.SizeBytes, b.CreatedAt.Format(time.RFC3339), b.S3Key)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum backups to list")
	return cmd
}

func backupRestoreCmd() *cobra.Command {
	var dst string
	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a backup over the database file",
		Long: `Download, decrypt and verify a backup, then move it into place.

Stop the server first. Without --to the configured database file is replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid backup id %q", args[0])
			}
			return withManager(func(cfg *config.Config, m *backup.Manager) error {
				target := dst
				if target == "" {
					target = cfg.Database.Path
				}
				if err := m.RestoreTo(cmd.Context(), id, target); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "restored backup %d to %s\n", id, target)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dst, "to", "", "write the restored database here instead")
	return cmd
}
