package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/propdesk/propdesk/internal/backup"
)

var backupColumns = []column[backup.Manifest]{
	{"ID", func(m backup.Manifest) string { return m.ID }},
	{"TAKEN", func(m backup.Manifest) string { return m.Timestamp.Local().Format("2006-01-02 15:04") }},
	{"LEADS", func(m backup.Manifest) string { return strconv.Itoa(m.Stats.Leads) }},
	{"PROPERTIES", func(m backup.Manifest) string { return strconv.Itoa(m.Stats.Properties) }},
	{"TRANSACTIONS", func(m backup.Manifest) string { return strconv.Itoa(m.Stats.Transactions) }},
	{"SIZE", func(m backup.Manifest) string { return size(m.SizeBytes) }},
}

func (a *app) backupsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List or take server backups",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "Show stored backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := resolveFormat(a.format, a.out)
			if err != nil {
				return err
			}
			manifests, err := a.client.ListBackups(cmd.Context())
			if err != nil {
				return err
			}
			return render(a.out, format, manifests, backupColumns)
		},
	}
	run := &cobra.Command{
		Use:   "run",
		Short: "Take a backup now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			man, err := a.client.RunBackup(cmd.Context())
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}
			fmt.Fprintf(a.out, "Backup %s written: %d files, %s\n", man.ID, len(man.Files), size(man.SizeBytes))
			return nil
		},
	}
	cmd.AddCommand(list, run)
	return cmd
}

func size(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
