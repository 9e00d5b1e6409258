package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/newshub/stevedore/pkg/backup"
	"github.com/newshub/stevedore/pkg/config"
	"github.com/newshub/stevedore/pkg/storage"
)

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "Inspect and prune database backups",
}

var backupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed backup archives, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		initLogging()

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.ListBackups()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No backups recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tSOURCE\tSIZE\tPATH")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				r.Timestamp.Local().Format("2006-01-02 15:04:05"),
				r.Source,
				formatSize(r.SizeBytes),
				r.Path,
			)
		}
		return w.Flush()
	},
}

var backupsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove all but the most recent retained backups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		initLogging()

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		retain, _ := cmd.Flags().GetInt("retain")
		agent := backup.NewAgent(nil, store, backup.Options{
			Dir:    flagBackupDir,
			Retain: retain,
		})
		if err := agent.Prune(); err != nil {
			return err
		}

		fmt.Println("✓ Backups pruned")
		return nil
	},
}

func openStore() (storage.Store, error) {
	cfg := &config.Config{DataDir: flagDataDir}
	if cfg.DataDir == "" {
		cfg.DataDir = config.DefaultDataDir
	}
	return storage.NewBoltStore(cfg.StorePath())
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMG"[exp])
}

func init() {
	backupsPruneCmd.Flags().Int("retain", 5, "number of backups to keep")
	backupsCmd.AddCommand(backupsListCmd)
	backupsCmd.AddCommand(backupsPruneCmd)
}
