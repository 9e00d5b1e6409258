package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded deployment attempts, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		initLogging()

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		attempts, err := store.ListAttempts()
		if err != nil {
			return err
		}
		if len(attempts) == 0 {
			fmt.Println("No deployments recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tTAG\tOUTCOME\tDURATION\tSTAGE")
		for _, a := range attempts {
			stage := a.FailureStage
			if stage == "" {
				stage = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				a.StartedAt.Local().Format("2006-01-02 15:04:05"),
				a.Tag,
				a.Outcome,
				a.FinishedAt.Sub(a.StartedAt).Round(time.Second),
				stage,
			)
		}
		return w.Flush()
	},
}
