package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/flexplan/infra/store"
)

var (
	historySince  time.Duration
	historyDevice string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived plan revisions",
	RunE:  listHistory,
}

func init() {
	historyCmd.Flags().DurationVar(&historySince, "since", 24*time.Hour, "how far back to look")
	historyCmd.Flags().StringVar(&historyDevice, "device", "", "only plans with entries for this device")
	rootCmd.AddCommand(historyCmd)
}

func listHistory(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer closeService(svc)
	if svc.Archive == nil {
		return errors.New("plan archive disabled")
	}
	plans, err := svc.Archive.Query(cmd.Context(), store.ArchiveQuery{Start: time.Now().Add(-historySince), Device: historyDevice})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, p := range plans {
		fmt.Fprintf(out, "%s\t%s\t%d entries\n", p.UpdatedAt.Format(time.RFC3339), p.Revision, len(p.Entries))
	}
	return nil
}
