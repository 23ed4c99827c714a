package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Run one load watcher pass and print the device limits",
	RunE:  limitsOnce,
}

func init() {
	rootCmd.AddCommand(limitsCmd)
}

func limitsOnce(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer closeService(svc)

	if len(svc.Watcher.Managed()) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no load managed device")
		return nil
	}
	rep, err := svc.Limits(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "peak=%.2fkW available=%.0fW changed=%t\n", rep.PeakKW, rep.AvailableW, rep.Changed)
	names := make([]string, 0, len(rep.Limits))
	for n := range rep.Limits {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(out, "%s\t%.0fW\n", n, rep.Limits[n])
	}
	return nil
}
