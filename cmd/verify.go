package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Reconcile device states with the persisted plan once",
	RunE:  verifyOnce,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func verifyOnce(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer closeService(svc)

	sum, err := svc.Verify(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "checked=%d matched=%d corrected=%d skipped=%d\n",
		sum.Checked, sum.Matched, sum.Corrected, sum.Skipped)
	for _, p := range svc.Verifier.Status() {
		fmt.Fprintf(out, "pending %s %s %s: %d checks left\n", p.Device, p.Kind, p.Transition, p.Remaining)
	}
	return nil
}
