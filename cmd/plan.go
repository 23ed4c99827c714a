package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/flexplan/core/model"
	"github.com/kilianp07/flexplan/core/planner"
	"github.com/kilianp07/flexplan/pkg/export"
)

var (
	planFormat    string
	planNoRefresh bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Refresh the plan once and print it",
	RunE:  printPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planFormat, "format", "f", "json", "output format: json, yaml or csv")
	planCmd.Flags().BoolVar(&planNoRefresh, "no-refresh", false, "print the persisted plan without refreshing")
	rootCmd.AddCommand(planCmd)
}

func printPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := newService()
	if err != nil {
		return err
	}
	defer closeService(svc)

	if !planNoRefresh {
		out := svc.Refresh(ctx)
		switch out.Status {
		case model.StatusDataUnavailable:
			if !errors.Is(out.Err, planner.ErrNoPrices) {
				return out.Err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "no prices, showing persisted plan: %v\n", out.Err)
		case model.StatusInfeasible:
			fmt.Fprintf(cmd.ErrOrStderr(), "degraded plan: %v\n", out.Err)
		}
	}
	plan, ok, err := svc.Optimizer.Current(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return planner.ErrNoPlan
	}
	return export.Write(cmd.OutOrStdout(), planFormat, plan)
}
