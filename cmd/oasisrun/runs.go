package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded loss calculation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			iv, err := loadInputs(cmd)
			if err != nil {
				return err
			}
			limit, err := iv.GetInt("limit", 20)
			if err != nil {
				return err
			}

			reg, err := openRegistry(iv)
			if err != nil {
				return err
			}
			defer reg.Close()

			runs, err := reg.List(limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMODEL\tSTATUS\tEXIT\tSTARTED\tRUN DIR")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.ID, r.Model, r.Status, r.ExitStatus,
					r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.RunDir)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int("limit", 0, "maximum number of runs to list")
	cmd.Flags().String("run-registry-path", "", "run history database path")
	return cmd
}
