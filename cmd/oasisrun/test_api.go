package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"oasisrun/internal/apitest"
)

func newTestAPICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test-api",
		Short: "Soak test a deployed lookup service",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd)
			iv, err := loadInputs(cmd)
			if err != nil {
				return err
			}

			baseURL, err := iv.Get("base_url", "", true)
			if err != nil {
				return err
			}
			exposuresPath, err := iv.GetPath("source_exposures_file_path", "", true)
			if err != nil {
				return err
			}
			attempts, err := iv.GetInt("health_check_attempts", 5)
			if err != nil {
				return err
			}
			analyses, err := iv.GetInt("analyses", 10)
			if err != nil {
				return err
			}
			workers, err := iv.GetInt("workers", 4)
			if err != nil {
				return err
			}

			client := &apitest.Client{BaseURL: baseURL, Logger: logger}
			if err := client.HealthCheck(cmd.Context(), attempts); err != nil {
				return err
			}

			counters, err := client.RunBatch(cmd.Context(), apitest.BatchOptions{
				Analyses:            analyses,
				Workers:             workers,
				SourceExposuresPath: exposuresPath,
			})
			if err != nil {
				return err
			}
			logger.Printf("batch result: %d completed, %d failed", counters.Completed(), counters.Failed())
			if counters.Failed() > 0 {
				return fmt.Errorf("%d of %d analyses failed", counters.Failed(), analyses)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.String("base-url", "", "service base URL including the model route prefix")
	f.String("source-exposures-file-path", "", "exposures CSV posted by every analysis")
	f.Int("health-check-attempts", 0, "health check attempts before giving up")
	f.Int("analyses", 0, "number of analyses to run")
	f.Int("workers", 0, "concurrent worker count")
	return cmd
}
