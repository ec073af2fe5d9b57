package main

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate Oasis files and losses in one timestamped workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd)
			iv, err := loadInputs(cmd)
			if err != nil {
				return err
			}

			runDir, err := iv.GetPath("model_run_dir_path", defaultRunDirName(time.Now()), false)
			if err != nil {
				return err
			}
			oasisDir := filepath.Join(runDir, "tmp")

			if _, _, err := generateOasisFiles(cmd.Context(), iv, logger, oasisDir); err != nil {
				return err
			}
			if _, err := generateLosses(cmd.Context(), iv, logger, runDir, oasisDir); err != nil {
				return err
			}
			logger.Printf("run complete: %s", runDir)
			return nil
		},
	}
	addOasisFilesFlags(cmd.Flags())
	addLossesFlags(cmd.Flags())
	return cmd
}
