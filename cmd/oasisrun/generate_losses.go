package main

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"oasisrun/internal/config"
	"oasisrun/internal/execution"
	"oasisrun/internal/model"
	"oasisrun/internal/oasisbin"
	"oasisrun/internal/workspace"
)

func addLossesFlags(f *pflag.FlagSet) {
	f.String("analysis-settings-json-file-path", "", "analysis settings document")
	f.String("model-data-path", "", "model static data directory")
	f.String("model-run-dir-path", "", "run workspace directory (default: timestamped under runs/)")
	f.String("ktools-script-name", "", "name of the generated run script")
	f.Int("ktools-num-processes", 0, "number of parallel calculation chains")
	f.Bool("no-execute", false, "write the run script without executing it")
	f.Bool("copy-model-data", false, "copy model data into static/ instead of symlinking")
	f.String("run-registry-path", "", "run history database path")
}

func newGenerateLossesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-losses",
		Short: "Prepare a run workspace and execute the calculation engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd)
			iv, err := loadInputs(cmd)
			if err != nil {
				return err
			}
			_, err = generateLosses(cmd.Context(), iv, logger, "", "")
			return err
		},
	}
	addLossesFlags(cmd.Flags())
	cmd.Flags().String("oasis-files-path", "", "directory holding the Oasis input CSVs")
	cmd.Flags().String("model-version-file-path", "", "model version file (recorded in the run registry)")
	return cmd
}

// defaultRunDirName names a fresh workspace for runs that do not specify one.
func defaultRunDirName(now time.Time) string {
	return filepath.Join("runs", "ProgOasis-"+now.Format("20060102150405"))
}

// generateLosses stages a workspace, encodes the inputs, plans the engine
// run and executes it unless no_execute is set. Explicit runDir/oasisDir
// arguments (from the composite run command) take precedence over the
// config parameters.
func generateLosses(ctx context.Context, iv *config.InputValues, logger *log.Logger, runDir, oasisDir string) (int, error) {
	var err error
	if oasisDir == "" {
		oasisDir, err = iv.GetPath("oasis_files_path", "", true)
		if err != nil {
			return 0, err
		}
	}
	settingsPath, err := iv.GetPath("analysis_settings_json_file_path", "", true)
	if err != nil {
		return 0, err
	}
	modelData, err := iv.GetPath("model_data_path", "", true)
	if err != nil {
		return 0, err
	}
	if runDir == "" {
		runDir, err = iv.GetPath("model_run_dir_path", defaultRunDirName(time.Now()), false)
		if err != nil {
			return 0, err
		}
	}
	scriptName, err := iv.Get("ktools_script_name", "run_ktools.sh", false)
	if err != nil {
		return 0, err
	}
	processes, err := iv.GetInt("ktools_num_processes", 2)
	if err != nil {
		return 0, err
	}
	noExecute, err := iv.GetBool("no_execute", false)
	if err != nil {
		return 0, err
	}
	copyModelData, err := iv.GetBool("copy_model_data", false)
	if err != nil {
		return 0, err
	}

	settings, err := model.LoadAnalysisSettings(settingsPath)
	if err != nil {
		return 0, err
	}

	if err := workspace.Prepare(runDir, oasisDir, settingsPath, modelData, workspace.Options{
		CopyModelData: copyModelData,
		Logger:        logger,
	}); err != nil {
		return 0, err
	}
	if err := oasisbin.EncodeDir(filepath.Join(runDir, "input", "csv"), filepath.Join(runDir, "input"), logger); err != nil {
		return 0, err
	}

	plan, err := execution.GeneratePlan(processes, settings, runDir)
	if err != nil {
		return 0, err
	}
	scriptPath := filepath.Join(runDir, scriptName)
	if err := execution.WriteScript(plan, scriptPath); err != nil {
		return 0, err
	}
	if noExecute {
		logger.Printf("wrote run script %s without executing", scriptPath)
		return 0, nil
	}

	// Registry and progress watcher are best effort: a broken history
	// database must not block a loss calculation.
	var runID string
	reg, regErr := openRegistry(iv)
	if regErr != nil {
		logger.Printf("run registry unavailable: %v", regErr)
	} else {
		defer reg.Close()
		var id model.ModelIdentity
		if vf, _ := iv.GetPath("model_version_file_path", "", false); vf != "" {
			id, _ = model.LoadModelIdentity(vf)
		}
		if runID, err = reg.RecordStart(id, runDir); err != nil {
			logger.Printf("record run start: %v", err)
			runID = ""
		}
	}

	watcher, werr := execution.WatchOutputs(filepath.Join(runDir, "output"), logger)
	if werr != nil {
		logger.Printf("output watcher unavailable: %v", werr)
	} else {
		defer watcher.Close()
	}

	runner := &execution.Runner{Logger: logger}
	status, execErr := runner.Execute(ctx, plan)
	if reg != nil && regErr == nil && runID != "" {
		if err := reg.RecordFinish(runID, status); err != nil {
			logger.Printf("record run finish: %v", err)
		}
	}
	if execErr != nil {
		return status, execErr
	}
	logger.Printf("losses written to %s", filepath.Join(runDir, "output"))
	return 0, nil
}
