package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"oasisrun/internal/lookup"
	"oasisrun/internal/model"
)

func newGenerateKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-keys",
		Short: "Resolve model risk keys for an exposure file",
		RunE:  runGenerateKeys,
	}
	f := cmd.Flags()
	f.String("model-exposures-file-path", "", "model exposures CSV")
	f.String("keys-data-path", "", "model keys data directory")
	f.String("model-version-file-path", "", "model version file")
	f.String("lookup-package-path", "", "lookup resolver package path")
	f.String("output-file-path", "", "keys output file (default: timestamped name in the working directory)")
	f.String("output-format", "", "oasis_keys or json_keys")
	f.Bool("successes-only", false, "write only successfully resolved keys")
	return cmd
}

func runGenerateKeys(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	iv, err := loadInputs(cmd)
	if err != nil {
		return err
	}

	keysData, err := iv.GetPath("keys_data_path", "", true)
	if err != nil {
		return err
	}
	versionFile, err := iv.GetPath("model_version_file_path", "", true)
	if err != nil {
		return err
	}
	lookupPkg, err := iv.GetPath("lookup_package_path", "", true)
	if err != nil {
		return err
	}
	exposuresPath, err := iv.GetPath("model_exposures_file_path", "", true)
	if err != nil {
		return err
	}
	format, err := iv.Get("output_format", lookup.FormatOasisKeys, false)
	if err != nil {
		return err
	}
	// The ktools CSV format has no columns for failure diagnostics, so it
	// defaults to successes only.
	successesOnly, err := iv.GetBool("successes_only", format == lookup.FormatOasisKeys)
	if err != nil {
		return err
	}
	outputPath, err := iv.GetPath("output_file_path", "", false)
	if err != nil {
		return err
	}

	id, lk, err := lookup.CreateFromPaths(keysData, versionFile, lookupPkg)
	if err != nil {
		return err
	}
	if outputPath == "" {
		outputPath, err = filepath.Abs(lookup.DefaultKeysFileName(id, format, time.Now()))
		if err != nil {
			return err
		}
	}

	f, err := os.Open(exposuresPath)
	if err != nil {
		return fmt.Errorf("open model exposures: %w", err)
	}
	records, err := model.DecodeExposuresCSV(f)
	f.Close()
	if err != nil {
		return &model.ValidationError{File: exposuresPath, Msg: err.Error()}
	}

	n, err := lookup.SaveKeys(
		lk.ProcessLocations(cmd.Context(), model.StreamRecords(cmd.Context(), records)),
		lookup.SaveOptions{OutputPath: outputPath, Format: format, SuccessesOnly: successesOnly},
	)
	if err != nil {
		return err
	}
	logger.Printf("wrote %d key records for %s to %s", n, id, outputPath)
	return nil
}
