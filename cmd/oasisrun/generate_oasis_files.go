package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"oasisrun/internal/config"
	"oasisrun/internal/exposures"
	"oasisrun/internal/lookup"
	"oasisrun/internal/model"
)

func addOasisFilesFlags(f *pflag.FlagSet) {
	f.String("keys-data-path", "", "model keys data directory")
	f.String("model-version-file-path", "", "model version file")
	f.String("lookup-package-path", "", "lookup resolver package path")
	f.String("canonical-exposures-profile-json-path", "", "canonical exposures profile")
	f.String("source-exposures-file-path", "", "source exposures CSV")
	f.String("source-exposures-validation-file-path", "", "source exposures validation document")
	f.String("source-to-canonical-exposures-transformation-file-path", "", "source to canonical transform document")
	f.String("canonical-exposures-validation-file-path", "", "canonical exposures validation document")
	f.String("canonical-to-model-exposures-transformation-file-path", "", "canonical to model transform document")
}

func newGenerateOasisFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-oasis-files",
		Short: "Transform exposures and write the Oasis input file set",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd)
			iv, err := loadInputs(cmd)
			if err != nil {
				return err
			}
			_, _, err = generateOasisFiles(cmd.Context(), iv, logger, "")
			return err
		},
	}
	addOasisFilesFlags(cmd.Flags())
	cmd.Flags().String("oasis-files-path", "", "output directory for the Oasis files")
	return cmd
}

// generateOasisFiles runs the transform pipeline. An explicit oasisDir
// (used by the composite run command) takes precedence over the
// oasis_files_path parameter.
func generateOasisFiles(ctx context.Context, iv *config.InputValues, logger *log.Logger, oasisDir string) (*exposures.Files, model.ModelIdentity, error) {
	var zero model.ModelIdentity

	if oasisDir == "" {
		dir, err := iv.GetPath("oasis_files_path", "", true)
		if err != nil {
			return nil, zero, err
		}
		oasisDir = dir
	}

	keysData, err := iv.GetPath("keys_data_path", "", true)
	if err != nil {
		return nil, zero, err
	}
	versionFile, err := iv.GetPath("model_version_file_path", "", true)
	if err != nil {
		return nil, zero, err
	}
	lookupPkg, err := iv.GetPath("lookup_package_path", "", true)
	if err != nil {
		return nil, zero, err
	}
	profilePath, err := iv.GetPath("canonical_exposures_profile_json_path", "", true)
	if err != nil {
		return nil, zero, err
	}
	sourcePath, err := iv.GetPath("source_exposures_file_path", "", true)
	if err != nil {
		return nil, zero, err
	}
	sourceVal, err := iv.GetPath("source_exposures_validation_file_path", "", false)
	if err != nil {
		return nil, zero, err
	}
	srcToCanon, err := iv.GetPath("source_to_canonical_exposures_transformation_file_path", "", true)
	if err != nil {
		return nil, zero, err
	}
	canonVal, err := iv.GetPath("canonical_exposures_validation_file_path", "", false)
	if err != nil {
		return nil, zero, err
	}
	canonToModel, err := iv.GetPath("canonical_to_model_exposures_transformation_file_path", "", true)
	if err != nil {
		return nil, zero, err
	}

	id, lk, err := lookup.CreateFromPaths(keysData, versionFile, lookupPkg)
	if err != nil {
		return nil, zero, err
	}
	if err := os.MkdirAll(oasisDir, 0755); err != nil {
		return nil, zero, fmt.Errorf("create oasis files dir: %w", err)
	}

	files, err := exposures.GenerateFiles(ctx, exposures.FilesOptions{
		OasisFilesDir:           oasisDir,
		SourceExposuresPath:     sourcePath,
		SourceValidationPath:    sourceVal,
		SourceToCanonicalPath:   srcToCanon,
		CanonicalValidationPath: canonVal,
		CanonicalToModelPath:    canonToModel,
		ProfilePath:             profilePath,
		Lookup:                  lk,
		Logger:                  logger,
	})
	if err != nil {
		return nil, zero, err
	}
	logger.Printf("generated oasis files for %s in %s", id, oasisDir)
	return files, id, nil
}
