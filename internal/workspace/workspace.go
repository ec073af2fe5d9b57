// Package workspace prepares run directories for the loss calculation
// engine: the fixed five-directory layout, staged input files, the analysis
// settings document, and the model's static data.
package workspace

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"oasisrun/internal/fsutil"
)

// RunDirs are the five directories every run workspace carries.
var RunDirs = []string{"fifo", "input", "output", "static", "work"}

// SettingsFileName is the fixed name of the staged analysis settings
// document in the run root.
const SettingsFileName = "analysis_settings.json"

// Options controls workspace preparation.
type Options struct {
	// CopyModelData forces copying the model data into static/ instead of
	// symlinking it. Copying is also the fallback when symlinks fail.
	CopyModelData bool
	Logger        *log.Logger
}

// Prepare builds the run workspace under runDir: the five run directories,
// the Oasis CSVs under input/csv/, the analysis settings document at the run
// root, and the model data under static/. Preparation is idempotent and
// never removes files already present in the workspace.
func Prepare(runDir, oasisFilesDir, settingsPath, modelDataDir string, opts Options) error {
	for _, d := range RunDirs {
		if err := os.MkdirAll(filepath.Join(runDir, d), 0755); err != nil {
			return fmt.Errorf("create run directory %s: %w", d, err)
		}
	}

	if oasisFilesDir != "" {
		csvDir := filepath.Join(runDir, "input", "csv")
		if err := stageInputs(oasisFilesDir, csvDir); err != nil {
			return err
		}
	}

	if settingsPath != "" {
		data, err := os.ReadFile(settingsPath)
		if err != nil {
			return fmt.Errorf("read analysis settings: %w", err)
		}
		if err := fsutil.AtomicWrite(filepath.Join(runDir, SettingsFileName), data, 0644); err != nil {
			return err
		}
	}

	if modelDataDir != "" {
		if err := stageModelData(modelDataDir, filepath.Join(runDir, "static"), opts); err != nil {
			return err
		}
	}

	if opts.Logger != nil {
		opts.Logger.Printf("prepared run workspace at %s", runDir)
	}
	return nil
}

// stageInputs copies the CSV inputs into input/csv/, overwriting stale
// copies but leaving unrelated files alone.
func stageInputs(srcDir, dstDir string) error {
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return fmt.Errorf("create input/csv: %w", err)
	}
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return fmt.Errorf("read oasis files dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		src := filepath.Join(srcDir, e.Name())
		dst := filepath.Join(dstDir, e.Name())
		if err := fsutil.CopyFile(src, dst); err != nil {
			return fmt.Errorf("stage %s: %w", e.Name(), err)
		}
	}
	return nil
}

// stageModelData links each entry of the model data directory into static/.
// Symlinks keep large model data out of the workspace; a copy is used when
// requested or when the filesystem refuses the link.
func stageModelData(modelDataDir, staticDir string, opts Options) error {
	abs, err := filepath.Abs(modelDataDir)
	if err != nil {
		return fmt.Errorf("resolve model data dir: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return fmt.Errorf("read model data dir: %w", err)
	}
	for _, e := range entries {
		src := filepath.Join(abs, e.Name())
		dst := filepath.Join(staticDir, e.Name())
		if _, err := os.Lstat(dst); err == nil {
			continue
		}
		if opts.CopyModelData {
			if err := copyEntry(src, dst, e.IsDir()); err != nil {
				return err
			}
			continue
		}
		if err := os.Symlink(src, dst); err != nil {
			if opts.Logger != nil {
				opts.Logger.Printf("symlink %s failed (%v), copying instead", e.Name(), err)
			}
			if err := copyEntry(src, dst, e.IsDir()); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyEntry(src, dst string, isDir bool) error {
	if isDir {
		if err := fsutil.CopyDir(src, dst); err != nil {
			return fmt.Errorf("copy model data dir %s: %w", filepath.Base(src), err)
		}
		return nil
	}
	if err := fsutil.CopyFile(src, dst); err != nil {
		return fmt.Errorf("copy model data file %s: %w", filepath.Base(src), err)
	}
	return nil
}
