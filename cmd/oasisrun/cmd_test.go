package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"oasisrun/internal/workspace"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// modelFixture lays out keys data, a version file and a 2-row exposure file
// for the AcmeCo Flood01 model with a single peril/coverage pair.
func modelFixture(t *testing.T) (keysDir, versionFile, exposuresPath string) {
	t.Helper()
	dir := t.TempDir()
	keysDir = filepath.Join(dir, "keys_data")
	writeFile(t, filepath.Join(keysDir, "keys.csv"),
		"loc_id,peril_id,coverage_id,area_peril_id,vulnerability_id\n"+
			"10,1,1,54,7\n"+
			"20,1,1,55,9\n")
	versionFile = writeFile(t, filepath.Join(dir, "ModelVersion.csv"), "AcmeCo,Flood01,1.0\n")
	exposuresPath = writeFile(t, filepath.Join(dir, "exposures.csv"), "loc_id\n10\n20\n")
	return keysDir, versionFile, exposuresPath
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func TestGenerateKeysCommand(t *testing.T) {
	keysDir, versionFile, exposuresPath := modelFixture(t)
	out := filepath.Join(t.TempDir(), "keys.csv")

	err := execute(t, "generate-keys",
		"--config", filepath.Join(t.TempDir(), "absent.json"),
		"--keys-data-path", keysDir,
		"--model-version-file-path", versionFile,
		"--lookup-package-path", filepath.Join(keysDir, "table.py"),
		"--model-exposures-file-path", exposuresPath,
		"--output-file-path", out,
	)
	if err != nil {
		t.Fatalf("generate-keys returned error: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "LocID,PerilID,CoverageID,AreaPerilID,VulnerabilityID" {
		t.Errorf("header = %q", lines[0])
	}
	if len(lines) != 3 {
		t.Errorf("rows = %d, want header plus 2 data rows", len(lines)-1)
	}
}

func TestGenerateKeysCommand_MissingRequiredParameter(t *testing.T) {
	err := execute(t, "generate-keys",
		"--config", filepath.Join(t.TempDir(), "absent.json"),
		"--keys-data-path", t.TempDir(),
	)
	if err == nil {
		t.Fatal("expected required-value error")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %v, want a required-value diagnostic", err)
	}
}

func TestGenerateKeysCommand_ConfigFileRelativePaths(t *testing.T) {
	keysDir, versionFile, exposuresPath := modelFixture(t)

	// Paths in the config file resolve relative to the config file's
	// directory, not the working directory.
	confDir := filepath.Dir(keysDir)
	confPath := writeFile(t, filepath.Join(confDir, "oasisrun.json"),
		`{"keys_data_path": "keys_data",
		  "model_version_file_path": "ModelVersion.csv",
		  "lookup_package_path": "keys_data/table.py"}`)
	_ = versionFile

	out := filepath.Join(t.TempDir(), "keys.csv")
	err := execute(t, "generate-keys",
		"--config", confPath,
		"--model-exposures-file-path", exposuresPath,
		"--output-file-path", out,
	)
	if err != nil {
		t.Fatalf("generate-keys returned error: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("keys output missing: %v", err)
	}
}

func TestGenerateLossesCommand_NoExecute(t *testing.T) {
	dir := t.TempDir()

	oasisDir := filepath.Join(dir, "oasis")
	writeFile(t, filepath.Join(oasisDir, "items.csv"),
		"item_id,coverage_id,areaperil_id,vulnerability_id,group_id\n1,1,54,7,1\n")
	writeFile(t, filepath.Join(oasisDir, "coverages.csv"), "coverage_id,tiv\n1,100000\n")
	writeFile(t, filepath.Join(oasisDir, "gulsummaryxref.csv"), "coverage_id,summary_id,summaryset_id\n1,1,1\n")

	settingsPath := writeFile(t, filepath.Join(dir, "analysis_settings.json"),
		`{"analysis_settings": {"gul_output": true, "il_output": false, "number_of_samples": 10}}`)

	modelData := filepath.Join(dir, "model_data")
	writeFile(t, filepath.Join(modelData, "footprint.bin"), "x")

	runDir := filepath.Join(dir, "run")
	err := execute(t, "generate-losses",
		"--config", filepath.Join(dir, "absent.json"),
		"--oasis-files-path", oasisDir,
		"--analysis-settings-json-file-path", settingsPath,
		"--model-data-path", modelData,
		"--model-run-dir-path", runDir,
		"--ktools-num-processes", "2",
		"--no-execute",
	)
	if err != nil {
		t.Fatalf("generate-losses returned error: %v", err)
	}

	script := filepath.Join(runDir, "run_ktools.sh")
	info, err := os.Stat(script)
	if err != nil {
		t.Fatalf("run script missing: %v", err)
	}
	if info.Mode().Perm() != 0755 {
		t.Errorf("script mode = %v, want 0755", info.Mode().Perm())
	}
	content, _ := os.ReadFile(script)
	if !strings.Contains(string(content), "eve 1 2") {
		t.Error("script missing the first event chain")
	}

	// The engine must not have been invoked.
	if _, err := os.Stat(filepath.Join(runDir, "output", "gulcalc.csv")); !os.IsNotExist(err) {
		t.Error("engine output exists despite --no-execute")
	}

	// Inputs were staged and binary encoded.
	if _, err := os.Stat(filepath.Join(runDir, "input", "items.bin")); err != nil {
		t.Errorf("binary input missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(runDir, workspace.SettingsFileName)); err != nil {
		t.Errorf("staged settings missing: %v", err)
	}
}
