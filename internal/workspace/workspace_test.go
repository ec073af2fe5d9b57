package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func setup(t *testing.T) (oasisDir, settingsPath, modelDataDir string) {
	t.Helper()
	oasisDir = t.TempDir()
	for _, name := range []string{"items.csv", "coverages.csv", "gulsummaryxref.csv"} {
		if err := os.WriteFile(filepath.Join(oasisDir, name), []byte(name+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	settingsPath = filepath.Join(t.TempDir(), "settings.json")
	settings := `{"analysis_settings": {"gul_output": true, "il_output": false, "number_of_samples": 10}}`
	if err := os.WriteFile(settingsPath, []byte(settings), 0644); err != nil {
		t.Fatal(err)
	}

	modelDataDir = t.TempDir()
	if err := os.WriteFile(filepath.Join(modelDataDir, "footprint.bin"), []byte{1, 2, 3}, 0644); err != nil {
		t.Fatal(err)
	}
	return oasisDir, settingsPath, modelDataDir
}

func TestPrepare(t *testing.T) {
	oasisDir, settingsPath, modelDataDir := setup(t)
	runDir := filepath.Join(t.TempDir(), "run")

	if err := Prepare(runDir, oasisDir, settingsPath, modelDataDir, Options{}); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}

	for _, d := range RunDirs {
		info, err := os.Stat(filepath.Join(runDir, d))
		if err != nil || !info.IsDir() {
			t.Errorf("run directory %s missing: %v", d, err)
		}
	}

	for _, name := range []string{"items.csv", "coverages.csv", "gulsummaryxref.csv"} {
		data, err := os.ReadFile(filepath.Join(runDir, "input", "csv", name))
		if err != nil {
			t.Errorf("staged input %s missing: %v", name, err)
			continue
		}
		if string(data) != name+"\n" {
			t.Errorf("staged input %s content = %q", name, data)
		}
	}

	staged, err := os.ReadFile(filepath.Join(runDir, SettingsFileName))
	if err != nil {
		t.Fatalf("staged settings missing: %v", err)
	}
	original, _ := os.ReadFile(settingsPath)
	if string(staged) != string(original) {
		t.Error("settings were not copied verbatim")
	}

	// Model data is symlinked by default.
	link := filepath.Join(runDir, "static", "footprint.bin")
	info, err := os.Lstat(link)
	if err != nil {
		t.Fatalf("static model data missing: %v", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Error("model data was copied, expected a symlink")
	}
	data, err := os.ReadFile(link)
	if err != nil || string(data) != "\x01\x02\x03" {
		t.Errorf("model data unreadable through link: %v", err)
	}
}

func TestPrepare_CopyModelData(t *testing.T) {
	oasisDir, settingsPath, modelDataDir := setup(t)
	runDir := filepath.Join(t.TempDir(), "run")

	if err := Prepare(runDir, oasisDir, settingsPath, modelDataDir, Options{CopyModelData: true}); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}

	info, err := os.Lstat(filepath.Join(runDir, "static", "footprint.bin"))
	if err != nil {
		t.Fatalf("static model data missing: %v", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		t.Error("model data was symlinked, expected a copy")
	}
}

func TestPrepare_Idempotent(t *testing.T) {
	oasisDir, settingsPath, modelDataDir := setup(t)
	runDir := filepath.Join(t.TempDir(), "run")

	if err := Prepare(runDir, oasisDir, settingsPath, modelDataDir, Options{}); err != nil {
		t.Fatal(err)
	}

	// A file produced by an earlier run must survive re-preparation.
	marker := filepath.Join(runDir, "output", "gulcalc.csv")
	if err := os.WriteFile(marker, []byte("loss\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Prepare(runDir, oasisDir, settingsPath, modelDataDir, Options{}); err != nil {
		t.Fatalf("second Prepare returned error: %v", err)
	}

	data, err := os.ReadFile(marker)
	if err != nil || string(data) != "loss\n" {
		t.Errorf("existing output was not preserved: %v", err)
	}
}

func TestPrepare_ExistingRootIsNotWiped(t *testing.T) {
	oasisDir, settingsPath, modelDataDir := setup(t)
	runDir := t.TempDir()
	extra := filepath.Join(runDir, "notes.txt")
	if err := os.WriteFile(extra, []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Prepare(runDir, oasisDir, settingsPath, modelDataDir, Options{}); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}

	if _, err := os.Stat(extra); err != nil {
		t.Errorf("pre-existing file removed: %v", err)
	}
}

func TestPrepare_OptionalPieces(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "run")
	if err := Prepare(runDir, "", "", "", Options{}); err != nil {
		t.Fatalf("Prepare with only a run dir returned error: %v", err)
	}
	for _, d := range RunDirs {
		if _, err := os.Stat(filepath.Join(runDir, d)); err != nil {
			t.Errorf("run directory %s missing: %v", d, err)
		}
	}
}
