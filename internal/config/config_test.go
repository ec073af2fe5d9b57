package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConf(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "oasisrun.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestGet_Precedence(t *testing.T) {
	dir := t.TempDir()
	conf := writeConf(t, dir, `{"keys_data_path": "from-file", "output_format": "json_keys"}`)

	iv, err := Load(conf, map[string]string{"keys_data_path": "from-cli"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	t.Run("override wins over file", func(t *testing.T) {
		v, err := iv.Get("keys_data_path", "", true)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if v != "from-cli" {
			t.Errorf("value = %q, want from-cli", v)
		}
	})

	t.Run("file wins over default", func(t *testing.T) {
		v, err := iv.Get("output_format", "oasis_keys", false)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if v != "json_keys" {
			t.Errorf("value = %q, want json_keys", v)
		}
	})

	t.Run("default when absent", func(t *testing.T) {
		v, err := iv.Get("ktools_script_name", "run_ktools", false)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if v != "run_ktools" {
			t.Errorf("value = %q, want run_ktools", v)
		}
	})

	t.Run("required and absent fails", func(t *testing.T) {
		_, err := iv.Get("model_data_path", "", true)
		var ce *ConfigurationError
		if !errors.As(err, &ce) {
			t.Fatalf("error = %v, want *ConfigurationError", err)
		}
		if ce.Name != "model_data_path" {
			t.Errorf("error names %q, want model_data_path", ce.Name)
		}
	})
}

func TestGetPath_RelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	conf := writeConf(t, dir, `{"keys_data_path": "keys_data"}`)

	iv, err := Load(conf, nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	v, err := iv.GetPath("keys_data_path", "", true)
	if err != nil {
		t.Fatalf("GetPath returned error: %v", err)
	}
	if want := filepath.Join(dir, "keys_data"); v != want {
		t.Errorf("path = %q, want %q", v, want)
	}
}

func TestGetPath_AbsoluteValueUnchanged(t *testing.T) {
	dir := t.TempDir()
	conf := writeConf(t, dir, `{"model_data_path": "/srv/model_data"}`)

	iv, err := Load(conf, nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	v, err := iv.GetPath("model_data_path", "", true)
	if err != nil {
		t.Fatalf("GetPath returned error: %v", err)
	}
	if v != "/srv/model_data" {
		t.Errorf("path = %q, want /srv/model_data", v)
	}
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	iv, err := Load(filepath.Join(t.TempDir(), "absent.json"), nil)
	if err != nil {
		t.Fatalf("Load returned error for absent file: %v", err)
	}
	if _, err := iv.Get("anything", "fallback", false); err != nil {
		t.Errorf("Get returned error: %v", err)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	conf := writeConf(t, dir, `{not json`)

	if _, err := Load(conf, nil); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}

func TestGetBoolAndInt(t *testing.T) {
	dir := t.TempDir()
	conf := writeConf(t, dir, `{"successes_only": "True", "no_execute": false, "ktools_num_processes": 4}`)

	iv, err := Load(conf, map[string]string{"health_check_attempts": "3"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if b, err := iv.GetBool("successes_only", false); err != nil || !b {
		t.Errorf("GetBool(successes_only) = %v, %v; want true, nil", b, err)
	}
	if b, err := iv.GetBool("no_execute", true); err != nil || b {
		t.Errorf("GetBool(no_execute) = %v, %v; want false, nil", b, err)
	}
	if n, err := iv.GetInt("ktools_num_processes", 1); err != nil || n != 4 {
		t.Errorf("GetInt(ktools_num_processes) = %d, %v; want 4, nil", n, err)
	}
	if n, err := iv.GetInt("health_check_attempts", 1); err != nil || n != 3 {
		t.Errorf("GetInt(health_check_attempts) = %d, %v; want 3, nil", n, err)
	}
	if _, err := iv.GetInt("missing", 7); err != nil {
		t.Errorf("GetInt default returned error: %v", err)
	}
}
