// Package config resolves command inputs from command-line overrides, a JSON
// configuration file, and per-parameter defaults, in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ConfigurationError reports a missing required parameter or an unusable
// configuration file. It is fatal before any workspace side effects.
type ConfigurationError struct {
	Name     string
	ConfPath string
	Msg      string
}

func (e *ConfigurationError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("configuration: %s: %s", e.Name, e.Msg)
	}
	return fmt.Sprintf("configuration: %s", e.Msg)
}

// InputValues is a merged view over command-line overrides and the JSON
// configuration file. Lookup order for every parameter: override, config
// file, default.
type InputValues struct {
	confPath  string
	confDir   string
	overrides map[string]string
	file      map[string]json.RawMessage
}

// Load builds an InputValues from the config file at confPath (ignored when
// absent) and the given command-line overrides. A present-but-unreadable
// config file is a ConfigurationError.
func Load(confPath string, overrides map[string]string) (*InputValues, error) {
	iv := &InputValues{
		confPath:  confPath,
		confDir:   filepath.Dir(confPath),
		overrides: overrides,
		file:      map[string]json.RawMessage{},
	}
	if iv.overrides == nil {
		iv.overrides = map[string]string{}
	}

	data, err := os.ReadFile(confPath)
	if os.IsNotExist(err) {
		return iv, nil
	}
	if err != nil {
		return nil, &ConfigurationError{ConfPath: confPath, Msg: fmt.Sprintf("cannot read config file %s: %v", confPath, err)}
	}
	if err := json.Unmarshal(data, &iv.file); err != nil {
		return nil, &ConfigurationError{ConfPath: confPath, Msg: fmt.Sprintf("config file %s is not valid JSON: %v", confPath, err)}
	}
	return iv, nil
}

// Get resolves a string parameter. When required and absent everywhere it
// returns a ConfigurationError naming the parameter and the config file.
func (iv *InputValues) Get(name, def string, required bool) (string, error) {
	if v, ok := iv.overrides[name]; ok && v != "" {
		return v, nil
	}
	if raw, ok := iv.file[name]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", &ConfigurationError{Name: name, ConfPath: iv.confPath, Msg: fmt.Sprintf("value in %s is not a string", iv.confPath)}
		}
		if s != "" {
			return s, nil
		}
	}
	if required && def == "" {
		return "", &ConfigurationError{
			Name:     name,
			ConfPath: iv.confPath,
			Msg:      fmt.Sprintf("not found in the command args or config file (%s) but is required", iv.confPath),
		}
	}
	return def, nil
}

// GetPath resolves a path parameter. Values taken from the config file are
// interpreted relative to the config file's directory; override values are
// relative to the working directory. The result is absolute.
func (iv *InputValues) GetPath(name, def string, required bool) (string, error) {
	if v, ok := iv.overrides[name]; ok && v != "" {
		return absPath(v, "")
	}
	if raw, ok := iv.file[name]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", &ConfigurationError{Name: name, ConfPath: iv.confPath, Msg: fmt.Sprintf("value in %s is not a string", iv.confPath)}
		}
		if s != "" {
			return absPath(s, iv.confDir)
		}
	}
	if def != "" {
		return absPath(def, "")
	}
	if required {
		return "", &ConfigurationError{
			Name:     name,
			ConfPath: iv.confPath,
			Msg:      fmt.Sprintf("not found in the command args or config file (%s) but is required", iv.confPath),
		}
	}
	return "", nil
}

// GetBool resolves a boolean parameter. Config-file values may be JSON
// booleans or the strings "true"/"false".
func (iv *InputValues) GetBool(name string, def bool) (bool, error) {
	if v, ok := iv.overrides[name]; ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, &ConfigurationError{Name: name, Msg: fmt.Sprintf("%q is not a boolean", v)}
		}
		return b, nil
	}
	raw, ok := iv.file[name]
	if !ok {
		return def, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if b, err := strconv.ParseBool(strings.ToLower(s)); err == nil {
			return b, nil
		}
	}
	return false, &ConfigurationError{Name: name, ConfPath: iv.confPath, Msg: fmt.Sprintf("value in %s is not a boolean", iv.confPath)}
}

// GetInt resolves an integer parameter.
func (iv *InputValues) GetInt(name string, def int) (int, error) {
	if v, ok := iv.overrides[name]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, &ConfigurationError{Name: name, Msg: fmt.Sprintf("%q is not an integer", v)}
		}
		return n, nil
	}
	raw, ok := iv.file[name]
	if !ok {
		return def, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, &ConfigurationError{Name: name, ConfPath: iv.confPath, Msg: fmt.Sprintf("value in %s is not an integer", iv.confPath)}
	}
	return n, nil
}

func absPath(p, base string) (string, error) {
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	if base != "" {
		return filepath.Abs(filepath.Join(base, p))
	}
	return filepath.Abs(p)
}
