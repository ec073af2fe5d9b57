package model

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ValidationError reports a malformed input document (analysis settings,
// exposure files, transform documents). It is fatal: nothing may be spawned
// after one is raised.
type ValidationError struct {
	File string
	Row  int // 0 when the failure is not row-specific
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("validation failed: %s row %d: %s", e.File, e.Row, e.Msg)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.File, e.Msg)
}

// AnalysisSettings holds the per-analysis configuration consumed by the
// execution plan generator. GULOutput and ILOutput select the two loss
// output chains.
type AnalysisSettings struct {
	SourceTag       string         `json:"source_tag"`
	AnalysisTag     string         `json:"analysis_tag"`
	GULOutput       bool           `json:"-"`
	ILOutput        bool           `json:"-"`
	NumberOfSamples int            `json:"number_of_samples"`
	GULThreshold    float64        `json:"gul_threshold"`
	ModelSettings   map[string]any `json:"model_settings"`
}

// LoadAnalysisSettings reads an analysis settings JSON file. A top-level
// "analysis_settings" wrapper object is accepted and unwrapped. The GUL and
// IL output toggles must both be present (bool, or the strings "true" /
// "false"); anything malformed is a fatal ValidationError.
func LoadAnalysisSettings(path string) (*AnalysisSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ValidationError{File: path, Msg: fmt.Sprintf("cannot read analysis settings: %v", err)}
	}
	return ParseAnalysisSettings(data, path)
}

// ParseAnalysisSettings parses analysis settings JSON. The name argument is
// used in diagnostics only.
func ParseAnalysisSettings(data []byte, name string) (*AnalysisSettings, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{File: name, Msg: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if inner, ok := raw["analysis_settings"]; ok {
		if err := json.Unmarshal(inner, &raw); err != nil {
			return nil, &ValidationError{File: name, Msg: fmt.Sprintf("invalid analysis_settings object: %v", err)}
		}
	}

	var s AnalysisSettings
	if err := unmarshalFields(raw, &s, name); err != nil {
		return nil, err
	}

	gul, err := parseToggle(raw, "gul_output", name)
	if err != nil {
		return nil, err
	}
	il, err := parseToggle(raw, "il_output", name)
	if err != nil {
		return nil, err
	}
	s.GULOutput = gul
	s.ILOutput = il

	if !s.GULOutput && !s.ILOutput {
		return nil, &ValidationError{File: name, Msg: "neither gul_output nor il_output is enabled"}
	}
	return &s, nil
}

func unmarshalFields(raw map[string]json.RawMessage, s *AnalysisSettings, name string) error {
	for key, dst := range map[string]any{
		"source_tag":        &s.SourceTag,
		"analysis_tag":      &s.AnalysisTag,
		"number_of_samples": &s.NumberOfSamples,
		"gul_threshold":     &s.GULThreshold,
		"model_settings":    &s.ModelSettings,
	} {
		msg, ok := raw[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(msg, dst); err != nil {
			return &ValidationError{File: name, Msg: fmt.Sprintf("invalid %s: %v", key, err)}
		}
	}
	return nil
}

// parseToggle accepts a JSON bool or the strings "true"/"false" for
// compatibility with settings files produced by older tooling.
func parseToggle(raw map[string]json.RawMessage, key, name string) (bool, error) {
	msg, ok := raw[key]
	if !ok {
		return false, &ValidationError{File: name, Msg: fmt.Sprintf("missing required toggle %q", key)}
	}
	var b bool
	if err := json.Unmarshal(msg, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		switch strings.ToLower(s) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, &ValidationError{File: name, Msg: fmt.Sprintf("toggle %q must be a boolean", key)}
}
