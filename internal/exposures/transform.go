// Package exposures transforms source exposure data through canonical and
// model schemas and emits the fixed Oasis input file set.
package exposures

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"oasisrun/internal/model"
)

// FieldMapping maps one source field to one output field. Default fills the
// output field when the source field is absent.
type FieldMapping struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Default string `json:"default,omitempty"`
}

// TransformDoc is the declarative schema transformation applied between
// pipeline stages. An empty mapping list passes records through unchanged.
type TransformDoc struct {
	Mappings []FieldMapping `json:"mappings"`
}

// LoadTransformDoc reads a transform document from JSON.
func LoadTransformDoc(path string) (*TransformDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.ValidationError{File: path, Msg: fmt.Sprintf("cannot read transform document: %v", err)}
	}
	var doc TransformDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &model.ValidationError{File: path, Msg: fmt.Sprintf("invalid transform document: %v", err)}
	}
	return &doc, nil
}

// Apply transforms one record. With mappings, only mapped fields appear in
// the output; without, the record passes through unchanged.
func (d *TransformDoc) Apply(rec model.ExposureRecord) model.ExposureRecord {
	if len(d.Mappings) == 0 {
		return rec
	}
	out := model.ExposureRecord{}
	for _, m := range d.Mappings {
		if v, ok := rec[m.From]; ok && v != "" {
			out[m.To] = v
		} else if m.Default != "" {
			out[m.To] = m.Default
		}
	}
	return out
}

// OutputFields returns the transform's output column order. For a
// pass-through document it returns nil (callers fall back to sorted names).
func (d *TransformDoc) OutputFields() []string {
	if len(d.Mappings) == 0 {
		return nil
	}
	seen := map[string]bool{}
	var fields []string
	for _, m := range d.Mappings {
		if !seen[m.To] {
			seen[m.To] = true
			fields = append(fields, m.To)
		}
	}
	return fields
}

// ValidationDoc declares schema constraints checked before a transform
// stage runs.
type ValidationDoc struct {
	RequiredFields []string `json:"required_fields"`
	NumericFields  []string `json:"numeric_fields"`
	IntegerFields  []string `json:"integer_fields"`
}

// LoadValidationDoc reads a validation document from JSON.
func LoadValidationDoc(path string) (*ValidationDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.ValidationError{File: path, Msg: fmt.Sprintf("cannot read validation document: %v", err)}
	}
	var doc ValidationDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &model.ValidationError{File: path, Msg: fmt.Sprintf("invalid validation document: %v", err)}
	}
	return &doc, nil
}

// Validate checks every record against the document. The first violation is
// returned as a fatal ValidationError identifying the offending file and row
// (1-based, excluding the header).
func (d *ValidationDoc) Validate(records []model.ExposureRecord, file string) error {
	for i, rec := range records {
		row := i + 1
		for _, f := range d.RequiredFields {
			if _, ok := rec.Field(f); !ok {
				return &model.ValidationError{File: file, Row: row, Msg: fmt.Sprintf("missing required field %q", f)}
			}
		}
		for _, f := range d.NumericFields {
			v, ok := rec.Field(f)
			if !ok {
				continue
			}
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return &model.ValidationError{File: file, Row: row, Msg: fmt.Sprintf("field %q: %q is not numeric", f, v)}
			}
		}
		for _, f := range d.IntegerFields {
			v, ok := rec.Field(f)
			if !ok {
				continue
			}
			if _, err := strconv.Atoi(v); err != nil {
				return &model.ValidationError{File: file, Row: row, Msg: fmt.Sprintf("field %q: %q is not an integer", f, v)}
			}
		}
	}
	return nil
}
