// Package model defines the data structures shared across the run pipeline:
// model identities, key records, exposure records and analysis settings.
package model

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// KeyStatus is the outcome of resolving one (location, peril, coverage) triple.
type KeyStatus string

const (
	KeyStatusSuccess KeyStatus = "success"
	KeyStatusFail    KeyStatus = "fail"
	KeyStatusNoMatch KeyStatus = "nomatch"
)

// ModelIdentity is the immutable (supplier, model, version) triple that
// identifies a resolver/engine pairing. It namespaces lookup-service routes
// and output filenames.
type ModelIdentity struct {
	SupplierID   string
	ModelID      string
	ModelVersion string
}

func (m ModelIdentity) String() string {
	return fmt.Sprintf("%s/%s/%s", m.SupplierID, m.ModelID, m.ModelVersion)
}

// Slug returns the filename prefix for this model: supplier and model are
// lowercased, the version is kept verbatim.
func (m ModelIdentity) Slug() string {
	return fmt.Sprintf("%s-%s-%s", strings.ToLower(m.SupplierID), strings.ToLower(m.ModelID), m.ModelVersion)
}

// LoadModelIdentity reads a model version file: a single CSV row of
// supplier_id,model_id,model_version.
func LoadModelIdentity(path string) (ModelIdentity, error) {
	f, err := os.Open(path)
	if err != nil {
		return ModelIdentity{}, fmt.Errorf("open model version file: %w", err)
	}
	defer f.Close()

	row, err := csv.NewReader(f).Read()
	if err != nil {
		return ModelIdentity{}, fmt.Errorf("read model version file %s: %w", path, err)
	}
	if len(row) != 3 {
		return ModelIdentity{}, fmt.Errorf("model version file %s: expected 3 fields, got %d", path, len(row))
	}
	return ModelIdentity{
		SupplierID:   strings.TrimSpace(row[0]),
		ModelID:      strings.TrimSpace(row[1]),
		ModelVersion: strings.TrimSpace(row[2]),
	}, nil
}

// KeyRecord is one resolved risk key for a (location, peril, coverage)
// triple. The JSON field names are part of the lookup-service wire contract.
type KeyRecord struct {
	LocID           int       `json:"id"`
	PerilID         int       `json:"peril_id"`
	CoverageID      int       `json:"coverage"`
	AreaPerilID     int       `json:"area_peril_id"`
	VulnerabilityID int       `json:"vulnerability_id"`
	Status          KeyStatus `json:"status"`
	Message         string    `json:"message"`
}

// ExposureRecord is one row of model-defined fields describing an insured
// location. Field names are normalized to lower case on ingest; values flow
// through unchanged as their source text.
type ExposureRecord map[string]string

// Field returns the named field, trying each alias in order. The second
// return is false when no alias is present or the cell is empty.
func (r ExposureRecord) Field(aliases ...string) (string, bool) {
	for _, a := range aliases {
		if v, ok := r[a]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}
