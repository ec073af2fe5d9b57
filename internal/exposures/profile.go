package exposures

import (
	"encoding/json"
	"fmt"
	"os"

	"oasisrun/internal/model"
)

// CoverageSpec binds one coverage type to the canonical field carrying its
// total insured value.
type CoverageSpec struct {
	CoverageTypeID int    `json:"coverage_type_id"`
	TIVField       string `json:"tiv_field"`
}

// CanonicalProfile is the supplier's canonical exposures profile: which
// field identifies the location and which fields carry TIVs per coverage
// type. Coverage order in the profile fixes item ordering in the generated
// files.
type CanonicalProfile struct {
	LocationField string         `json:"location_field"`
	Coverages     []CoverageSpec `json:"coverages"`
}

// LoadCanonicalProfile reads and checks the canonical exposures profile.
func LoadCanonicalProfile(path string) (*CanonicalProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.ValidationError{File: path, Msg: fmt.Sprintf("cannot read canonical profile: %v", err)}
	}
	var p CanonicalProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &model.ValidationError{File: path, Msg: fmt.Sprintf("invalid canonical profile: %v", err)}
	}
	if len(p.Coverages) == 0 {
		return nil, &model.ValidationError{File: path, Msg: "canonical profile declares no coverages"}
	}
	for i, c := range p.Coverages {
		if c.TIVField == "" {
			return nil, &model.ValidationError{File: path, Msg: fmt.Sprintf("coverage %d has no tiv_field", i)}
		}
	}
	if p.LocationField == "" {
		p.LocationField = "loc_id"
	}
	return &p, nil
}
