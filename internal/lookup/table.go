package lookup

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"oasisrun/internal/model"
)

func init() {
	Register("table", NewTableLookup)
}

// perilCoverage is one cell of the model's (peril, coverage) space.
type perilCoverage struct {
	PerilID    int
	CoverageID int
}

type tableKey struct {
	LocID int
	perilCoverage
}

type tableEntry struct {
	AreaPerilID     int
	VulnerabilityID int
}

// TableLookup is the built-in resolver: risk keys are read from a keys.csv
// table in the keys data directory with columns
// loc_id,peril_id,coverage_id,area_peril_id,vulnerability_id. The distinct
// (peril, coverage) pairs in the table define the model's peril/coverage
// space; locations with no table entry resolve to nomatch records.
type TableLookup struct {
	identity model.ModelIdentity
	space    []perilCoverage
	entries  map[tableKey]tableEntry
}

// NewTableLookup loads keys.csv from keysDataPath.
func NewTableLookup(keysDataPath string, id model.ModelIdentity) (Lookup, error) {
	path := filepath.Join(keysDataPath, "keys.csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keys table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read keys table header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	for _, name := range []string{"loc_id", "peril_id", "coverage_id", "area_peril_id", "vulnerability_id"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("keys table %s: missing column %q", path, name)
		}
	}

	t := &TableLookup{
		identity: id,
		entries:  map[tableKey]tableEntry{},
	}
	space := map[perilCoverage]bool{}
	for row := 2; ; row++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read keys table %s: %w", path, err)
		}
		ints := make([]int, len(header))
		for i := range header {
			n, err := strconv.Atoi(rec[i])
			if err != nil {
				return nil, fmt.Errorf("keys table %s row %d: %q is not an integer", path, row, rec[i])
			}
			ints[i] = n
		}
		pc := perilCoverage{PerilID: ints[col["peril_id"]], CoverageID: ints[col["coverage_id"]]}
		space[pc] = true
		t.entries[tableKey{LocID: ints[col["loc_id"]], perilCoverage: pc}] = tableEntry{
			AreaPerilID:     ints[col["area_peril_id"]],
			VulnerabilityID: ints[col["vulnerability_id"]],
		}
	}
	if len(space) == 0 {
		return nil, fmt.Errorf("keys table %s has no data rows", path)
	}

	for pc := range space {
		t.space = append(t.space, pc)
	}
	sort.Slice(t.space, func(i, j int) bool {
		if t.space[i].PerilID != t.space[j].PerilID {
			return t.space[i].PerilID < t.space[j].PerilID
		}
		return t.space[i].CoverageID < t.space[j].CoverageID
	})
	return t, nil
}

// ProcessLocations emits one KeyRecord per (location, peril, coverage)
// triple, in input order and peril/coverage order within each location.
func (t *TableLookup) ProcessLocations(ctx context.Context, locs <-chan model.ExposureRecord) <-chan model.KeyRecord {
	out := make(chan model.KeyRecord)
	go func() {
		defer close(out)
		for loc := range locs {
			for _, rec := range t.resolveLocation(loc) {
				select {
				case out <- rec:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (t *TableLookup) resolveLocation(loc model.ExposureRecord) []model.KeyRecord {
	records := make([]model.KeyRecord, 0, len(t.space))

	raw, ok := loc.Field("loc_id", "locid", "id")
	if !ok {
		for _, pc := range t.space {
			records = append(records, model.KeyRecord{
				PerilID:    pc.PerilID,
				CoverageID: pc.CoverageID,
				Status:     model.KeyStatusFail,
				Message:    "location has no loc_id field",
			})
		}
		return records
	}
	locID, err := strconv.Atoi(raw)
	if err != nil {
		for _, pc := range t.space {
			records = append(records, model.KeyRecord{
				PerilID:    pc.PerilID,
				CoverageID: pc.CoverageID,
				Status:     model.KeyStatusFail,
				Message:    fmt.Sprintf("loc_id %q is not an integer", raw),
			})
		}
		return records
	}

	for _, pc := range t.space {
		rec := model.KeyRecord{
			LocID:      locID,
			PerilID:    pc.PerilID,
			CoverageID: pc.CoverageID,
		}
		if entry, ok := t.entries[tableKey{LocID: locID, perilCoverage: pc}]; ok {
			rec.AreaPerilID = entry.AreaPerilID
			rec.VulnerabilityID = entry.VulnerabilityID
			rec.Status = model.KeyStatusSuccess
		} else {
			rec.Status = model.KeyStatusNoMatch
			rec.Message = "no matching key in model data"
		}
		records = append(records, rec)
	}
	return records
}
