package lookup

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"oasisrun/internal/model"
)

// Output formats for saved key records.
const (
	FormatOasisKeys = "oasis_keys" // ktools keys CSV
	FormatJSONKeys  = "json_keys"  // raw key records as JSON
)

// OasisKeysHeader is the exact CSV header required by the binary encoder.
var OasisKeysHeader = []string{"LocID", "PerilID", "CoverageID", "AreaPerilID", "VulnerabilityID"}

// SaveOptions configures SaveKeys.
type SaveOptions struct {
	OutputPath    string
	Format        string // FormatOasisKeys or FormatJSONKeys
	SuccessesOnly bool
}

// SaveKeys streams key records to the output file as they arrive and
// returns the number of records written.
func SaveKeys(records <-chan model.KeyRecord, opts SaveOptions) (int, error) {
	f, err := os.Create(opts.OutputPath)
	if err != nil {
		return 0, fmt.Errorf("create keys output: %w", err)
	}
	defer f.Close()

	var n int
	switch opts.Format {
	case FormatOasisKeys:
		n, err = writeOasisKeys(records, f, opts.SuccessesOnly)
	case FormatJSONKeys:
		n, err = writeJSONKeys(records, f, opts.SuccessesOnly)
	default:
		return 0, fmt.Errorf("unknown keys output format %q", opts.Format)
	}
	if err != nil {
		return 0, err
	}
	return n, f.Sync()
}

func writeOasisKeys(records <-chan model.KeyRecord, f *os.File, successesOnly bool) (int, error) {
	w := csv.NewWriter(f)
	if err := w.Write(OasisKeysHeader); err != nil {
		return 0, fmt.Errorf("write keys header: %w", err)
	}
	n := 0
	for rec := range records {
		if successesOnly && rec.Status != model.KeyStatusSuccess {
			continue
		}
		row := []string{
			strconv.Itoa(rec.LocID),
			strconv.Itoa(rec.PerilID),
			strconv.Itoa(rec.CoverageID),
			strconv.Itoa(rec.AreaPerilID),
			strconv.Itoa(rec.VulnerabilityID),
		}
		if err := w.Write(row); err != nil {
			return 0, fmt.Errorf("write keys row: %w", err)
		}
		n++
	}
	w.Flush()
	return n, w.Error()
}

func writeJSONKeys(records <-chan model.KeyRecord, f *os.File, successesOnly bool) (int, error) {
	enc := json.NewEncoder(f)
	n := 0
	if _, err := f.WriteString("[\n"); err != nil {
		return 0, err
	}
	for rec := range records {
		if successesOnly && rec.Status != model.KeyStatusSuccess {
			continue
		}
		if n > 0 {
			if _, err := f.WriteString(",\n"); err != nil {
				return 0, err
			}
		}
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("encode keys record: %w", err)
		}
		n++
	}
	if _, err := f.WriteString("]\n"); err != nil {
		return 0, err
	}
	return n, nil
}

// DefaultKeysFileName is the timestamped output name used when the caller
// does not provide one: <supplier>-<model>-<version>-keys-<timestamp>.<ext>.
func DefaultKeysFileName(id model.ModelIdentity, format string, now time.Time) string {
	ext := "csv"
	if format == FormatJSONKeys {
		ext = "json"
	}
	return fmt.Sprintf("%s-keys-%s.%s", id.Slug(), now.UTC().Format("20060102150405"), ext)
}
