package exposures

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"oasisrun/internal/fsutil"
	"oasisrun/internal/lookup"
	"oasisrun/internal/model"
)

// Fixed Oasis file names. Column presence and order in these files is the
// wire contract with the binary encoder.
const (
	ItemsFile          = "items.csv"
	CoveragesFile      = "coverages.csv"
	GulSummaryXrefFile = "gulsummaryxref.csv"

	canonicalExposuresFile = "canonical_exposures.csv"
	modelExposuresFile     = "model_exposures.csv"
)

// FilesOptions configures one run of the exposure transform pipeline.
// Validation paths are optional; transform and profile paths are required.
type FilesOptions struct {
	OasisFilesDir string

	SourceExposuresPath     string
	SourceValidationPath    string
	SourceToCanonicalPath   string
	CanonicalValidationPath string
	CanonicalToModelPath    string
	ProfilePath             string

	Lookup lookup.Lookup
	Logger *log.Logger
}

// Files lists the generated file paths.
type Files struct {
	CanonicalExposures string
	ModelExposures     string
	Items              string
	Coverages          string
	GulSummaryXref     string
}

// GenerateFiles runs the three-stage transform (source -> canonical ->
// model), joins the model exposures with resolved keys, and writes the Oasis
// file set. Output is deterministic: identical inputs yield byte-identical
// files.
func GenerateFiles(ctx context.Context, opts FilesOptions) (*Files, error) {
	srcToCanon, err := LoadTransformDoc(opts.SourceToCanonicalPath)
	if err != nil {
		return nil, err
	}
	canonToModel, err := LoadTransformDoc(opts.CanonicalToModelPath)
	if err != nil {
		return nil, err
	}
	profile, err := LoadCanonicalProfile(opts.ProfilePath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(opts.SourceExposuresPath)
	if err != nil {
		return nil, fmt.Errorf("open source exposures: %w", err)
	}
	source, err := model.DecodeExposuresCSV(f)
	f.Close()
	if err != nil {
		return nil, &model.ValidationError{File: opts.SourceExposuresPath, Msg: err.Error()}
	}

	if err := validateStage(source, opts.SourceValidationPath, opts.SourceExposuresPath); err != nil {
		return nil, err
	}

	canonical := applyAll(srcToCanon, source)
	files := &Files{CanonicalExposures: filepath.Join(opts.OasisFilesDir, canonicalExposuresFile)}
	if err := writeExposuresCSV(files.CanonicalExposures, canonical, srcToCanon.OutputFields()); err != nil {
		return nil, err
	}

	if err := validateStage(canonical, opts.CanonicalValidationPath, files.CanonicalExposures); err != nil {
		return nil, err
	}

	modelRecs := applyAll(canonToModel, canonical)
	files.ModelExposures = filepath.Join(opts.OasisFilesDir, modelExposuresFile)
	if err := writeExposuresCSV(files.ModelExposures, modelRecs, canonToModel.OutputFields()); err != nil {
		return nil, err
	}

	if opts.Logger != nil {
		opts.Logger.Printf("resolving keys for %d model exposure records", len(modelRecs))
	}
	keys := collectKeys(ctx, opts.Lookup, modelRecs)

	if err := writeOasisFiles(opts.OasisFilesDir, modelRecs, profile, keys, files, opts.Logger); err != nil {
		return nil, err
	}
	return files, nil
}

func validateStage(records []model.ExposureRecord, docPath, file string) error {
	if docPath == "" {
		return nil
	}
	doc, err := LoadValidationDoc(docPath)
	if err != nil {
		return err
	}
	return doc.Validate(records, file)
}

func applyAll(doc *TransformDoc, records []model.ExposureRecord) []model.ExposureRecord {
	out := make([]model.ExposureRecord, len(records))
	for i, rec := range records {
		out[i] = doc.Apply(rec)
	}
	return out
}

// collectKeys drains the lookup stream, keeping only successful records.
func collectKeys(ctx context.Context, lk lookup.Lookup, records []model.ExposureRecord) []model.KeyRecord {
	var keys []model.KeyRecord
	for rec := range lk.ProcessLocations(ctx, model.StreamRecords(ctx, records)) {
		if rec.Status == model.KeyStatusSuccess {
			keys = append(keys, rec)
		}
	}
	return keys
}

// writeOasisFiles joins model exposures with key records on (location,
// coverage) and emits items.csv, coverages.csv and gulsummaryxref.csv.
// Item IDs are assigned in record order, then profile coverage order, then
// key arrival order. Records without a usable location or TIV are skipped
// and counted, so an unexpectedly thin items file is traceable to its cause.
func writeOasisFiles(dir string, records []model.ExposureRecord, profile *CanonicalProfile, keys []model.KeyRecord, files *Files, logger *log.Logger) error {
	var items, coverages, xref bytes.Buffer
	itemsW := csv.NewWriter(&items)
	coveragesW := csv.NewWriter(&coverages)
	xrefW := csv.NewWriter(&xref)

	_ = itemsW.Write([]string{"item_id", "coverage_id", "areaperil_id", "vulnerability_id", "group_id"})
	_ = coveragesW.Write([]string{"coverage_id", "tiv"})
	_ = xrefW.Write([]string{"coverage_id", "summary_id", "summaryset_id"})

	var skippedLocs, skippedTIVs int
	next := 1
	for i, rec := range records {
		locRaw, ok := rec.Field(profile.LocationField)
		if !ok {
			skippedLocs++
			continue
		}
		locID, err := strconv.Atoi(locRaw)
		if err != nil {
			skippedLocs++
			continue
		}
		groupID := i + 1

		for _, cov := range profile.Coverages {
			tivRaw, ok := rec.Field(cov.TIVField)
			if !ok {
				continue
			}
			tiv, err := strconv.ParseFloat(tivRaw, 64)
			if err != nil || tiv <= 0 {
				skippedTIVs++
				continue
			}
			for _, key := range keys {
				if key.LocID != locID || key.CoverageID != cov.CoverageTypeID {
					continue
				}
				id := strconv.Itoa(next)
				_ = itemsW.Write([]string{
					id, id,
					strconv.Itoa(key.AreaPerilID),
					strconv.Itoa(key.VulnerabilityID),
					strconv.Itoa(groupID),
				})
				_ = coveragesW.Write([]string{id, tivRaw})
				_ = xrefW.Write([]string{id, "1", "1"})
				next++
			}
		}
	}

	if logger != nil && (skippedLocs > 0 || skippedTIVs > 0) {
		logger.Printf("oasis files: skipped %d records without a usable %s and %d coverage cells without a positive TIV",
			skippedLocs, profile.LocationField, skippedTIVs)
	}

	itemsW.Flush()
	coveragesW.Flush()
	xrefW.Flush()
	for _, w := range []*csv.Writer{itemsW, coveragesW, xrefW} {
		if err := w.Error(); err != nil {
			return fmt.Errorf("write oasis files: %w", err)
		}
	}

	files.Items = filepath.Join(dir, ItemsFile)
	files.Coverages = filepath.Join(dir, CoveragesFile)
	files.GulSummaryXref = filepath.Join(dir, GulSummaryXrefFile)

	for path, buf := range map[string]*bytes.Buffer{
		files.Items:          &items,
		files.Coverages:      &coverages,
		files.GulSummaryXref: &xref,
	} {
		if err := fsutil.AtomicWrite(path, buf.Bytes(), 0644); err != nil {
			return err
		}
	}
	return nil
}

// writeExposuresCSV writes intermediate exposure files with a stable column
// order: the transform's declared output fields, or the sorted union of
// field names for pass-through stages.
func writeExposuresCSV(path string, records []model.ExposureRecord, fields []string) error {
	if fields == nil {
		seen := map[string]bool{}
		for _, rec := range records {
			for k := range rec {
				seen[k] = true
			}
		}
		for k := range seen {
			fields = append(fields, k)
		}
		sort.Strings(fields)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(fields)
	for _, rec := range records {
		row := make([]string, len(fields))
		for i, f := range fields {
			row[i] = rec[f]
		}
		_ = w.Write(row)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return fsutil.AtomicWrite(path, buf.Bytes(), 0644)
}
