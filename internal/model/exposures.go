package model

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// DecodeExposuresCSV reads exposure rows from CSV. Column names are
// normalized to lower case; empty cells are absent from the record.
func DecodeExposuresCSV(r io.Reader) ([]ExposureRecord, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read exposures header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var records []ExposureRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read exposures row: %w", err)
		}
		rec := ExposureRecord{}
		for i, cell := range row {
			if i >= len(header) || cell == "" {
				continue
			}
			rec[header[i]] = cell
		}
		records = append(records, rec)
	}
	return records, nil
}

// DecodeExposuresJSON reads exposure rows from a JSON array of objects.
// Field names are lowercased; null values are treated as absent; numbers
// keep their source text.
func DecodeExposuresJSON(r io.Reader) ([]ExposureRecord, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode exposures JSON: %w", err)
	}

	records := make([]ExposureRecord, 0, len(rows))
	for _, row := range rows {
		rec := ExposureRecord{}
		for k, v := range row {
			if v == nil {
				continue
			}
			var s string
			switch t := v.(type) {
			case string:
				s = t
			case json.Number:
				s = t.String()
			case bool:
				s = fmt.Sprintf("%t", t)
			default:
				return nil, fmt.Errorf("exposures JSON field %q has unsupported type %T", k, v)
			}
			if s == "" {
				continue
			}
			rec[strings.ToLower(k)] = s
		}
		records = append(records, rec)
	}
	return records, nil
}

// StreamRecords feeds a slice of exposure records into a channel so lookup
// consumers can start emitting keys before the full set is traversed. The
// feeder stops on context cancellation, so an abandoned consumer never
// strands it.
func StreamRecords(ctx context.Context, records []ExposureRecord) <-chan ExposureRecord {
	ch := make(chan ExposureRecord)
	go func() {
		defer close(ch)
		for _, r := range records {
			select {
			case ch <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
