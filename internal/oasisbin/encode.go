// Package oasisbin converts the Oasis flat files into the packed
// little-endian binary record streams consumed by the calculation engine.
package oasisbin

import (
	"bufio"
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

// EncodingError reports a malformed cell found during binary conversion,
// naming the file and row (1-based, excluding the header).
type EncodingError struct {
	File string
	Row  int
	Msg  string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("binary encoding failed: %s row %d: %s", e.File, e.Row, e.Msg)
}

// column describes one CSV column of a fixed Oasis file.
type column struct {
	name  string
	float bool
}

// FileSpec binds a flat file to its binary counterpart and column layout.
type FileSpec struct {
	csvName string
	binName string
	columns []column
}

var FileSpecs = []FileSpec{
	{
		csvName: "items.csv",
		binName: "items.bin",
		columns: []column{{name: "item_id"}, {name: "coverage_id"}, {name: "areaperil_id"}, {name: "vulnerability_id"}, {name: "group_id"}},
	},
	{
		csvName: "coverages.csv",
		binName: "coverages.bin",
		columns: []column{{name: "coverage_id"}, {name: "tiv", float: true}},
	},
	{
		csvName: "gulsummaryxref.csv",
		binName: "gulsummaryxref.bin",
		columns: []column{{name: "coverage_id"}, {name: "summary_id"}, {name: "summaryset_id"}},
	},
}

// EncodeDir converts every fixed Oasis CSV present in csvDir into its binary
// form in binDir, overwriting deterministically. A missing items.csv,
// coverages.csv or gulsummaryxref.csv is an error; conversion is purely
// structural.
func EncodeDir(csvDir, binDir string, logger *log.Logger) error {
	if err := os.MkdirAll(binDir, 0755); err != nil {
		return fmt.Errorf("create binary dir: %w", err)
	}
	for _, spec := range FileSpecs {
		src := filepath.Join(csvDir, spec.csvName)
		dst := filepath.Join(binDir, spec.binName)
		if err := encodeFile(src, dst, spec); err != nil {
			return err
		}
		if logger != nil {
			logger.Printf("encoded %s -> %s", spec.csvName, spec.binName)
		}
	}
	return nil
}

func encodeFile(src, dst string, spec FileSpec) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	if err := Encode(in, w, spec, src); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", dst, err)
	}
	return out.Sync()
}

// Encode converts one CSV stream into its binary record stream. The header
// must match the spec's column names exactly, in order.
func Encode(r io.Reader, w io.Writer, spec FileSpec, name string) error {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return &EncodingError{File: name, Msg: fmt.Sprintf("cannot read header: %v", err)}
	}
	if len(header) != len(spec.columns) {
		return &EncodingError{File: name, Msg: fmt.Sprintf("expected %d columns, got %d", len(spec.columns), len(header))}
	}
	for i, col := range spec.columns {
		if header[i] != col.name {
			return &EncodingError{File: name, Msg: fmt.Sprintf("column %d is %q, want %q", i+1, header[i], col.name)}
		}
	}

	for row := 1; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &EncodingError{File: name, Row: row, Msg: err.Error()}
		}
		for i, col := range spec.columns {
			if col.float {
				f, err := strconv.ParseFloat(rec[i], 32)
				if err != nil {
					return &EncodingError{File: name, Row: row, Msg: fmt.Sprintf("column %s: %q is not a number", col.name, rec[i])}
				}
				if err := binary.Write(w, binary.LittleEndian, float32(f)); err != nil {
					return fmt.Errorf("write %s: %w", name, err)
				}
				continue
			}
			n, err := strconv.ParseInt(rec[i], 10, 32)
			if err != nil {
				return &EncodingError{File: name, Row: row, Msg: fmt.Sprintf("column %s: %q is not an integer", col.name, rec[i])}
			}
			if err := binary.Write(w, binary.LittleEndian, int32(n)); err != nil {
				return fmt.Errorf("write %s: %w", name, err)
			}
		}
	}
}

// Decode reads a binary record stream back into CSV rows (header excluded).
// It is the inverse of Encode and exists for round-trip verification.
func Decode(r io.Reader, spec FileSpec) ([][]string, error) {
	var rows [][]string
	for {
		row := make([]string, len(spec.columns))
		for i, col := range spec.columns {
			if col.float {
				var f float32
				err := binary.Read(r, binary.LittleEndian, &f)
				if err == io.EOF && i == 0 {
					return rows, nil
				}
				if err != nil {
					return nil, fmt.Errorf("decode %s: %w", col.name, err)
				}
				row[i] = strconv.FormatFloat(float64(f), 'f', -1, 32)
				continue
			}
			var n int32
			err := binary.Read(r, binary.LittleEndian, &n)
			if err == io.EOF && i == 0 {
				return rows, nil
			}
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", col.name, err)
			}
			row[i] = strconv.FormatInt(int64(n), 10)
		}
		rows = append(rows, row)
	}
}

// SpecFor returns the file spec for one of the fixed Oasis CSV names.
func SpecFor(csvName string) (FileSpec, bool) {
	for _, spec := range FileSpecs {
		if spec.csvName == csvName {
			return spec, true
		}
	}
	return FileSpec{}, false
}
