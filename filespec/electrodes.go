package filespec

import (
	"context"
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kleenlab/ucsfbids/errors"
)

// ElectrodeColumns are the columns of a BIDS iEEG electrodes table.
var ElectrodeColumns = []string{
	"name", "x", "y", "z", "size", "material", "manufacturer",
	"group", "hemisphere", "type", "impedance",
}

// NotApplicable fills electrode cells the source does not provide.
const NotApplicable = "n/a"

// ElectrodeTable converts a montage table into a BIDS electrodes table.
//
// The source is comma separated when its extension is .csv and tab
// separated otherwise. It must carry name, x, y and z columns (label is
// accepted for name). Known columns are carried over, the rest become
// n/a. hemisphere is derived from x when the source has none.
func ElectrodeTable() TransformFunc {
	return func(_ context.Context, src, dst Location) error {
		in, err := src.FS.Open(src.Path)
		if err != nil {
			return errors.WrapWithContext(err, errors.CodeIO, "failed to open montage", map[string]interface{}{"source": src.Path})
		}
		defer func() { _ = in.Close() }()

		comma := '\t'
		if strings.EqualFold(filepath.Ext(src.Path), ".csv") {
			comma = ','
		}
		rows, err := readTable(in, comma)
		if err != nil {
			return errors.WrapWithContext(err, errors.CodeInvalidInput, "failed to parse montage", map[string]interface{}{"source": src.Path})
		}
		if len(rows) == 0 {
			return errors.NewWithContext(errors.CodeInvalidInput, "montage has no header", map[string]interface{}{"source": src.Path})
		}

		index := make(map[string]int, len(rows[0]))
		for i, col := range rows[0] {
			index[strings.ToLower(strings.TrimSpace(col))] = i
		}
		if _, ok := index["name"]; !ok {
			if i, ok := index["label"]; ok {
				index["name"] = i
			}
		}
		for _, col := range []string{"name", "x", "y", "z"} {
			if _, ok := index[col]; !ok {
				return errors.NewWithContext(errors.CodeInvalidInput, "montage is missing column "+col, map[string]interface{}{"source": src.Path})
			}
		}

		out := make([][]string, 0, len(rows))
		out = append(out, ElectrodeColumns)
		for _, row := range rows[1:] {
			out = append(out, electrodeRow(row, index))
		}
		return WriteTable(dst, out)
	}
}

func electrodeRow(row []string, index map[string]int) []string {
	cell := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) || strings.TrimSpace(row[i]) == "" {
			return NotApplicable
		}
		return strings.TrimSpace(row[i])
	}
	out := make([]string, len(ElectrodeColumns))
	for i, col := range ElectrodeColumns {
		out[i] = cell(col)
	}
	if out[8] == NotApplicable {
		if x, err := strconv.ParseFloat(out[1], 64); err == nil {
			if x > 0 {
				out[8] = "r"
			} else {
				out[8] = "l"
			}
		}
	}
	return out
}

func readTable(r io.Reader, comma rune) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr.ReadAll()
}

// WriteTable writes rows as a tab separated table, creating the parent
// directory of dst.
func WriteTable(dst Location, rows [][]string) error {
	if err := dst.FS.MkdirAll(filepath.Dir(dst.Path), 0o755); err != nil {
		return errors.WrapWithContext(err, errors.CodeIO, "failed to create destination directory", map[string]interface{}{"destination": dst.Path})
	}
	f, err := dst.FS.Create(dst.Path)
	if err != nil {
		return errors.WrapWithContext(err, errors.CodeIO, "failed to create table", map[string]interface{}{"destination": dst.Path})
	}
	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return errors.WrapWithContext(err, errors.CodeIO, "failed to write table", map[string]interface{}{"destination": dst.Path})
	}
	if err := f.Close(); err != nil {
		return errors.WrapWithContext(err, errors.CodeIO, "failed to close table", map[string]interface{}{"destination": dst.Path})
	}
	return nil
}

// ReadTable reads a tab separated table.
func ReadTable(src Location) ([][]string, error) {
	f, err := src.FS.Open(src.Path)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeIO, "failed to open table", map[string]interface{}{"source": src.Path})
	}
	defer func() { _ = f.Close() }()
	rows, err := readTable(f, '\t')
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInvalidInput, "failed to parse table", map[string]interface{}{"source": src.Path})
	}
	return rows, nil
}
