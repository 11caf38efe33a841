package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/san-kum/dmp/internal/trajlog"
)

// SaveLog writes every field of a trajectory log to dir as <field>.csv, one
// row per recorded tick and no header. Fields of zero width are skipped.
func SaveLog(dir string, arena *trajlog.Arena) (err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, f := range trajlog.Fields() {
		if arena.Width(f) == 0 {
			continue
		}
		err = multierr.Append(err, saveField(filepath.Join(dir, f.String()+".csv"), arena, f))
	}
	return err
}

func saveField(path string, arena *trajlog.Arena, f trajlog.Field) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	for i := 0; i < arena.Len(); i++ {
		row, err := arena.Row(f, i)
		if err != nil {
			return err
		}
		if err := w.Write(appendValues(nil, row)); err != nil {
			return errors.Wrapf(err, "write %s", f)
		}
	}
	w.Flush()
	return w.Error()
}

// LoadMatrix reads a headerless numeric CSV such as the files SaveLog writes.
func LoadMatrix(path string) ([][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(records))
	for i, record := range records {
		out[i] = make([]float64, len(record))
		for j, field := range record {
			if out[i][j], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, errors.Wrapf(err, "%s row %d", filepath.Base(path), i)
			}
		}
	}
	return out, nil
}
