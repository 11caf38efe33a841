package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/san-kum/dmp/internal/sim"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

type RunMetadata struct {
	ID             string             `json:"id"`
	Preset         string             `json:"preset"`
	Kind           string             `json:"kind"`
	Timestamp      time.Time          `json:"timestamp"`
	Dt             float64            `json:"dt"`
	Duration       float64            `json:"duration"`
	Tau            float64            `json:"tau"`
	Alpha          float64            `json:"alpha"`
	Beta           float64            `json:"beta"`
	CanonicalOrder int                `json:"canonical_order"`
	NumBasis       int                `json:"num_basis"`
	Method         string             `json:"method"`
	Steps          int                `json:"steps"`
	Metrics        map[string]float64 `json:"metrics"`
}

// Save writes a run directory holding metadata.json and states.csv. meta.ID and
// meta.Timestamp are filled in.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", meta.Preset, now.UnixNano())
	runDir := s.Dir(runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta.ID = runID
	meta.Timestamp = now
	meta.Steps = result.StepsTaken
	meta.Metrics = jsonSafe(result.Metrics)

	if err := writeJSON(filepath.Join(runDir, "metadata.json"), meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "states.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	defer w.Flush()

	if len(result.States) == 0 {
		return runID, nil
	}

	header := []string{"time", "phase"}
	header = appendNames(header, "p", len(result.States[0]))
	header = appendNames(header, "v", width(result.Velocities))
	header = appendNames(header, "a", width(result.Accelerations))
	header = appendNames(header, "g", width(result.Goals))
	header = appendNames(header, "f", width(result.Forcing))
	if err := w.Write(header); err != nil {
		return "", err
	}

	for i := range result.States {
		row := []string{formatFloat(result.Times[i]), formatFloat(at(result.Phases, i))}
		row = appendValues(row, result.States[i])
		row = appendValues(row, rowAt(result.Velocities, i))
		row = appendValues(row, rowAt(result.Accelerations, i))
		row = appendValues(row, rowAt(result.Goals, i))
		row = appendValues(row, rowAt(result.Forcing, i))
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return runID, w.Error()
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(runID), "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "decode metadata of %s", runID)
	}

	return &meta, nil
}

// LoadStates returns the position columns of a saved run and their times.
func (s *Store) LoadStates(runID string) ([][]float64, []float64, error) {
	cols, err := s.LoadColumns(runID, "p")
	if err != nil {
		return nil, nil, err
	}
	return cols.Values, cols.Times, nil
}

// Columns is one group of states.csv columns sharing a name prefix.
type Columns struct {
	Names  []string
	Times  []float64
	Values [][]float64
}

// LoadColumns reads the columns of states.csv named prefix followed by an index,
// e.g. "p" selects p0, p1, ...
func (s *Store) LoadColumns(runID, prefix string) (*Columns, error) {
	file, err := os.Open(filepath.Join(s.Dir(runID), "states.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	out := &Columns{Times: []float64{}, Values: [][]float64{}}
	if len(records) < 2 {
		return out, nil
	}

	var idx []int
	for j, name := range records[0] {
		if isIndexed(name, prefix) {
			idx = append(idx, j)
			out.Names = append(out.Names, name)
		}
	}

	for _, record := range records[1:] {
		if len(record) == 0 {
			continue
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			continue
		}
		vals := make([]float64, 0, len(idx))
		for _, j := range idx {
			if j >= len(record) {
				break
			}
			v, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "column %s", records[0][j])
			}
			vals = append(vals, v)
		}
		out.Times = append(out.Times, t)
		out.Values = append(out.Values, vals)
	}

	return out, nil
}

// LoadResult rebuilds the recorded part of a saved run: every states.csv column
// group plus the stored metrics.
func (s *Store) LoadResult(runID string) (*sim.Result, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	res := &sim.Result{Metrics: meta.Metrics, StepsTaken: meta.Steps}
	groups := []struct {
		prefix string
		dst    *[][]float64
	}{
		{"p", &res.States},
		{"v", &res.Velocities},
		{"a", &res.Accelerations},
		{"g", &res.Goals},
		{"f", &res.Forcing},
	}
	for _, g := range groups {
		cols, err := s.LoadColumns(runID, g.prefix)
		if err != nil {
			return nil, err
		}
		*g.dst = cols.Values
		res.Times = cols.Times
	}
	phase, err := s.LoadColumns(runID, "phase")
	if err != nil {
		return nil, err
	}
	res.Phases = make([]float64, len(phase.Values))
	for i, row := range phase.Values {
		if len(row) > 0 {
			res.Phases[i] = row[0]
		}
	}
	return res, nil
}

// isIndexed reports whether name is prefix followed by a column index, or prefix
// itself for single columns such as "phase".
func isIndexed(name, prefix string) bool {
	if name == prefix && len(prefix) > 1 {
		return true
	}
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok || rest == "" {
		return false
	}
	_, err := strconv.Atoi(rest)
	return err == nil
}

func appendNames(header []string, prefix string, n int) []string {
	for i := 0; i < n; i++ {
		header = append(header, fmt.Sprintf("%s%d", prefix, i))
	}
	return header
}

func appendValues(row []string, vals []float64) []string {
	for _, v := range vals {
		row = append(row, formatFloat(v))
	}
	return row
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}

func width(rows [][]float64) int {
	if len(rows) == 0 {
		return 0
	}
	return len(rows[0])
}

func rowAt(rows [][]float64, i int) []float64 {
	if i >= len(rows) {
		return nil
	}
	return rows[i]
}

func at(vals []float64, i int) float64 {
	if i >= len(vals) {
		return 0
	}
	return vals[i]
}

// jsonSafe drops NaN and infinite metrics, which encoding/json rejects.
func jsonSafe(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if v == v && v-v == 0 {
			out[k] = v
		}
	}
	return out
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
