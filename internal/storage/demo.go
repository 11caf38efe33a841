package storage

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/trajectory"
)

// Demonstration files are CSV with a header row. Position demos carry a "t" column
// and x0..xN-1, optionally xd* and xdd*. Orientation demos carry t, qw, qx, qy, qz,
// optionally wx, wy, wz and wdx, wdy, wdz. Missing derivatives are estimated by
// finite differences.

type table struct {
	header map[string]int
	rows   [][]float64
}

func readTable(r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 1 {
		return nil, errors.Wrap(dynamo.ErrPrecondition, "demonstration file is empty")
	}

	t := &table{header: make(map[string]int, len(records[0]))}
	for j, name := range records[0] {
		t.header[name] = j
	}
	if _, ok := t.header["t"]; !ok {
		return nil, errors.Wrap(dynamo.ErrPrecondition, "demonstration has no t column")
	}
	for i, record := range records[1:] {
		row := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d column %s", i+1, records[0][j])
			}
			row[j] = v
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func (t *table) column(name string) ([]float64, bool) {
	j, ok := t.header[name]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[j]
	}
	return out, true
}

// indexed returns the columns prefix0, prefix1, ... in order until one is missing.
func (t *table) indexed(prefix string) [][]float64 {
	var cols [][]float64
	for i := 0; ; i++ {
		col, ok := t.column(prefix + strconv.Itoa(i))
		if !ok {
			return cols
		}
		cols = append(cols, col)
	}
}

func (t *table) vectors(names ...string) ([]r3.Vector, bool) {
	cols := make([][]float64, len(names))
	for i, name := range names {
		col, ok := t.column(name)
		if !ok {
			return nil, false
		}
		cols[i] = col
	}
	out := make([]r3.Vector, len(t.rows))
	for i := range out {
		out[i] = r3.Vector{X: cols[0][i], Y: cols[1][i], Z: cols[2][i]}
	}
	return out, true
}

func ReadCartesian(r io.Reader) (trajectory.Cartesian, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	times, _ := t.column("t")
	xs := t.indexed("x")
	if len(xs) == 0 {
		return nil, errors.Wrap(dynamo.ErrPrecondition, "demonstration has no x0 column")
	}
	positions := rowsOf(xs, len(times))

	xds, xdds := t.indexed("xd"), t.indexed("xdd")
	if len(xds) != len(xs) || len(xdds) != len(xs) {
		return trajectory.Differentiate(times, positions)
	}
	vel, acc := rowsOf(xds, len(times)), rowsOf(xdds, len(times))
	demo := make(trajectory.Cartesian, len(times))
	for k := range demo {
		demo[k] = dynamo.State{X: positions[k], Xd: vel[k], Xdd: acc[k], Time: times[k]}
	}
	if err := demo.Validate(); err != nil {
		return nil, err
	}
	return demo, nil
}

func ReadQuaternion(r io.Reader) (trajectory.Quaternion, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	times, _ := t.column("t")
	qs := make([]quat.Number, len(times))
	for k, name := range []string{"qw", "qx", "qy", "qz"} {
		col, ok := t.column(name)
		if !ok {
			return nil, errors.Wrapf(dynamo.ErrPrecondition, "demonstration has no %s column", name)
		}
		for i, v := range col {
			switch k {
			case 0:
				qs[i].Real = v
			case 1:
				qs[i].Imag = v
			case 2:
				qs[i].Jmag = v
			case 3:
				qs[i].Kmag = v
			}
		}
	}

	omega, okw := t.vectors("wx", "wy", "wz")
	omegad, okwd := t.vectors("wdx", "wdy", "wdz")
	if !okw || !okwd {
		return trajectory.DifferentiateQuat(times, qs)
	}
	demo := make(trajectory.Quaternion, len(times))
	for k := range demo {
		s, err := dynamo.NewQuatState(qs[k], omega[k], omegad[k]).Normalized()
		if err != nil {
			return nil, errors.Wrapf(err, "sample %d", k)
		}
		s.Time = times[k]
		demo[k] = s
	}
	if err := demo.Validate(); err != nil {
		return nil, err
	}
	return demo, nil
}

func WriteCartesian(w io.Writer, demo trajectory.Cartesian) error {
	cw := csv.NewWriter(w)
	header := []string{"t"}
	header = appendNames(header, "x", demo.Dim())
	header = appendNames(header, "xd", demo.Dim())
	header = appendNames(header, "xdd", demo.Dim())
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, s := range demo {
		row := []string{formatFloat(s.Time)}
		row = appendValues(row, s.X)
		row = appendValues(row, s.Xd)
		row = appendValues(row, s.Xdd)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteQuaternion(w io.Writer, demo trajectory.Quaternion) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"t", "qw", "qx", "qy", "qz", "wx", "wy", "wz", "wdx", "wdy", "wdz"}); err != nil {
		return err
	}
	for _, s := range demo {
		row := appendValues(nil, []float64{
			s.Time, s.Q.Real, s.Q.Imag, s.Q.Jmag, s.Q.Kmag,
			s.Omega.X, s.Omega.Y, s.Omega.Z,
			s.Omegad.X, s.Omegad.Y, s.Omegad.Z,
		})
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func LoadCartesian(path string) (trajectory.Cartesian, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	demo, err := ReadCartesian(f)
	return demo, errors.Wrapf(err, "load %s", path)
}

func LoadQuaternion(path string) (trajectory.Quaternion, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	demo, err := ReadQuaternion(f)
	return demo, errors.Wrapf(err, "load %s", path)
}

func SaveCartesian(path string, demo trajectory.Cartesian) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteCartesian(f, demo)
}

func SaveQuaternion(path string, demo trajectory.Quaternion) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteQuaternion(f, demo)
}

// rowsOf transposes per-dimension columns into per-sample rows.
func rowsOf(cols [][]float64, n int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, len(cols))
		for j, col := range cols {
			rows[i][j] = col[i]
		}
	}
	return rows
}
