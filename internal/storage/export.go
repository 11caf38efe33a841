package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/dmp/internal/sim"
)

type ExportData struct {
	Preset   string             `json:"preset"`
	Kind     string             `json:"kind"`
	Dt       float64            `json:"dt"`
	Duration float64            `json:"duration"`
	Tau      float64            `json:"tau"`
	Steps    int                `json:"steps"`
	Times    []float64          `json:"times"`
	Phases   []float64          `json:"phases"`
	States   [][]float64        `json:"states"`
	Goals    [][]float64        `json:"goals"`
	Forcing  [][]float64        `json:"forcing"`
	Metrics  map[string]float64 `json:"metrics"`
}

func NewExportData(meta RunMetadata, result *sim.Result) ExportData {
	return ExportData{
		Preset:   meta.Preset,
		Kind:     meta.Kind,
		Dt:       meta.Dt,
		Duration: meta.Duration,
		Tau:      meta.Tau,
		Steps:    result.StepsTaken,
		Times:    result.Times,
		Phases:   result.Phases,
		States:   result.States,
		Goals:    result.Goals,
		Forcing:  result.Forcing,
		Metrics:  jsonSafe(result.Metrics),
	}
}

func WriteJSON(w io.Writer, meta RunMetadata, result *sim.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewExportData(meta, result))
}

func ExportJSON(path string, meta RunMetadata, result *sim.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, meta, result)
}
