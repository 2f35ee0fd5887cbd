// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/skyblocks/flightdeck/internal/model/convert"
	"github.com/skyblocks/flightdeck/pkg/core"
)

// ExportVersion is bumped when the file layout changes.
const ExportVersion = 1

// RunExport is the root JSON structure of an exported run
type RunExport struct {
	Version      int                      `json:"version"`
	RunID        string                   `json:"runId"`
	ProgramName  string                   `json:"programName"`
	Fingerprint  string                   `json:"fingerprint"`
	StartTime    time.Time                `json:"startTime"`
	EndTime      time.Time                `json:"endTime"`
	State        core.RunState            `json:"state"`
	GridSize     float64                  `json:"gridSize"`
	Instructions []core.InstructionRecord `json:"instructions"`
	Frames       [][]any                  `json:"frames"`
	Events       [][]any                  `json:"events"`
	Summary      SummaryJSON              `json:"summary"`
	Path         [][2]float64             `json:"path"`
	PathGeoJSON  json.RawMessage          `json:"pathGeoJSON,omitempty"`
}

// SummaryJSON is the end state of the run
type SummaryJSON struct {
	FinalPose         core.Pose `json:"finalPose"`
	SimulatedSeconds  float64   `json:"simulatedSeconds"`
	Frames            uint      `json:"frames"`
	DistanceFlown     float64   `json:"distanceFlown"`
	MaxAltitude       float64   `json:"maxAltitude"`
	LeftFlightArea    bool      `json:"leftFlightArea"`
	InstructionsFlown int       `json:"instructionsFlown"`
}

// extension returns the file suffix for the configured compression
func extension(compress string) (string, error) {
	switch strings.ToLower(compress) {
	case "", "none":
		return ".json", nil
	case "gzip", "gz":
		return ".json.gz", nil
	case "zstd", "zst":
		return ".json.zst", nil
	}
	return "", fmt.Errorf("unknown compression %q", compress)
}

// fileName builds <program>_<timestamp>_<run>.json[.gz|.zst]
func fileName(run core.Run, ext string) string {
	name := run.ProgramName
	if name == "" {
		name = "program"
	}
	replacer := strings.NewReplacer(" ", "_", ":", "_", "/", "_", "\\", "_")
	return fmt.Sprintf("%s_%s_%s%s",
		replacer.Replace(name),
		run.StartTime.UTC().Format("20060102_150405"),
		replacer.Replace(run.ID),
		ext)
}

// exportJSON writes the run to a file. Caller holds mu.
func (b *Backend) exportJSON() error {
	ext, err := extension(b.cfg.Compress)
	if err != nil {
		return err
	}

	export, err := b.buildExport()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(b.cfg.OutputDir, fileName(b.run.Run, ext))

	if err := writeExport(outputPath, ext, export); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	b.lastMetadata = core.UploadMetadata{
		RunID:            export.RunID,
		ProgramName:      export.ProgramName,
		Fingerprint:      export.Fingerprint,
		StartTime:        export.StartTime,
		DurationSeconds:  export.Summary.SimulatedSeconds,
		InstructionCount: len(export.Instructions),
		LeftFlightArea:   export.Summary.LeftFlightArea,
	}
	return nil
}

func (b *Backend) buildExport() (RunExport, error) {
	rec := b.run
	sum := rec.Summary

	export := RunExport{
		Version:      ExportVersion,
		RunID:        rec.Run.ID,
		ProgramName:  rec.Run.ProgramName,
		Fingerprint:  convert.FingerprintString(rec.Run.Fingerprint),
		StartTime:    rec.Run.StartTime,
		EndTime:      sum.EndTime,
		State:        sum.State,
		GridSize:     rec.Run.GridSize,
		Instructions: core.Records(rec.Run.Instructions),
		Frames:       make([][]any, 0, len(rec.Snapshots)),
		Events:       make([][]any, 0, len(rec.Events)),
		Summary: SummaryJSON{
			FinalPose:         sum.FinalPose,
			SimulatedSeconds:  sum.SimulatedSeconds,
			Frames:            sum.Frames,
			DistanceFlown:     sum.DistanceFlown,
			MaxAltitude:       sum.MaxAltitude,
			LeftFlightArea:    sum.LeftFlightArea,
			InstructionsFlown: sum.InstructionsFlown,
		},
		Path: make([][2]float64, 0, len(sum.Path)),
	}

	for _, s := range rec.Snapshots {
		export.Frames = append(export.Frames, []any{
			s.Frame,                  // [0] frame
			s.Elapsed,                // [1] elapsed seconds
			[]float64{s.X, s.Y, s.Z}, // [2] position
			s.HeadingDegrees,         // [3] heading
			s.Light,                  // [4] light
			boolToInt(s.Flying),      // [5] flying
			s.InstructionIndex,       // [6] instruction
			boolToInt(s.OutOfBounds), // [7] out of bounds
		})
	}

	for _, e := range rec.Events {
		export.Events = append(export.Events, []any{
			e.Elapsed,                               // [0] elapsed seconds
			e.Type,                                  // [1] type
			e.InstructionIndex,                      // [2] instruction
			e.Instruction,                           // [3] instruction text
			e.Message,                               // [4] message
			[]float64{e.Pose.X, e.Pose.Y, e.Pose.Z}, // [5] position
		})
	}

	for _, p := range sum.Path {
		export.Path = append(export.Path, [2]float64{p.X, p.Y})
	}
	if b.proj != nil && len(sum.Path) > 1 {
		gj, err := b.proj.PathGeoJSON(sum.Path)
		if err != nil {
			return RunExport{}, err
		}
		export.PathGeoJSON = gj
	}

	return export, nil
}

func writeExport(path, ext string, data RunExport) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close file: %w", cerr)
		}
	}()

	var w io.WriteCloser
	switch ext {
	case ".json.gz":
		w = gzip.NewWriter(f)
	case ".json.zst":
		zw, err := zstd.NewWriter(f)
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		w = zw
	default:
		return json.NewEncoder(f).Encode(data)
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to encode run: %w", err)
	}
	return w.Close()
}

// ReadExport loads an exported run, decompressing by file suffix.
func ReadExport(path string) (RunExport, error) {
	f, err := os.Open(path)
	if err != nil {
		return RunExport{}, err
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return RunExport{}, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return RunExport{}, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	var export RunExport
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return RunExport{}, fmt.Errorf("failed to decode run: %w", err)
	}
	return export, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
