package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wro-sim/simlink/pkg/core"
)

// ExportVersion identifies the layout of Export.
const ExportVersion = 1

// Export is the root JSON structure.
//
// States, Controls and Peers are compact arrays:
//
//	states:   [tick, [x, y, z], heading, speed, steering, [front, back, left, right], orientation]
//	controls: [offsetMs, peerId, value1, value2]
//	peers:    [offsetMs, peerId, "connected"|"disconnected", remoteAddr]
//
// offsetMs counts milliseconds since the run started.
type Export struct {
	Version  int      `json:"version"`
	Run      core.Run `json:"run"`
	EndTick  uint64   `json:"endTick"`
	Duration float64  `json:"duration"` // seconds
	States   [][]any  `json:"states"`
	Controls [][]any  `json:"controls"`
	Peers    [][]any  `json:"peers"`
}

// exportJSON writes the run data to a JSON file, gzipped when configured
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	name := strings.ReplaceAll(b.run.Name, " ", "_")
	name = strings.ReplaceAll(name, ":", "_")
	if name == "" {
		name = "run"
	}
	timestamp := b.run.StartTime.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", name, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", name, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	b.lastExportMeta = core.UploadMetadata{
		RunID:    b.run.ID,
		Name:     b.run.Name,
		Duration: export.Duration,
		Ticks:    export.EndTick,
		Tag:      b.run.Tag,
	}
	return nil
}

func (b *Backend) buildExport() Export {
	export := Export{
		Version:  ExportVersion,
		Run:      *b.run,
		States:   make([][]any, 0, len(b.states)),
		Controls: make([][]any, 0, len(b.controls)),
		Peers:    make([][]any, 0, len(b.peers)),
	}
	if !b.run.EndTime.IsZero() {
		export.Duration = b.run.EndTime.Sub(b.run.StartTime).Seconds()
	}

	for _, s := range b.states {
		export.States = append(export.States, []any{
			s.Tick,
			[]float64{s.Position.X, s.Position.Y, s.Position.Z},
			s.Heading,
			s.Speed,
			s.Steering,
			[]float32{s.Ranges.Front, s.Ranges.Back, s.Ranges.Left, s.Ranges.Right},
			s.Orientation,
		})
		if s.Tick > export.EndTick {
			export.EndTick = s.Tick
		}
	}

	for _, e := range b.controls {
		export.Controls = append(export.Controls, []any{
			sinceStart(b.run.StartTime, e.Time),
			e.PeerID,
			e.Value1,
			e.Value2,
		})
	}

	for _, e := range b.peers {
		status := "disconnected"
		if e.Connected {
			status = "connected"
		}
		export.Peers = append(export.Peers, []any{
			sinceStart(b.run.StartTime, e.Time),
			e.PeerID,
			status,
			e.RemoteAddr,
		})
	}

	return export
}

// sinceStart clamps events stamped before the run started to 0.
func sinceStart(start, t time.Time) int64 {
	return max(t.Sub(start).Milliseconds(), 0)
}

func writeJSON(path string, data Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	encoder := json.NewEncoder(gzWriter)
	if err := encoder.Encode(data); err != nil {
		gzWriter.Close()
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return gzWriter.Close()
}
