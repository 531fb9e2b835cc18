package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// Runner executes an external command and returns its combined output.
// Tests substitute a fake to exercise the writer without an exiftool binary.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Tool drives the external exiftool binary. goexif is read-only and cannot
// parse every RAW container, so exiftool covers both the read fallback and
// all metadata writes.
type Tool struct {
	path   string
	runner Runner
}

// NewTool creates a Tool invoking the exiftool binary at path.
func NewTool(path string) *Tool {
	return &Tool{path: path, runner: execRunner{}}
}

// NewToolWithRunner creates a Tool with an injected command runner.
func NewToolWithRunner(path string, runner Runner) *Tool {
	return &Tool{path: path, runner: runner}
}

func (t *Tool) run(ctx context.Context, args ...string) ([]byte, error) {
	out, err := t.runner.Run(ctx, t.path, args...)
	if err != nil {
		return nil, fmt.Errorf("exiftool: %w: %s", err, out)
	}
	return out, nil
}

// probeOutput mirrors the -j JSON fields the reader cares about. With -n,
// GPS values arrive as signed decimals.
type probeOutput struct {
	DateTimeOriginal string   `json:"DateTimeOriginal"`
	CreateDate       string   `json:"CreateDate"`
	ModifyDate       string   `json:"ModifyDate"`
	GPSLatitude      *float64 `json:"GPSLatitude"`
	GPSLongitude     *float64 `json:"GPSLongitude"`
	GPSAltitude      *float64 `json:"GPSAltitude"`
}

// Probe reads capture time and GPS fields with exiftool's own parsers.
func (t *Tool) Probe(ctx context.Context, path string) (probeOutput, error) {
	out, err := t.run(ctx, "-j", "-n",
		"-DateTimeOriginal", "-CreateDate", "-ModifyDate",
		"-GPSLatitude", "-GPSLongitude", "-GPSAltitude",
		path,
	)
	if err != nil {
		return probeOutput{}, err
	}

	var probes []probeOutput
	if err := json.Unmarshal(out, &probes); err != nil {
		return probeOutput{}, fmt.Errorf("decode exiftool output: %w", err)
	}
	if len(probes) == 0 {
		return probeOutput{}, fmt.Errorf("exiftool returned no records for %s", path)
	}
	return probes[0], nil
}
