// Package ingest reads snapshot sequences from JSON files and resolves the
// configured label attribute into tracker inputs.
//
// Two layouts are accepted. A JSON document holds every snapshot:
//
//	{"snapshots": [{"timestep": 0, "positions": [[0,0,0], ...], "point_data": {"RegionId": [1, ...]}}]}
//
// An NDJSON stream (.ndjson or .jsonl) holds one snapshot object per line.
// A snapshot without a timestep takes its position in the sequence.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/banshee-data/overlaptrack/internal/monitoring"
	"github.com/banshee-data/overlaptrack/internal/overlap/snapshot"
)

// ErrMissingAttribute reports a snapshot with no point attribute of the
// configured name. It matches snapshot.ErrInvalidInput.
var ErrMissingAttribute = fmt.Errorf("%w: missing point attribute", snapshot.ErrInvalidInput)

// Format selects the file layout.
type Format int

const (
	FormatJSON Format = iota
	FormatNDJSON
)

// maxLine bounds a single NDJSON record.
const maxLine = 64 * 1024 * 1024

// Block is one decoded snapshot before label resolution.
type Block struct {
	Timestep  *int64                   `json:"timestep,omitempty"`
	Positions [][]float64              `json:"positions"`
	PointData map[string][]json.Number `json:"point_data"`
}

type document struct {
	Snapshots []Block `json:"snapshots"`
}

// FormatFor picks the layout from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".ndjson", ".jsonl":
		return FormatNDJSON, nil
	default:
		return 0, fmt.Errorf("unsupported input extension %q (want .json, .ndjson or .jsonl)", filepath.Ext(path))
	}
}

// ReadFile decodes the snapshot file at path.
func ReadFile(path, labelAttribute string) ([]snapshot.Input, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	inputs, err := Decode(f, format, labelAttribute)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	monitoring.Debugf(1, "[ingest] %s: %d snapshots", path, len(inputs))
	return inputs, nil
}

// Decode reads every snapshot from r.
func Decode(r io.Reader, format Format, labelAttribute string) ([]snapshot.Input, error) {
	var blocks []Block
	switch format {
	case FormatJSON:
		var doc document
		dec := json.NewDecoder(r)
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		blocks = doc.Snapshots
	case FormatNDJSON:
		var err error
		if blocks, err = decodeLines(r); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown format %d", format)
	}

	inputs := make([]snapshot.Input, len(blocks))
	for i := range blocks {
		in, err := blocks[i].Input(i, labelAttribute)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d: %w", i, err)
		}
		inputs[i] = in
	}
	return inputs, nil
}

func decodeLines(r io.Reader) ([]Block, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	var blocks []Block
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var b Block
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&b); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		blocks = append(blocks, b)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return blocks, nil
}

// Input resolves labelAttribute and builds the tracker input for the
// block at sequence position index.
func (b *Block) Input(index int, labelAttribute string) (snapshot.Input, error) {
	raw, ok := b.PointData[labelAttribute]
	if !ok {
		return snapshot.Input{}, fmt.Errorf("%w %q (have %s)", ErrMissingAttribute, labelAttribute, b.attributeNames())
	}

	timestep := int64(index)
	if b.Timestep != nil {
		timestep = *b.Timestep
	}

	xyz := make([]float64, 0, 3*len(b.Positions))
	for i, p := range b.Positions {
		if len(p) != 3 {
			return snapshot.Input{}, fmt.Errorf("%w: point %d has %d coordinates, want 3", snapshot.ErrInvalidInput, i, len(p))
		}
		xyz = append(xyz, p...)
	}

	labels, err := decodeLabels(raw)
	if err != nil {
		return snapshot.Input{}, fmt.Errorf("attribute %q: %w", labelAttribute, err)
	}
	return snapshot.Input{
		Timestep:  timestep,
		Positions: snapshot.Float64Array(xyz),
		Labels:    labels,
	}, nil
}

// decodeLabels keeps integer labels exact and falls back to float64 for
// any element written with a fraction or exponent.
func decodeLabels(raw []json.Number) (snapshot.Array, error) {
	ints := make([]int64, len(raw))
	for i, n := range raw {
		v, err := n.Int64()
		if err != nil {
			return decodeFloatLabels(raw)
		}
		ints[i] = v
	}
	return snapshot.Int64Array(ints), nil
}

func decodeFloatLabels(raw []json.Number) (snapshot.Array, error) {
	floats := make([]float64, len(raw))
	for i, n := range raw {
		v, err := n.Float64()
		if err != nil {
			return snapshot.Array{}, fmt.Errorf("%w: label %d (%s): %v", snapshot.ErrInvalidInput, i, n, err)
		}
		floats[i] = v
	}
	return snapshot.Float64Array(floats), nil
}

func (b *Block) attributeNames() string {
	if len(b.PointData) == 0 {
		return "none"
	}
	names := make([]string, 0, len(b.PointData))
	for name := range b.PointData {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
