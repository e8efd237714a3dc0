package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
)

// DefaultConfigPath is the path to the canonical tracking defaults file.
const DefaultConfigPath = "config/tracking.defaults.json"

// DefaultLabelAttributeName is the per-point attribute that holds region
// labels when none is configured.
const DefaultLabelAttributeName = "RegionId"

// TrackingConfig is the root configuration of the overlap tracker. Every
// field is optional; the Get* accessors supply defaults for omitted
// fields, so partial files are safe.
type TrackingConfig struct {
	// Matching
	SpatialTolerance *float64 `json:"spatial_tolerance,omitempty"`

	// Host snapshot source
	LabelAttributeName *string `json:"label_attribute_name,omitempty"`

	// Worker pool
	ThreadNumber *int  `json:"thread_number,omitempty"`
	UseAllCores  *bool `json:"use_all_cores,omitempty"`

	// Diagnostics
	DebugLevel *int `json:"debug_level,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTrackingConfig returns a TrackingConfig with all fields unset.
func EmptyTrackingConfig() *TrackingConfig {
	return &TrackingConfig{}
}

// DefaultTrackingConfig returns a TrackingConfig with every field set to
// its default value.
func DefaultTrackingConfig() *TrackingConfig {
	return &TrackingConfig{
		SpatialTolerance:   ptrFloat64(0),
		LabelAttributeName: ptrString(DefaultLabelAttributeName),
		ThreadNumber:       ptrInt(1),
		UseAllCores:        ptrBool(false),
		DebugLevel:         ptrInt(0),
	}
}

// LoadTrackingConfig loads a TrackingConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadTrackingConfig(path string) (*TrackingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTrackingConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Panics if the file
// cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *TrackingConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,          // from cmd/overlaptrack
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/overlap/graph/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTrackingConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the set fields hold usable values.
func (c *TrackingConfig) Validate() error {
	if c.SpatialTolerance != nil {
		v := *c.SpatialTolerance
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("spatial_tolerance must be finite and non-negative, got %v", v)
		}
	}

	if c.LabelAttributeName != nil && *c.LabelAttributeName == "" {
		return fmt.Errorf("label_attribute_name must not be empty")
	}

	if c.ThreadNumber != nil && *c.ThreadNumber < 1 {
		return fmt.Errorf("thread_number must be at least 1, got %d", *c.ThreadNumber)
	}

	if c.DebugLevel != nil && *c.DebugLevel < 0 {
		return fmt.Errorf("debug_level must be non-negative, got %d", *c.DebugLevel)
	}

	return nil
}

// GetSpatialTolerance returns the spatial_tolerance value or the default.
func (c *TrackingConfig) GetSpatialTolerance() float64 {
	if c.SpatialTolerance == nil {
		return 0 // exact coordinate equality
	}
	return *c.SpatialTolerance
}

// GetLabelAttributeName returns the label_attribute_name value or the default.
func (c *TrackingConfig) GetLabelAttributeName() string {
	if c.LabelAttributeName == nil || *c.LabelAttributeName == "" {
		return DefaultLabelAttributeName
	}
	return *c.LabelAttributeName
}

// GetThreadNumber returns the thread_number value or the default.
func (c *TrackingConfig) GetThreadNumber() int {
	if c.ThreadNumber == nil {
		return 1
	}
	return *c.ThreadNumber
}

// GetUseAllCores returns the use_all_cores value or the default.
func (c *TrackingConfig) GetUseAllCores() bool {
	if c.UseAllCores == nil {
		return false
	}
	return *c.UseAllCores
}

// GetDebugLevel returns the debug_level value or the default.
func (c *TrackingConfig) GetDebugLevel() int {
	if c.DebugLevel == nil {
		return 0
	}
	return *c.DebugLevel
}

// Workers resolves the worker count: every available core when
// use_all_cores is set, thread_number otherwise.
func (c *TrackingConfig) Workers() int {
	if c.GetUseAllCores() {
		return runtime.NumCPU()
	}
	return c.GetThreadNumber()
}

// Merge returns a copy of c with every field set in override taking
// precedence. Neither input is modified.
func (c *TrackingConfig) Merge(override *TrackingConfig) *TrackingConfig {
	out := *c
	if override == nil {
		return &out
	}
	if override.SpatialTolerance != nil {
		out.SpatialTolerance = ptrFloat64(*override.SpatialTolerance)
	}
	if override.LabelAttributeName != nil {
		out.LabelAttributeName = ptrString(*override.LabelAttributeName)
	}
	if override.ThreadNumber != nil {
		out.ThreadNumber = ptrInt(*override.ThreadNumber)
	}
	if override.UseAllCores != nil {
		out.UseAllCores = ptrBool(*override.UseAllCores)
	}
	if override.DebugLevel != nil {
		out.DebugLevel = ptrInt(*override.DebugLevel)
	}
	return &out
}

// JSON returns the resolved configuration (defaults applied) as JSON, for
// recording alongside stored runs.
func (c *TrackingConfig) JSON() (string, error) {
	resolved := &TrackingConfig{
		SpatialTolerance:   ptrFloat64(c.GetSpatialTolerance()),
		LabelAttributeName: ptrString(c.GetLabelAttributeName()),
		ThreadNumber:       ptrInt(c.GetThreadNumber()),
		UseAllCores:        ptrBool(c.GetUseAllCores()),
		DebugLevel:         ptrInt(c.GetDebugLevel()),
	}
	data, err := json.Marshal(resolved)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}
