package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is where the CLI looks for cleaner settings when no
// -config flag or DATACLEANER_CONFIG is given.
const DefaultConfigPath = "config/cleaner.defaults.json"

// Reference modes for the containment ray origin.
const (
	ReferenceAuto   = "auto"
	ReferenceLegacy = "legacy"
)

// CleanerConfig holds the tunable behaviour of loading, editing and
// exporting. Every field is optional; the Get* methods supply defaults.
type CleanerConfig struct {
	// Loading
	MissingValue    *float64 `json:"missing_value,omitempty"`
	TimestampLayout *string  `json:"timestamp_layout,omitempty"`
	TimeZone        *string  `json:"time_zone,omitempty"` // IANA name, e.g. "Europe/Madrid"

	// Curve editing
	CloseThreshold *float64 `json:"close_threshold,omitempty"`
	ExcludeX       *bool    `json:"exclude_x,omitempty"`
	ExcludeY       *bool    `json:"exclude_y,omitempty"`
	ReferenceMode  *string  `json:"reference_mode,omitempty"` // "auto" or "legacy"

	// Export
	TimeBuffer    *string `json:"time_buffer,omitempty"` // duration string like "10m"
	NameSeparator *string `json:"name_separator,omitempty"`
	CompressOut   *bool   `json:"compress_output,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }

// EmptyCleanerConfig returns a config with every field unset.
func EmptyCleanerConfig() *CleanerConfig {
	return &CleanerConfig{}
}

// DefaultCleanerConfig returns a config with every field set to its default.
func DefaultCleanerConfig() *CleanerConfig {
	return &CleanerConfig{
		MissingValue:    ptrFloat64(99999),
		TimestampLayout: ptrString("2006-01-02 15:04"),
		TimeZone:        ptrString("UTC"),
		CloseThreshold:  ptrFloat64(0.3),
		ExcludeX:        ptrBool(true),
		ExcludeY:        ptrBool(true),
		ReferenceMode:   ptrString(ReferenceAuto),
		TimeBuffer:      ptrString("10m"),
		NameSeparator:   ptrString("~"),
		CompressOut:     ptrBool(false),
	}
}

// LoadCleanerConfig loads a CleanerConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func LoadCleanerConfig(path string) (*CleanerConfig, error) {
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

	cfg := EmptyCleanerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *CleanerConfig) Validate() error {
	if c.CloseThreshold != nil && *c.CloseThreshold <= 0 {
		return fmt.Errorf("close_threshold must be positive, got %f", *c.CloseThreshold)
	}

	if c.TimeBuffer != nil && *c.TimeBuffer != "" {
		d, err := time.ParseDuration(*c.TimeBuffer)
		if err != nil {
			return fmt.Errorf("invalid time_buffer '%s': %w", *c.TimeBuffer, err)
		}
		if d < 0 {
			return fmt.Errorf("time_buffer must not be negative, got %s", *c.TimeBuffer)
		}
	}

	if c.TimestampLayout != nil && *c.TimestampLayout == "" {
		return fmt.Errorf("timestamp_layout must not be empty")
	}

	if c.TimeZone != nil && *c.TimeZone != "" {
		if _, err := time.LoadLocation(*c.TimeZone); err != nil {
			return fmt.Errorf("invalid time_zone '%s': %w", *c.TimeZone, err)
		}
	}

	if c.NameSeparator != nil && *c.NameSeparator == "" {
		return fmt.Errorf("name_separator must not be empty")
	}

	if c.ReferenceMode != nil {
		switch *c.ReferenceMode {
		case ReferenceAuto, ReferenceLegacy:
		default:
			return fmt.Errorf("reference_mode must be %q or %q, got %q", ReferenceAuto, ReferenceLegacy, *c.ReferenceMode)
		}
	}

	return nil
}

// GetMissingValue returns the missing-data sentinel or the default.
func (c *CleanerConfig) GetMissingValue() float64 {
	if c.MissingValue == nil {
		return 99999 // default
	}
	return *c.MissingValue
}

// GetTimestampLayout returns the index timestamp layout or the default.
func (c *CleanerConfig) GetTimestampLayout() string {
	if c.TimestampLayout == nil || *c.TimestampLayout == "" {
		return "2006-01-02 15:04" // default
	}
	return *c.TimestampLayout
}

// GetLocation returns the time zone of the index timestamps. UTC on unset or
// unknown names.
func (c *CleanerConfig) GetLocation() *time.Location {
	if c.TimeZone == nil || *c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(*c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetCloseThreshold returns the curve closing distance or the default.
func (c *CleanerConfig) GetCloseThreshold() float64 {
	if c.CloseThreshold == nil {
		return 0.3 // default
	}
	return *c.CloseThreshold
}

// GetExcludeX returns whether exclusions apply to the X series by default.
func (c *CleanerConfig) GetExcludeX() bool {
	if c.ExcludeX == nil {
		return true // default
	}
	return *c.ExcludeX
}

// GetExcludeY returns whether exclusions apply to the Y series by default.
func (c *CleanerConfig) GetExcludeY() bool {
	if c.ExcludeY == nil {
		return true // default
	}
	return *c.ExcludeY
}

// GetReferenceMode returns the ray origin mode or the default.
func (c *CleanerConfig) GetReferenceMode() string {
	if c.ReferenceMode == nil || *c.ReferenceMode == "" {
		return ReferenceAuto
	}
	return *c.ReferenceMode
}

// GetTimeBuffer parses and returns the TimeBuffer as a time.Duration.
func (c *CleanerConfig) GetTimeBuffer() time.Duration {
	if c.TimeBuffer == nil || *c.TimeBuffer == "" {
		return 10 * time.Minute // default
	}
	d, err := time.ParseDuration(*c.TimeBuffer)
	if err != nil {
		return 10 * time.Minute // default on parse error
	}
	return d
}

// GetNameSeparator returns the series name separator or the default.
func (c *CleanerConfig) GetNameSeparator() string {
	if c.NameSeparator == nil || *c.NameSeparator == "" {
		return "~"
	}
	return *c.NameSeparator
}

// GetCompressOutput returns whether export files are gzipped by default.
func (c *CleanerConfig) GetCompressOutput() bool {
	if c.CompressOut == nil {
		return false
	}
	return *c.CompressOut
}
