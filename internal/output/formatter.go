// Package output provides formatters for the status report in various
// formats (table, YAML, JSON).
package output

import (
	"fmt"
)

// Format represents an output format type.
type Format string

const (
	// FormatTable is a human-readable table format.
	FormatTable Format = "table"
	// FormatYAML is a YAML format for machine consumption.
	FormatYAML Format = "yaml"
	// FormatJSON is a JSON format for machine consumption.
	FormatJSON Format = "json"
)

// Report is the full status view of one node's storage.
type Report struct {
	Node  string    `json:"node" yaml:"node"`
	Disks []DiskRow `json:"disks" yaml:"disks"`
	Units []UnitRow `json:"units" yaml:"units"`
}

// DiskRow is one physical disk in the report.
type DiskRow struct {
	Path      string     `json:"path" yaml:"path"`
	Model     string     `json:"model,omitempty" yaml:"model,omitempty"`
	SizeBytes uint64     `json:"sizeBytes" yaml:"sizeBytes"`
	Class     string     `json:"class" yaml:"class"`
	Label     string     `json:"label,omitempty" yaml:"label,omitempty"`
	System    bool       `json:"system,omitempty" yaml:"system,omitempty"`
	Health    *HealthRow `json:"health,omitempty" yaml:"health,omitempty"`
}

// HealthRow is the extended SMART view of one disk.
type HealthRow struct {
	Passed      bool `json:"passed" yaml:"passed"`
	TempC       int  `json:"temperatureC" yaml:"temperatureC"`
	LifeLeftPct int  `json:"lifeLeftPct" yaml:"lifeLeftPct"`
}

// UnitRow is one registered storage unit in the report.
type UnitRow struct {
	ID      string `json:"id" yaml:"id"`
	Backend string `json:"backend" yaml:"backend"`
	Target  string `json:"target" yaml:"target"`
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
	Shared  bool   `json:"shared,omitempty" yaml:"shared,omitempty"`
}

// Formatter renders a status report.
type Formatter interface {
	FormatReport(r *Report) (string, error)
}

// Options contains options for formatting output.
type Options struct {
	// Format specifies the output format.
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
	// Extended adds the SMART health columns in table format.
	Extended bool
}

// NewFormatter creates a new Formatter based on the specified format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable:
		return &TableFormatter{NoHeaders: opts.NoHeaders, Extended: opts.Extended}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat checks if a format string is valid.
func ValidateFormat(format string) error {
	switch Format(format) {
	case FormatTable, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
}
