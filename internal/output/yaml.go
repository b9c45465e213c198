package output

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats the report as YAML.
type YAMLFormatter struct{}

// FormatReport formats the status report as a YAML document.
func (f *YAMLFormatter) FormatReport(r *Report) (string, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to YAML: %w", err)
	}
	return string(data), nil
}
