package output

import (
	"encoding/json"
	"fmt"
)

// JSONFormatter formats the report as JSON.
type JSONFormatter struct{}

// FormatReport formats the status report as indented JSON.
func (f *JSONFormatter) FormatReport(r *Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	return string(data) + "\n", nil
}
