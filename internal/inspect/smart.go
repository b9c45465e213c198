package inspect

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/robertsinfosec/proxstor/internal/cmdexec"
)

// smartctlJSON is the relevant subset of smartctl --json output.
type smartctlJSON struct {
	ModelName    string `json:"model_name"`
	RotationRate *int   `json:"rotation_rate"`
	SmartStatus  struct {
		Passed bool `json:"passed"`
	} `json:"smart_status"`
	Temperature struct {
		Current int `json:"current"`
	} `json:"temperature"`
	ATASmartAttributes struct {
		Table []struct {
			ID    int `json:"id"`
			Value int `json:"value"`
			Raw   struct {
				Value int `json:"value"`
			} `json:"raw"`
		} `json:"table"`
	} `json:"ata_smart_attributes"`
	NVMeSmartHealthLog struct {
		PercentageUsed int `json:"percentage_used"`
		Temperature    int `json:"temperature"`
	} `json:"nvme_smart_health_information_log"`
}

func (s *smartctlJSON) health() Health {
	h := Health{
		Available:   true,
		Passed:      s.SmartStatus.Passed,
		TempC:       s.Temperature.Current,
		LifeLeftPct: -1,
	}
	if s.NVMeSmartHealthLog.PercentageUsed > 0 || s.NVMeSmartHealthLog.Temperature > 0 {
		h.LifeLeftPct = 100 - s.NVMeSmartHealthLog.PercentageUsed
		if h.TempC == 0 {
			h.TempC = s.NVMeSmartHealthLog.Temperature
		}
	}
	for _, attr := range s.ATASmartAttributes.Table {
		switch attr.ID {
		case 177, 231: // Wear_Leveling_Count / SSD_Life_Left
			if attr.Value > 0 && attr.Value <= 100 {
				h.LifeLeftPct = attr.Value
			}
		case 194: // Temperature_Celsius
			if h.TempC == 0 {
				h.TempC = attr.Raw.Value
			}
		}
	}
	return h
}

// querySMART runs smartctl against a device. smartctl returns non-zero
// for many non-error conditions, so output is parsed whenever present.
func (i *Inspector) querySMART(ctx context.Context, devPath string) (*smartctlJSON, error) {
	if _, err := i.run.LookPath("smartctl"); err != nil {
		return nil, fmt.Errorf("smartctl not available: %w", err)
	}
	out, err := i.run.Run(ctx, cmdexec.Step{
		Desc: "query drive health",
		Kind: cmdexec.Advisory,
		Name: "smartctl",
		Args: []string{"-a", "--json", devPath},
	})
	if out == "" {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("smartctl produced no output for %s", devPath)
	}
	var data smartctlJSON
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		return nil, fmt.Errorf("failed to parse smartctl output for %s: %w", devPath, err)
	}
	return &data, nil
}
