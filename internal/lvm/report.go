package lvm

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// lvm's JSON reports wrap every value in a string:
//
//	{"report":[{"vg":[{"vg_name":"pve","vg_size":"255...","vg_free":"16..."}]}]}

type vgRow struct {
	Name string `json:"vg_name"`
	Size string `json:"vg_size"`
	Free string `json:"vg_free"`
}

type pvRow struct {
	Name   string `json:"pv_name"`
	VGName string `json:"vg_name"`
	Size   string `json:"pv_size"`
}

type lvRow struct {
	Name   string `json:"lv_name"`
	VGName string `json:"vg_name"`
	Size   string `json:"lv_size"`
	Attr   string `json:"lv_attr"`
}

type lvmReport struct {
	Report []struct {
		VG []vgRow `json:"vg"`
		PV []pvRow `json:"pv"`
		LV []lvRow `json:"lv"`
	} `json:"report"`
}

func parseBytes(field, s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected %s value %q: %w", field, s, err)
	}
	return v, nil
}

func parseReport(data []byte) (*lvmReport, error) {
	var report lvmReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse lvm report: %w", err)
	}
	return &report, nil
}

func parseVGReport(data []byte) ([]VG, error) {
	report, err := parseReport(data)
	if err != nil {
		return nil, err
	}
	var vgs []VG
	for _, r := range report.Report {
		for _, row := range r.VG {
			size, err := parseBytes("vg_size", row.Size)
			if err != nil {
				return nil, err
			}
			free, err := parseBytes("vg_free", row.Free)
			if err != nil {
				return nil, err
			}
			vgs = append(vgs, VG{Name: row.Name, SizeBytes: size, FreeBytes: free})
		}
	}
	return vgs, nil
}

func parsePVReport(data []byte) ([]PV, error) {
	report, err := parseReport(data)
	if err != nil {
		return nil, err
	}
	var pvs []PV
	for _, r := range report.Report {
		for _, row := range r.PV {
			size, err := parseBytes("pv_size", row.Size)
			if err != nil {
				return nil, err
			}
			pvs = append(pvs, PV{Name: row.Name, VGName: row.VGName, SizeBytes: size})
		}
	}
	return pvs, nil
}

func parseLVReport(data []byte) ([]LV, error) {
	report, err := parseReport(data)
	if err != nil {
		return nil, err
	}
	var lvs []LV
	for _, r := range report.Report {
		for _, row := range r.LV {
			size, err := parseBytes("lv_size", row.Size)
			if err != nil {
				return nil, err
			}
			lvs = append(lvs, LV{Name: row.Name, VGName: row.VGName, SizeBytes: size, Attr: row.Attr})
		}
	}
	return lvs, nil
}
