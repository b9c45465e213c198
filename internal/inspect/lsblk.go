package inspect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// lsblk's JSON output changed types across util-linux releases: ROTA
// and RO were "0"/"1" strings before 2.37 and booleans after, SIZE is
// a string in some builds even with --bytes. The flexible types below
// accept both so the parser works on old and new hosts.

type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true", `"1"`, "1":
		*b = true
	case "false", `"0"`, "0", "null", `""`:
		*b = false
	default:
		return fmt.Errorf("unexpected boolean value %s", data)
	}
	return nil
}

type flexUint64 uint64

func (u *flexUint64) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*u = 0
		return nil
	}
	if len(data) >= 2 && data[0] == '"' {
		data = data[1 : len(data)-1]
	}
	if len(data) == 0 {
		*u = 0
		return nil
	}
	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("unexpected size value %q: %w", data, err)
	}
	*u = flexUint64(v)
	return nil
}

// lsblkDevice is the relevant subset of one lsblk --json node.
type lsblkDevice struct {
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	Type       string        `json:"type"`
	Size       flexUint64    `json:"size"`
	Model      *string       `json:"model"`
	Serial     *string       `json:"serial"`
	Rota       *flexBool     `json:"rota"`
	RO         flexBool      `json:"ro"`
	PartLabel  *string       `json:"partlabel"`
	FSType     *string       `json:"fstype"`
	Mountpoint *string       `json:"mountpoint"`
	Children   []lsblkDevice `json:"children"`
}

type lsblkReport struct {
	BlockDevices []lsblkDevice `json:"blockdevices"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// parseLsblk extracts the physical disks (and their partitions) from
// lsblk --json output. Virtual devices (loop, ram, zram, dm) are not
// disks and are dropped.
func parseLsblk(data []byte) ([]Disk, error) {
	var report lsblkReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}

	var disks []Disk
	for _, dev := range report.BlockDevices {
		if dev.Type != "disk" {
			continue
		}
		d := Disk{
			Path:      dev.Path,
			Name:      dev.Name,
			Model:     deref(dev.Model),
			Serial:    deref(dev.Serial),
			SizeBytes: uint64(dev.Size),
			ReadOnly:  bool(dev.RO),
			Class:     ClassUnknown,
		}
		// lsblk emits /dev/ paths with --paths; the sysfs name is the
		// last path element either way.
		if i := lastSlash(d.Name); i >= 0 {
			d.Name = d.Name[i+1:]
		}
		if dev.Rota != nil {
			v := bool(*dev.Rota)
			d.Rotational = &v
		}
		for _, child := range dev.Children {
			if child.Type != "part" {
				continue
			}
			d.Partitions = append(d.Partitions, Partition{
				Path:       child.Path,
				Name:       child.Name,
				PartLabel:  deref(child.PartLabel),
				FSType:     deref(child.FSType),
				SizeBytes:  uint64(child.Size),
				Mountpoint: deref(child.Mountpoint),
			})
		}
		disks = append(disks, d)
	}
	return disks, nil
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}
