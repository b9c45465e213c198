package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Usage describes what a storage unit currently holds and which guests
// reference it, for operator inspection before destructive action.
type Usage struct {
	Unit     Unit
	Contents []string // volumes / files on the unit
	UsedBy   []string // guest config files referencing the unit
}

// VolumeLister enumerates logical volumes in a volume group. The lvm
// package provides the real implementation; tests inject fakes.
type VolumeLister func(ctx context.Context, vgName string) ([]string, error)

// ListUsage inspects a unit's contents and the guest configs that
// reference it. guestConfigDirs are the hypervisor's VM and container
// config directories.
func (f *File) ListUsage(ctx context.Context, id string, listVolumes VolumeLister, guestConfigDirs []string) (Usage, error) {
	unit, ok, err := f.Lookup(id)
	if err != nil {
		return Usage{}, err
	}
	if !ok {
		return Usage{}, fmt.Errorf("storage %q is not registered", id)
	}
	usage := Usage{Unit: unit}

	switch unit.Backend {
	case BackendLVM, BackendLVMThin:
		vols, err := listVolumes(ctx, unit.VolumeGroup)
		if err != nil {
			return Usage{}, fmt.Errorf("failed to list volumes in %s: %w", unit.VolumeGroup, err)
		}
		usage.Contents = vols
	default:
		if unit.Path != "" {
			entries, err := os.ReadDir(unit.Path)
			if err != nil && !os.IsNotExist(err) {
				return Usage{}, fmt.Errorf("failed to list contents of %s: %w", unit.Path, err)
			}
			for _, e := range entries {
				usage.Contents = append(usage.Contents, e.Name())
			}
		}
	}

	usage.UsedBy, err = guestsReferencing(id, guestConfigDirs)
	if err != nil {
		return Usage{}, err
	}
	return usage, nil
}

// guestsReferencing scans guest config files for volume references of
// the form "<id>:".
func guestsReferencing(id string, dirs []string) ([]string, error) {
	needle := id + ":"
	var guests []string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan guest configs in %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".conf") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				continue
			}
			if strings.Contains(string(data), needle) {
				guests = append(guests, strings.TrimSuffix(e.Name(), ".conf"))
			}
		}
	}
	sort.Strings(guests)
	return guests, nil
}
