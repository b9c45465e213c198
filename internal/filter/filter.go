// Package filter normalizes and matches the operator's scoping
// criteria. A filter shaped like a storage label (HDD-2C) selects by
// name; anything else is a device path, matched after normalization.
// Both engines use the same matching, so a unit created on /dev/sdb as
// HDD-1A is selected identically by either filter form afterwards.
package filter

import (
	"fmt"
	"path/filepath"

	"github.com/robertsinfosec/proxstor/internal/label"
)

// Mode selects the validation rules: provisioning targets raw disks,
// deprovisioning targets existing registry entries.
type Mode int

const (
	ModeProvision Mode = iota
	ModeDeprovision
)

// NormalizePath canonicalizes a device-path filter: relative paths
// become absolute and symlinks (e.g. /dev/disk/by-id/...) resolve to
// the real device node. Resolution failures fall back to the cleaned
// path so that a filter for an absent device still compares exactly.
func NormalizePath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = p
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return filepath.Clean(abs)
}

// IsName reports whether a filter is a storage-name filter.
func IsName(f string) bool {
	return label.IsLabel(f)
}

// Matches reports whether a disk is selected by the filter set. An
// empty set matches everything. Name filters compare against the
// registry ID for the unit on the disk and against the disk's
// partition label; path filters compare normalized paths exactly.
func Matches(devPath, partLabel, registryID string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	dev := filepath.Clean(devPath)
	for _, f := range filters {
		if IsName(f) {
			if f == registryID && f != "" || f == partLabel && f != "" {
				return true
			}
			continue
		}
		if NormalizePath(f) == dev {
			return true
		}
	}
	return false
}

// MatchesID reports whether a registry ID alone is selected, for
// entries with no backing disk (network units).
func MatchesID(registryID string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if IsName(f) && f == registryID {
			return true
		}
	}
	return false
}

// Validate rejects filter sets that would be unsafe or meaningless
// before any mutation happens:
//
//   - a path filter resolving to the system disk is fatal in both modes
//   - provisioning over an existing storage name is fatal
//   - deprovisioning a storage name absent from the registry is fatal
func Validate(mode Mode, filters []string, exists func(id string) bool, systemDiskPath string) error {
	sys := filepath.Clean(systemDiskPath)
	for _, f := range filters {
		if IsName(f) {
			switch mode {
			case ModeProvision:
				if exists(f) {
					return fmt.Errorf("cannot provision over existing storage %q; deprovision it first", f)
				}
			case ModeDeprovision:
				if !exists(f) {
					return fmt.Errorf("cannot deprovision non-existent storage %q", f)
				}
			}
			continue
		}
		if NormalizePath(f) == sys {
			return fmt.Errorf("filter %q resolves to the system disk %s; refusing to touch it", f, sys)
		}
	}
	return nil
}
