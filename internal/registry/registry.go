// Package registry reads and writes the hypervisor's persisted
// storage configuration. The engine only ever creates, modifies or
// removes entries that are non-shared and assigned to exactly this
// node; everything else in the file passes through untouched.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Backend is the storage backend key of a registry block.
type Backend string

const (
	BackendDir     Backend = "dir"
	BackendLVM     Backend = "lvm"
	BackendLVMThin Backend = "lvmthin"
	BackendNFS     Backend = "nfs"
)

// Unit is one registered storage entry.
type Unit struct {
	Backend     Backend
	ID          string
	Path        string
	VolumeGroup string
	ThinPool    string
	Server      string
	Export      string
	Options     string
	Content     string
	Nodes       []string
	Shared      *bool       // nil when the block carries no shared key
	Extra       [][2]string // unrecognized keys, order preserved
}

// IsShared reports the effective shared flag (absent means local).
func (u Unit) IsShared() bool {
	return u.Shared != nil && *u.Shared
}

// IsLocalTo reports whether the unit is non-shared and assigned to
// exactly the given node. Only such units are ever managed.
func (u Unit) IsLocalTo(node string) bool {
	return !u.IsShared() && len(u.Nodes) == 1 && u.Nodes[0] == node
}

// File is the registry adapter backed by the persisted config file.
type File struct {
	path string
	node string
	log  *zap.Logger

	// DryRun suppresses writes; reads and lookups still hit the real
	// file so a simulated run reports against true state.
	DryRun bool
}

// NewFile returns a registry adapter for the given file and node.
func NewFile(path, node string, log *zap.Logger) *File {
	return &File{path: path, node: node, log: log}
}

// Units parses every entry in the registry file. A missing file is an
// empty registry.
func (f *File) Units() ([]Unit, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read storage registry %s: %w", f.path, err)
	}
	units, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse storage registry %s: %w", f.path, err)
	}
	return units, nil
}

// LocalUnits returns the entries this node manages: non-shared and
// assigned to exactly this node.
func (f *File) LocalUnits() ([]Unit, error) {
	units, err := f.Units()
	if err != nil {
		return nil, err
	}
	var local []Unit
	for _, u := range units {
		if u.IsLocalTo(f.node) {
			local = append(local, u)
		}
	}
	return local, nil
}

// Lookup returns the unit with the given ID, if present.
func (f *File) Lookup(id string) (Unit, bool, error) {
	units, err := f.Units()
	if err != nil {
		return Unit{}, false, err
	}
	for _, u := range units {
		if u.ID == id {
			return u, true, nil
		}
	}
	return Unit{}, false, nil
}

// Exists reports whether any entry has the given ID.
func (f *File) Exists(id string) (bool, error) {
	_, ok, err := f.Lookup(id)
	return ok, err
}

// AddFilesystemUnit registers a directory-backed unit. Idempotent: if
// the ID is already registered this is a no-op.
func (f *File) AddFilesystemUnit(id, mountPath string) error {
	return f.add(Unit{
		Backend: BackendDir,
		ID:      id,
		Path:    mountPath,
		Content: "images,rootdir",
		Nodes:   []string{f.node},
		Shared:  boolPtr(false),
	})
}

// AddThickVolumeUnit registers a thick-volume unit on a volume group.
func (f *File) AddThickVolumeUnit(id, vgName string) error {
	return f.add(Unit{
		Backend:     BackendLVM,
		ID:          id,
		VolumeGroup: vgName,
		Content:     "images,rootdir",
		Nodes:       []string{f.node},
		Shared:      boolPtr(false),
	})
}

// AddThinVolumeUnit registers a thin-provisioned unit on a volume
// group and thin pool.
func (f *File) AddThinVolumeUnit(id, vgName, poolName string) error {
	return f.add(Unit{
		Backend:     BackendLVMThin,
		ID:          id,
		VolumeGroup: vgName,
		ThinPool:    poolName,
		Content:     "images,rootdir",
		Nodes:       []string{f.node},
		Shared:      boolPtr(false),
	})
}

// AddNetworkUnit registers a network-filesystem unit.
func (f *File) AddNetworkUnit(id, server, export, mountPath, options string) error {
	return f.add(Unit{
		Backend: BackendNFS,
		ID:      id,
		Server:  server,
		Export:  export,
		Path:    mountPath,
		Options: options,
		Content: "images,rootdir",
		Nodes:   []string{f.node},
		Shared:  boolPtr(false),
	})
}

func (f *File) add(u Unit) error {
	units, err := f.Units()
	if err != nil {
		return err
	}
	for _, existing := range units {
		if existing.ID == u.ID {
			f.log.Info("storage unit already registered", zap.String("id", u.ID))
			return nil
		}
	}
	units = append(units, u)
	if err := f.save(units); err != nil {
		return err
	}
	f.log.Info("registered storage unit", zap.String("id", u.ID), zap.String("backend", string(u.Backend)))
	return nil
}

// Remove deletes the entry with the given ID. An absent ID is a no-op
// so that re-running a partially-completed teardown succeeds.
func (f *File) Remove(id string) error {
	units, err := f.Units()
	if err != nil {
		return err
	}
	kept := units[:0]
	removed := false
	for _, u := range units {
		if u.ID == id {
			removed = true
			continue
		}
		kept = append(kept, u)
	}
	if !removed {
		f.log.Info("storage unit already absent from registry", zap.String("id", id))
		return nil
	}
	if err := f.save(kept); err != nil {
		return err
	}
	f.log.Info("removed storage unit from registry", zap.String("id", id))
	return nil
}

// Rename changes a unit's ID. It fails if the old ID is absent or the
// new ID is taken, and persists a timestamped backup of the registry
// before mutating it.
func (f *File) Rename(oldID, newID string) error {
	units, err := f.Units()
	if err != nil {
		return err
	}
	oldIdx := -1
	for i, u := range units {
		if u.ID == newID {
			return fmt.Errorf("cannot rename %s: storage %q already exists", oldID, newID)
		}
		if u.ID == oldID {
			oldIdx = i
		}
	}
	if oldIdx < 0 {
		return fmt.Errorf("cannot rename non-existent storage %q", oldID)
	}

	if err := f.backup(); err != nil {
		return err
	}
	units[oldIdx].ID = newID
	if err := f.save(units); err != nil {
		return err
	}
	f.log.Info("renamed storage unit", zap.String("old", oldID), zap.String("new", newID))
	return nil
}

// UpdatePath points an existing unit at a new backing path.
func (f *File) UpdatePath(id, path string) error {
	units, err := f.Units()
	if err != nil {
		return err
	}
	for i := range units {
		if units[i].ID == id {
			units[i].Path = path
			return f.save(units)
		}
	}
	return fmt.Errorf("cannot update path of non-existent storage %q", id)
}

// backup copies the registry file next to itself with a timestamp
// suffix.
func (f *File) backup() error {
	if f.DryRun {
		return nil
	}
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read storage registry for backup: %w", err)
	}
	backupPath := fmt.Sprintf("%s.bak.%d", f.path, time.Now().Unix())
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry backup %s: %w", backupPath, err)
	}
	f.log.Info("backed up storage registry", zap.String("backup", backupPath))
	return nil
}

// save writes the registry atomically: temp file in the same
// directory, then rename over the original.
func (f *File) save(units []Unit) error {
	if f.DryRun {
		f.log.Info("WHATIF: would write storage registry", zap.String("path", f.path))
		return nil
	}
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".storage.cfg.*")
	if err != nil {
		return fmt.Errorf("failed to create temporary registry file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(Encode(units)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write storage registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write storage registry: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set registry permissions: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace storage registry %s: %w", f.path, err)
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }
