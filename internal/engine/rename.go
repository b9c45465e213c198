package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/robertsinfosec/proxstor/internal/registry"
)

// Rename changes a storage unit's ID. Path-backed units (dir, nfs)
// also get their mountpoint and mount-table entry migrated to the new
// name; volume-backed units keep their volume group untouched.
func (e *Engine) Rename(ctx context.Context, oldID, newID string) error {
	if newID == "" || strings.ContainsAny(newID, ": \t") {
		return fmt.Errorf("invalid storage name %q", newID)
	}

	u, ok, err := e.reg.Lookup(oldID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cannot rename non-existent storage %q", oldID)
	}
	if !u.IsLocalTo(e.cfg.Node) {
		return fmt.Errorf("storage %q is not managed by this node", oldID)
	}
	if _, taken, err := e.reg.Lookup(newID); err != nil {
		return err
	} else if taken {
		return fmt.Errorf("cannot rename %s: storage %q already exists", oldID, newID)
	}

	if ok, err := e.gate.Confirm(fmt.Sprintf("Rename storage %s to %s.", oldID, newID)); err != nil {
		return err
	} else if !ok {
		e.log.Info("rename aborted by operator; no changes made")
		return nil
	}

	pathBacked := (u.Backend == registry.BackendDir || u.Backend == registry.BackendNFS) && u.Path != ""
	newTarget := filepath.Join(e.mnt.MountRoot(), newID)

	if pathBacked {
		if err := e.migrateMount(ctx, u.Path, newTarget); err != nil {
			return err
		}
	}
	if err := e.reg.Rename(oldID, newID); err != nil {
		return err
	}
	if pathBacked {
		if err := e.reg.UpdatePath(newID, newTarget); err != nil {
			return err
		}
	}
	e.log.Info("renamed storage unit", zap.String("old", oldID), zap.String("new", newID))
	return nil
}

// migrateMount moves a unit's mount from one target to another,
// carrying the existing mount-table entry over.
func (e *Engine) migrateMount(ctx context.Context, oldTarget, newTarget string) error {
	entry, ok, err := e.mnt.LookupEntry(oldTarget)
	if err != nil {
		return err
	}

	if mounted, err := e.mnt.IsMounted(ctx, oldTarget); err == nil && mounted {
		if err := e.mnt.Unmount(ctx, oldTarget); err != nil {
			return err
		}
	}
	if !ok {
		// No mount-table entry to carry over; just move the directory.
		if err := e.mnt.EnsureMountpoint(newTarget); err != nil {
			return err
		}
		return e.removeOldMountpoint(oldTarget)
	}

	if err := e.mnt.RemoveEntries(oldTarget); err != nil {
		return err
	}
	if err := e.mnt.EnsureMountpoint(newTarget); err != nil {
		return err
	}
	if err := e.mnt.EnsureEntry(entry.Spec, newTarget, entry.FSType, entry.Options); err != nil {
		return err
	}
	if err := e.mnt.Mount(ctx, newTarget); err != nil {
		return err
	}
	return e.removeOldMountpoint(oldTarget)
}

func (e *Engine) removeOldMountpoint(oldTarget string) error {
	if err := e.mnt.RemoveMountpoint(oldTarget); err != nil {
		e.log.Warn("could not remove old mount point", zap.String("target", oldTarget), zap.Error(err))
	}
	return nil
}
