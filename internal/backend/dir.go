package backend

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/robertsinfosec/proxstor/internal/blockdev"
	"github.com/robertsinfosec/proxstor/internal/inspect"
	"github.com/robertsinfosec/proxstor/internal/label"
	"github.com/robertsinfosec/proxstor/internal/mounts"
)

// Dir provisions a directory-backed unit: one ext4 partition, mounted
// under the managed root, persisted by filesystem UUID.
type Dir struct {
	prep       blockdev.Preparer
	mnt        mounts.Mounter
	reg        Registry
	fullFormat bool
	log        *zap.Logger
}

// NewDir returns the directory backend. fullFormat selects the slower
// mkfs defaults over the fast large-file profile.
func NewDir(prep blockdev.Preparer, mnt mounts.Mounter, reg Registry, fullFormat bool, log *zap.Logger) *Dir {
	return &Dir{prep: prep, mnt: mnt, reg: reg, fullFormat: fullFormat, log: log}
}

func (b *Dir) Provision(ctx context.Context, d inspect.Disk, lab label.Label) error {
	part, err := prepareDisk(ctx, b.prep, b.log, d, lab, blockdev.TypeLinuxFS)
	if err != nil {
		return err
	}
	if err := b.mnt.Format(ctx, part, lab.String(), !b.fullFormat); err != nil {
		return fmt.Errorf("failed to format %s: %w", part, err)
	}
	fsUUID, err := b.mnt.UUIDOf(ctx, part)
	if err != nil {
		return err
	}

	target := filepath.Join(b.mnt.MountRoot(), lab.String())
	if err := b.mnt.EnsureMountpoint(target); err != nil {
		return err
	}
	if err := b.mnt.EnsureEntry("UUID="+fsUUID, target, "ext4", "defaults"); err != nil {
		return err
	}
	if err := b.mnt.Mount(ctx, target); err != nil {
		return fmt.Errorf("failed to mount %s: %w", target, err)
	}
	return b.reg.AddFilesystemUnit(lab.String(), target)
}
