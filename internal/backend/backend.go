// Package backend implements the per-type provisioners. Each backend
// turns one target (a prepared disk, or a network export) into a
// mounted, registered storage unit. Backends assume the caller has
// already classified the disk, allocated the label, and cleared the
// safety gate.
package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/robertsinfosec/proxstor/internal/blockdev"
	"github.com/robertsinfosec/proxstor/internal/inspect"
	"github.com/robertsinfosec/proxstor/internal/label"
)

// Registry is the slice of the storage registry the backends use.
type Registry interface {
	AddFilesystemUnit(id, mountPath string) error
	AddThickVolumeUnit(id, vgName string) error
	AddThinVolumeUnit(id, vgName, poolName string) error
	AddNetworkUnit(id, server, export, mountPath, options string) error
}

// Provisioner turns one disk into a registered storage unit.
type Provisioner interface {
	Provision(ctx context.Context, d inspect.Disk, lab label.Label) error
}

// prepareDisk takes a raw disk down to a single labeled partition:
// read probe, signature wipe, table zap, then a fresh GPT with one
// partition named after the label. The kernel refresh steps are
// advisory.
func prepareDisk(ctx context.Context, prep blockdev.Preparer, log *zap.Logger,
	d inspect.Disk, lab label.Label, typeCode string) (string, error) {

	if err := prep.ProbeReadable(ctx, d.Path); err != nil {
		return "", err
	}
	if err := prep.WipeSignatures(ctx, d.Path); err != nil {
		return "", fmt.Errorf("failed to wipe %s: %w", d.Path, err)
	}
	if err := prep.ZapPartitionTable(ctx, d.Path); err != nil {
		return "", fmt.Errorf("failed to clear the partition table on %s: %w", d.Path, err)
	}
	if err := prep.CreateGPT(ctx, d.Path, lab.String(), typeCode); err != nil {
		return "", fmt.Errorf("failed to partition %s as %s: %w", d.Path, lab, err)
	}
	_ = prep.RefreshPartitions(ctx, d.Path)
	_ = prep.Settle(ctx)

	part := d.FirstPartitionPath()
	log.Info("prepared disk",
		zap.String("device", d.Path),
		zap.String("partition", part),
		zap.String("label", lab.String()))
	return part, nil
}
