package backend

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/robertsinfosec/proxstor/internal/blockdev"
	"github.com/robertsinfosec/proxstor/internal/inspect"
	"github.com/robertsinfosec/proxstor/internal/label"
	"github.com/robertsinfosec/proxstor/internal/lvm"
)

// LVMThin provisions a thin-provisioned unit: the thick-volume layout
// plus a thin pool sized from the volume group's actual capacity.
type LVMThin struct {
	prep blockdev.Preparer
	vol  lvm.Manager
	reg  Registry
	log  *zap.Logger
}

// NewLVMThin returns the thin-volume backend.
func NewLVMThin(prep blockdev.Preparer, vol lvm.Manager, reg Registry, log *zap.Logger) *LVMThin {
	return &LVMThin{prep: prep, vol: vol, reg: reg, log: log}
}

func (b *LVMThin) Provision(ctx context.Context, d inspect.Disk, lab label.Label) error {
	// Check the floor against the raw disk before anything destructive.
	// The authoritative check below uses the volume group's real size.
	if d.SizeBytes > 0 && d.SizeBytes < lvm.MinThinVGBytes {
		return fmt.Errorf("disk %s (%s) is below the %s minimum for thin provisioning",
			d.Path, humanize.IBytes(d.SizeBytes), humanize.IBytes(uint64(lvm.MinThinVGBytes)))
	}

	part, err := prepareDisk(ctx, b.prep, b.log, d, lab, blockdev.TypeLVM)
	if err != nil {
		return err
	}
	if err := b.vol.CreatePV(ctx, part); err != nil {
		return fmt.Errorf("failed to initialize %s as a physical volume: %w", part, err)
	}
	if err := b.vol.CreateVG(ctx, lab.String(), part); err != nil {
		return fmt.Errorf("failed to create volume group %s: %w", lab, err)
	}

	vgs, err := b.vol.ListVGs(ctx)
	if err != nil {
		return err
	}
	var vgBytes uint64
	for _, vg := range vgs {
		if vg.Name == lab.String() {
			vgBytes = vg.SizeBytes
			break
		}
	}
	if vgBytes == 0 {
		// The group is invisible in a simulated run; size from the raw
		// disk instead.
		vgBytes = d.SizeBytes
	}
	if vgBytes == 0 {
		return fmt.Errorf("volume group %s not visible after creation", lab)
	}
	poolBytes, err := lvm.ThinPoolSize(vgBytes)
	if err != nil {
		return err
	}

	pool := lab.ThinPoolName()
	if err := b.vol.CreateThinPool(ctx, lab.String(), pool, poolBytes); err != nil {
		return fmt.Errorf("failed to create thin pool %s/%s: %w", lab, pool, err)
	}
	b.log.Info("created thin pool",
		zap.String("vg", lab.String()),
		zap.String("pool", pool),
		zap.String("size", humanize.IBytes(poolBytes)))
	return b.reg.AddThinVolumeUnit(lab.String(), lab.String(), pool)
}
