package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/robertsinfosec/proxstor/internal/blockdev"
	"github.com/robertsinfosec/proxstor/internal/inspect"
	"github.com/robertsinfosec/proxstor/internal/label"
	"github.com/robertsinfosec/proxstor/internal/lvm"
)

// LVM provisions a thick-volume unit: one LVM-typed partition, a
// physical volume, and a volume group named after the label.
type LVM struct {
	prep blockdev.Preparer
	vol  lvm.Manager
	reg  Registry
	log  *zap.Logger
}

// NewLVM returns the thick-volume backend.
func NewLVM(prep blockdev.Preparer, vol lvm.Manager, reg Registry, log *zap.Logger) *LVM {
	return &LVM{prep: prep, vol: vol, reg: reg, log: log}
}

func (b *LVM) Provision(ctx context.Context, d inspect.Disk, lab label.Label) error {
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
	return b.reg.AddThickVolumeUnit(lab.String(), lab.String())
}
