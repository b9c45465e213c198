package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/robertsinfosec/proxstor/internal/filter"
	"github.com/robertsinfosec/proxstor/internal/inspect"
	"github.com/robertsinfosec/proxstor/internal/registry"
)

// Teardown deprovisions the targeted storage units and returns their
// disks to a raw state. Three ordered stages: registry removal, volume
// group dismantling, raw wipe. A volume group that spans beyond the
// targeted disks, or touches the system disk, is left fully intact and
// reported.
func (e *Engine) Teardown(ctx context.Context) error {
	sys, err := e.ins.ResolveSystemDisk(ctx)
	if err != nil {
		return err
	}
	locals, err := e.reg.LocalUnits()
	if err != nil {
		return err
	}
	localByID := unitByID(locals)
	exists := func(id string) bool { _, ok := localByID[id]; return ok }
	if err := filter.Validate(filter.ModeDeprovision, e.cfg.Filters, exists, sys.Path); err != nil {
		return err
	}

	all, err := e.ins.AllDisks(ctx)
	if err != nil {
		return err
	}
	var disks []inspect.Disk
	for _, d := range all {
		if d.Path != sys.Path {
			disks = append(disks, d)
		}
	}

	pvs, err := e.vol.ListPVs(ctx)
	if err != nil {
		return err
	}
	// vg -> member disk paths ("" marks a PV on no known disk, which
	// keeps its group ineligible).
	vgDisks := map[string][]string{}
	for _, pv := range pvs {
		if pv.VGName == "" {
			continue
		}
		vgDisks[pv.VGName] = append(vgDisks[pv.VGName], parentDiskOf(pv.Name, all))
	}
	vgPVs := map[string][]string{}
	for _, pv := range pvs {
		if pv.VGName != "" {
			vgPVs[pv.VGName] = append(vgPVs[pv.VGName], pv.Name)
		}
	}

	targetDisks := map[string]bool{}
	for _, d := range disks {
		regID := ""
		if _, ok := localByID[d.StorageLabel()]; ok {
			regID = d.StorageLabel()
		}
		if filter.Matches(d.Path, d.StorageLabel(), regID, e.cfg.Filters) {
			targetDisks[d.Path] = true
		}
	}

	var targets []registry.Unit
	for _, u := range locals {
		if filter.MatchesID(u.ID, e.cfg.Filters) {
			targets = append(targets, u)
			for _, dp := range e.backingDisks(u, disks, vgDisks) {
				if dp != "" && dp != sys.Path {
					targetDisks[dp] = true
				}
			}
			continue
		}
		for _, dp := range e.backingDisks(u, disks, vgDisks) {
			if targetDisks[dp] {
				targets = append(targets, u)
				break
			}
		}
	}

	if len(targets) == 0 && len(targetDisks) == 0 {
		e.log.Info("nothing to deprovision")
		return nil
	}

	if ok, err := e.confirmTeardown(targets, targetDisks); err != nil {
		return err
	} else if !ok {
		e.log.Info("run aborted by operator; no changes made")
		return nil
	}

	failed := 0

	// Stage 1: registry and mount-table removal.
	for _, u := range targets {
		if err := e.removeUnit(ctx, u); err != nil {
			failed++
			e.log.Error("failed to remove storage unit",
				zap.String("id", u.ID), zap.Error(err))
		}
	}

	// Stage 2: volume group dismantling with spanning safety. Disks
	// holding members of a refused group are also protected from the
	// raw wipe below.
	protected := map[string]bool{}
	for vg, members := range vgDisks {
		if !intersects(members, targetDisks) {
			continue
		}
		if reason := spanningRefusal(vg, members, targetDisks, sys.Path); reason != "" {
			e.log.Warn("leaving volume group intact", zap.String("vg", vg), zap.String("reason", reason))
			for _, m := range members {
				if m != "" {
					protected[m] = true
				}
			}
			continue
		}
		if err := e.dismantleVG(ctx, vg, vgPVs[vg]); err != nil {
			failed++
			e.log.Error("failed to dismantle volume group",
				zap.String("vg", vg), zap.Error(err))
		}
	}

	// Stage 3: raw wipe.
	for _, d := range disks {
		if !targetDisks[d.Path] {
			continue
		}
		if protected[d.Path] {
			e.log.Warn("leaving disk intact", zap.String("device", d.Path),
				zap.String("reason", "it backs a volume group that was left in place"))
			continue
		}
		if reason := e.wipeRefusal(d, disks, targetDisks); reason != "" {
			e.log.Warn("leaving disk intact", zap.String("device", d.Path), zap.String("reason", reason))
			continue
		}
		if err := e.wipeDisk(ctx, d); err != nil {
			failed++
			e.log.Error("failed to wipe disk", zap.String("device", d.Path), zap.Error(err))
		}
	}

	return runErrors(failed, len(targets)+len(targetDisks), "storage targets")
}

// backingDisks returns the disks a unit's data lives on. Network units
// have none.
func (e *Engine) backingDisks(u registry.Unit, disks []inspect.Disk, vgDisks map[string][]string) []string {
	switch u.Backend {
	case registry.BackendLVM, registry.BackendLVMThin:
		return vgDisks[u.VolumeGroup]
	case registry.BackendDir:
		for _, d := range disks {
			if d.StorageLabel() == u.ID {
				return []string{d.Path}
			}
		}
	}
	return nil
}

func (e *Engine) confirmTeardown(targets []registry.Unit, targetDisks map[string]bool) (bool, error) {
	var lines []string
	for _, u := range targets {
		lines = append(lines, fmt.Sprintf("remove storage unit %s (%s)", u.ID, u.Backend))
	}
	for dp := range targetDisks {
		lines = append(lines, "wipe disk "+dp)
	}
	return e.gate.Confirm("The following will be destroyed:\n  " + strings.Join(lines, "\n  "))
}

// removeUnit strips one unit's registry entry and, for path-backed
// units, its mount state.
func (e *Engine) removeUnit(ctx context.Context, u registry.Unit) error {
	if (u.Backend == registry.BackendDir || u.Backend == registry.BackendNFS) && u.Path != "" {
		if mounted, err := e.mnt.IsMounted(ctx, u.Path); err == nil && mounted {
			if err := e.mnt.Unmount(ctx, u.Path); err != nil {
				return err
			}
		}
		if err := e.mnt.RemoveEntries(u.Path); err != nil {
			return err
		}
		if err := e.mnt.RemoveMountpoint(u.Path); err != nil {
			e.log.Warn("could not remove mount point", zap.String("target", u.Path), zap.Error(err))
		}
	}
	return e.reg.Remove(u.ID)
}

// spanningRefusal explains why a volume group must be left alone, or
// returns "" when it is safe to dismantle.
func spanningRefusal(vg string, members []string, targetDisks map[string]bool, sysPath string) string {
	for _, m := range members {
		if m == "" {
			return "a physical volume sits on an unidentified device"
		}
		if m == sysPath {
			return "a physical volume sits on the system disk"
		}
		if !targetDisks[m] {
			return fmt.Sprintf("group spans onto %s, which is outside the targeted set", m)
		}
	}
	return ""
}

// dismantleVG removes a volume group bottom-up: thin pools, remaining
// volumes, the group, then its physical volumes.
func (e *Engine) dismantleVG(ctx context.Context, vg string, pvPaths []string) error {
	lvs, err := e.vol.ListLVs(ctx, vg)
	if err != nil {
		return err
	}
	for _, lv := range lvs {
		if lv.IsThinPool() {
			if err := e.vol.RemoveLV(ctx, vg, lv.Name); err != nil {
				return err
			}
		}
	}
	if err := e.vol.DeactivateVG(ctx, vg); err != nil {
		return err
	}
	if err := e.vol.RemoveVG(ctx, vg); err != nil {
		return err
	}
	for _, pv := range pvPaths {
		if err := e.vol.RemovePV(ctx, pv); err != nil {
			return err
		}
	}
	e.log.Info("dismantled volume group", zap.String("vg", vg))
	return nil
}

// wipeRefusal explains why a disk cannot be wiped, or returns "" when
// it can. Array and pool member signatures get the same spanning rule
// as volume groups: if the membership could extend onto a disk outside
// the targeted set, leave the disk alone.
func (e *Engine) wipeRefusal(d inspect.Disk, disks []inspect.Disk, targetDisks map[string]bool) string {
	root := filepath.Clean(e.mnt.MountRoot())
	for _, p := range d.Partitions {
		if p.Mountpoint == "" {
			continue
		}
		// Compare path components, not string prefixes: /mnt/pve-backup
		// is outside root /mnt/pve.
		mp := filepath.Clean(p.Mountpoint)
		if mp != root && !strings.HasPrefix(mp, root+string(filepath.Separator)) {
			return fmt.Sprintf("partition %s is mounted at %s, outside the managed mount root", p.Path, p.Mountpoint)
		}
	}
	member := memberSignature(d)
	if member == "" {
		return ""
	}
	for _, other := range disks {
		if other.Path == d.Path || targetDisks[other.Path] {
			continue
		}
		if memberSignature(other) == member {
			return fmt.Sprintf("%s membership may span onto %s, which is outside the targeted set", member, other.Path)
		}
	}
	return ""
}

// memberSignature reports a redundant-array or pool membership
// signature on the disk, if any.
func memberSignature(d inspect.Disk) string {
	for _, p := range d.Partitions {
		switch p.FSType {
		case "linux_raid_member":
			return "raid-array"
		case "zfs_member":
			return "zfs-pool"
		}
	}
	return ""
}

// wipeDisk unmounts stragglers and erases all storage structures on
// the disk.
func (e *Engine) wipeDisk(ctx context.Context, d inspect.Disk) error {
	for _, p := range d.Partitions {
		if p.Mountpoint == "" {
			continue
		}
		if mounted, err := e.mnt.IsMounted(ctx, p.Mountpoint); err == nil && mounted {
			if err := e.mnt.Unmount(ctx, p.Mountpoint); err != nil {
				return err
			}
		}
	}
	if err := e.prep.WipeSignatures(ctx, d.Path); err != nil {
		return err
	}
	if err := e.prep.ZapPartitionTable(ctx, d.Path); err != nil {
		return err
	}
	_ = e.prep.RefreshPartitions(ctx, d.Path)
	_ = e.prep.Settle(ctx)

	remain, err := e.prep.PartitionsRemain(ctx, d.Path)
	if err != nil {
		return err
	}
	if remain {
		e.log.Warn("partitions still visible after wipe; the kernel view converges on its own",
			zap.String("device", d.Path))
	}
	e.log.Info("wiped disk", zap.String("device", d.Path))
	return nil
}

// intersects reports whether any member disk is targeted.
func intersects(members []string, targetDisks map[string]bool) bool {
	for _, m := range members {
		if targetDisks[m] {
			return true
		}
	}
	return false
}
