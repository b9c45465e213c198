package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/robertsinfosec/proxstor/internal/config"
	"github.com/robertsinfosec/proxstor/internal/filter"
	"github.com/robertsinfosec/proxstor/internal/inspect"
	"github.com/robertsinfosec/proxstor/internal/label"
	"github.com/robertsinfosec/proxstor/internal/lvm"
	"github.com/robertsinfosec/proxstor/internal/registry"
)

// Reconcile provisions the targeted disks (or the network export) into
// the requested storage type. Correctly labeled disks are healed in
// place unless the operator forced recreation with --all or a filter;
// everything else is wiped and provisioned fresh. Per-disk failures
// abort that disk only; the run continues with the next one.
func (e *Engine) Reconcile(ctx context.Context) error {
	if e.cfg.Type == config.TypeNFS {
		return e.provisionNetwork(ctx)
	}
	prov, ok := e.backends[e.cfg.Type]
	if !ok {
		return fmt.Errorf("no provisioner registered for storage type %q", e.cfg.Type)
	}

	sys, err := e.ins.ResolveSystemDisk(ctx)
	if err != nil {
		return err
	}
	units, err := e.reg.Units()
	if err != nil {
		return err
	}
	byID := unitByID(units)
	exists := func(id string) bool { _, ok := byID[id]; return ok }
	if err := filter.Validate(filter.ModeProvision, e.cfg.Filters, exists, sys.Path); err != nil {
		return err
	}

	disks, err := e.ins.ListDisks(ctx)
	if err != nil {
		return err
	}
	w, err := e.observe(ctx, byID)
	if err != nil {
		return err
	}

	// --all and explicit filters both mean the operator chose these
	// disks deliberately; a correct label no longer protects them.
	explicit := e.cfg.All || len(e.cfg.Filters) > 0

	var plan []decision
	for _, d := range disks {
		regID := ""
		if _, ok := byID[d.StorageLabel()]; ok {
			regID = d.StorageLabel()
		}
		if !filter.Matches(d.Path, d.StorageLabel(), regID, e.cfg.Filters) {
			continue
		}
		plan = append(plan, evaluate(d, e.ins.Classify(ctx, d), explicit, w))
	}

	reclaim := len(e.cfg.Filters) == 0
	reclaimWork := false
	if reclaim {
		reclaimWork, err = e.reclaimHasWork(ctx, byID)
		if err != nil {
			return err
		}
	}

	if ok, err := e.confirmPlan(plan, reclaimWork); err != nil {
		return err
	} else if !ok {
		e.log.Info("run aborted by operator; no changes made")
		return nil
	}

	failed := 0
	claimed := []string{}
	for _, dec := range plan {
		switch dec.action {
		case actionSkip:
			e.log.Warn("skipping disk",
				zap.String("device", dec.disk.Path),
				zap.String("reason", dec.reason))
		case actionHeal:
			if err := e.heal(ctx, dec); err != nil {
				failed++
				e.log.Error("failed to heal disk",
					zap.String("device", dec.disk.Path),
					zap.String("label", dec.lab.String()),
					zap.Error(err))
				continue
			}
			e.log.Info("disk reconciled",
				zap.String("device", dec.disk.Path),
				zap.String("label", dec.lab.String()),
				zap.String("state", stateHealed.String()))
		case actionRecreate:
			lab, err := e.recreate(ctx, prov, dec, w, disks, claimed)
			if err != nil {
				failed++
				e.log.Error("failed to provision disk",
					zap.String("device", dec.disk.Path),
					zap.Error(err))
				continue
			}
			claimed = append(claimed, lab.String())
			e.log.Info("disk reconciled",
				zap.String("device", dec.disk.Path),
				zap.String("label", lab.String()),
				zap.String("state", stateRecreated.String()))
		}
	}

	if reclaim {
		if err := e.reclaimSystemDisk(ctx); err != nil {
			e.log.Error("system-disk reclaim failed", zap.Error(err))
			failed++
		}
	}
	return runErrors(failed, len(plan), "disks")
}

// observe gathers the volume-management view the transition function
// needs.
func (e *Engine) observe(ctx context.Context, byID map[string]registry.Unit) (world, error) {
	w := world{
		digit: e.cfg.NodeDigit,
		units: byID,
		vgs:   map[string]lvm.VG{},
		pools: map[string]string{},
	}
	vgs, err := e.vol.ListVGs(ctx)
	if err != nil {
		return w, err
	}
	for _, vg := range vgs {
		w.vgs[vg.Name] = vg
		lvs, err := e.vol.ListLVs(ctx, vg.Name)
		if err != nil {
			return w, err
		}
		for _, lv := range lvs {
			if lv.IsThinPool() {
				w.pools[vg.Name] = lv.Name
				break
			}
		}
	}
	return w, nil
}

// confirmPlan runs the destructive part of the plan past the safety
// gate. A plan with nothing destructive needs no confirmation.
func (e *Engine) confirmPlan(plan []decision, reclaimWork bool) (bool, error) {
	var lines []string
	for _, dec := range plan {
		if dec.action == actionRecreate {
			lines = append(lines, fmt.Sprintf("wipe and provision %s (%s)", dec.disk.Path, dec.reason))
		}
	}
	if reclaimWork {
		lines = append(lines, fmt.Sprintf("remove the %s thin pool from the system disk and grow %s/%s",
			e.cfg.ThinUnit, e.cfg.RootVG, e.cfg.RootLV))
	}
	if len(lines) == 0 {
		return true, nil
	}
	return e.gate.Confirm("The following destructive actions will run:\n  " + strings.Join(lines, "\n  "))
}

// recreate wipes a disk and provisions it fresh, clearing any stale
// registry and mount state its old label left behind.
func (e *Engine) recreate(ctx context.Context, prov DiskProvisioner, dec decision,
	w world, disks []inspect.Disk, claimed []string) (label.Label, error) {

	if dec.stale != "" {
		if err := e.removeStaleUnit(ctx, w, dec.stale); err != nil {
			return label.Label{}, err
		}
	}

	kind, _ := dec.class.LabelKind()
	existing := collectNames(w, disks, claimed, dec.stale)
	lab, err := label.Next(kind, e.cfg.NodeDigit, existing)
	if err != nil {
		return label.Label{}, err
	}
	if err := prov.Provision(ctx, dec.disk, lab); err != nil {
		return label.Label{}, err
	}
	return lab, nil
}

// removeStaleUnit clears the registry and mount state of a unit whose
// backing disk is about to be wiped.
func (e *Engine) removeStaleUnit(ctx context.Context, w world, id string) error {
	u, ok := w.units[id]
	if ok && (u.Backend == registry.BackendDir || u.Backend == registry.BackendNFS) && u.Path != "" {
		if mounted, err := e.mnt.IsMounted(ctx, u.Path); err == nil && mounted {
			if err := e.mnt.Unmount(ctx, u.Path); err != nil {
				return err
			}
		}
		if err := e.mnt.RemoveEntries(u.Path); err != nil {
			return err
		}
		if err := e.mnt.RemoveMountpoint(u.Path); err != nil {
			e.log.Warn("could not remove old mount point", zap.String("target", u.Path), zap.Error(err))
		}
	}
	return e.reg.Remove(id)
}

// heal brings a correctly-labeled disk's registry and mount state back
// without touching its data.
func (e *Engine) heal(ctx context.Context, dec decision) error {
	id := dec.lab.String()
	switch dec.current {
	case registry.BackendLVM:
		return e.reg.AddThickVolumeUnit(id, id)
	case registry.BackendLVMThin:
		pool := dec.pool
		if pool == "" {
			pool = dec.lab.ThinPoolName()
		}
		return e.reg.AddThinVolumeUnit(id, id, pool)
	default:
		return e.healFilesystemUnit(ctx, dec)
	}
}

func (e *Engine) healFilesystemUnit(ctx context.Context, dec decision) error {
	id := dec.lab.String()
	target := filepath.Join(e.mnt.MountRoot(), id)
	if err := e.mnt.EnsureMountpoint(target); err != nil {
		return err
	}
	if _, ok, err := e.mnt.LookupEntry(target); err != nil {
		return err
	} else if !ok {
		// The labeled partition is the source of truth; a disk someone
		// partitioned by hand may carry the label past partition 1.
		dev := dec.disk.FirstPartitionPath()
		if p, ok := dec.disk.PartitionByLabel(id); ok {
			dev = p.Path
		}
		fsUUID, err := e.mnt.UUIDOf(ctx, dev)
		if err != nil {
			return err
		}
		if err := e.mnt.EnsureEntry("UUID="+fsUUID, target, "ext4", "defaults"); err != nil {
			return err
		}
	}
	if mounted, err := e.mnt.IsMounted(ctx, target); err == nil && !mounted {
		if err := e.mnt.Mount(ctx, target); err != nil {
			return err
		}
	}
	return e.reg.AddFilesystemUnit(id, target)
}

// provisionNetwork registers the configured export under the next free
// network label. An export already registered on this node is a no-op.
func (e *Engine) provisionNetwork(ctx context.Context) error {
	units, err := e.reg.Units()
	if err != nil {
		return err
	}
	var ids []string
	for _, u := range units {
		if u.Backend == registry.BackendNFS && u.Server == e.cfg.Server && u.Export == e.cfg.Export {
			e.log.Info("export already registered",
				zap.String("id", u.ID),
				zap.String("server", u.Server),
				zap.String("export", u.Export))
			return nil
		}
		ids = append(ids, u.ID)
	}
	lab, err := label.Next(label.KindNFS, e.cfg.NodeDigit, ids)
	if err != nil {
		return err
	}
	if err := e.net.Provision(ctx, lab); err != nil {
		return err
	}
	e.log.Info("network storage provisioned", zap.String("label", lab.String()))
	return nil
}

// reclaimHasWork reports whether system-disk reclaim would remove
// anything, so the safety gate only prompts when it matters.
func (e *Engine) reclaimHasWork(ctx context.Context, byID map[string]registry.Unit) (bool, error) {
	if _, ok := byID[e.cfg.ThinUnit]; ok {
		return true, nil
	}
	lvs, err := e.vol.ListLVs(ctx, e.cfg.RootVG)
	if err != nil {
		return false, err
	}
	for _, lv := range lvs {
		if lv.IsThinPool() {
			return true, nil
		}
	}
	return false, nil
}

// reclaimSystemDisk hands the stock thin pool's space back to the root
// volume. Three independently idempotent steps: registry entry, thin
// pools, root volume growth.
func (e *Engine) reclaimSystemDisk(ctx context.Context) error {
	if err := e.reg.Remove(e.cfg.ThinUnit); err != nil {
		return err
	}

	lvs, err := e.vol.ListLVs(ctx, e.cfg.RootVG)
	if err != nil {
		return err
	}
	for _, lv := range lvs {
		if !lv.IsThinPool() {
			continue
		}
		if err := e.vol.RemoveLV(ctx, e.cfg.RootVG, lv.Name); err != nil {
			return err
		}
		e.log.Info("removed system-disk thin pool",
			zap.String("vg", e.cfg.RootVG),
			zap.String("pool", lv.Name))
	}

	if err := e.vol.ExtendLVFull(ctx, e.cfg.RootVG, e.cfg.RootLV); err != nil {
		return err
	}
	return e.vol.GrowFS(ctx, fmt.Sprintf("/dev/%s/%s", e.cfg.RootVG, e.cfg.RootLV))
}

// collectNames gathers every name that constrains label allocation:
// registry IDs, partition labels, volume group names, and labels
// already claimed this run. exclude drops the stale label of the disk
// being recreated so its letter is reused.
func collectNames(w world, disks []inspect.Disk, claimed []string, exclude string) []string {
	var names []string
	for id := range w.units {
		if id != exclude {
			names = append(names, id)
		}
	}
	for _, d := range disks {
		if l := d.StorageLabel(); l != "" && l != exclude {
			names = append(names, l)
		}
	}
	for name := range w.vgs {
		if name != exclude {
			names = append(names, name)
		}
	}
	return append(names, claimed...)
}
