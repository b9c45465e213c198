package engine

import (
	"context"
	"fmt"

	"github.com/robertsinfosec/proxstor/internal/inspect"
	"github.com/robertsinfosec/proxstor/internal/label"
	"github.com/robertsinfosec/proxstor/internal/lvm"
	"github.com/robertsinfosec/proxstor/internal/mounts"
	"github.com/robertsinfosec/proxstor/internal/registry"
)

// fakeInspector serves a fixed disk inventory.
type fakeInspector struct {
	sys   inspect.Disk
	disks []inspect.Disk // non-system
	class map[string]inspect.Class
}

func (f *fakeInspector) AllDisks(ctx context.Context) ([]inspect.Disk, error) {
	return append([]inspect.Disk{f.sys}, f.disks...), nil
}

func (f *fakeInspector) ListDisks(ctx context.Context) ([]inspect.Disk, error) {
	return f.disks, nil
}

func (f *fakeInspector) ResolveSystemDisk(ctx context.Context) (inspect.Disk, error) {
	return f.sys, nil
}

func (f *fakeInspector) Classify(ctx context.Context, d inspect.Disk) inspect.Class {
	if c, ok := f.class[d.Path]; ok {
		return c
	}
	return inspect.ClassUnknown
}

// fakeRegistry is an in-memory registry recording every mutation.
type fakeRegistry struct {
	node  string
	units []registry.Unit
	ops   []string
}

func (f *fakeRegistry) Units() ([]registry.Unit, error) { return f.units, nil }

func (f *fakeRegistry) LocalUnits() ([]registry.Unit, error) {
	var local []registry.Unit
	for _, u := range f.units {
		if u.IsLocalTo(f.node) {
			local = append(local, u)
		}
	}
	return local, nil
}

func (f *fakeRegistry) Lookup(id string) (registry.Unit, bool, error) {
	for _, u := range f.units {
		if u.ID == id {
			return u, true, nil
		}
	}
	return registry.Unit{}, false, nil
}

func (f *fakeRegistry) Remove(id string) error {
	f.ops = append(f.ops, "remove "+id)
	kept := f.units[:0]
	for _, u := range f.units {
		if u.ID != id {
			kept = append(kept, u)
		}
	}
	f.units = kept
	return nil
}

func (f *fakeRegistry) Rename(oldID, newID string) error {
	f.ops = append(f.ops, fmt.Sprintf("rename %s %s", oldID, newID))
	for i := range f.units {
		if f.units[i].ID == oldID {
			f.units[i].ID = newID
			return nil
		}
	}
	return fmt.Errorf("cannot rename non-existent storage %q", oldID)
}

func (f *fakeRegistry) UpdatePath(id, path string) error {
	f.ops = append(f.ops, fmt.Sprintf("setpath %s %s", id, path))
	for i := range f.units {
		if f.units[i].ID == id {
			f.units[i].Path = path
			return nil
		}
	}
	return fmt.Errorf("no such storage %q", id)
}

func (f *fakeRegistry) add(u registry.Unit, op string) error {
	f.ops = append(f.ops, op)
	for _, existing := range f.units {
		if existing.ID == u.ID {
			return nil
		}
	}
	if u.Shared == nil {
		v := false
		u.Shared = &v
	}
	u.Nodes = []string{f.node}
	f.units = append(f.units, u)
	return nil
}

func (f *fakeRegistry) AddFilesystemUnit(id, mountPath string) error {
	return f.add(registry.Unit{Backend: registry.BackendDir, ID: id, Path: mountPath},
		fmt.Sprintf("add-dir %s %s", id, mountPath))
}

func (f *fakeRegistry) AddThickVolumeUnit(id, vgName string) error {
	return f.add(registry.Unit{Backend: registry.BackendLVM, ID: id, VolumeGroup: vgName},
		fmt.Sprintf("add-lvm %s %s", id, vgName))
}

func (f *fakeRegistry) AddThinVolumeUnit(id, vgName, poolName string) error {
	return f.add(registry.Unit{Backend: registry.BackendLVMThin, ID: id, VolumeGroup: vgName, ThinPool: poolName},
		fmt.Sprintf("add-lvmthin %s %s %s", id, vgName, poolName))
}

func (f *fakeRegistry) AddNetworkUnit(id, server, export, mountPath, options string) error {
	return f.add(registry.Unit{Backend: registry.BackendNFS, ID: id, Server: server, Export: export, Path: mountPath, Options: options},
		fmt.Sprintf("add-nfs %s %s:%s", id, server, export))
}

// fakeVolumes is an in-memory lvm view recording mutations.
type fakeVolumes struct {
	vgs   []lvm.VG
	pvs   []lvm.PV
	lvs   map[string][]lvm.LV
	calls []string
}

func (f *fakeVolumes) CreatePV(ctx context.Context, device string) error {
	f.calls = append(f.calls, "pvcreate "+device)
	return nil
}

func (f *fakeVolumes) CreateVG(ctx context.Context, name, device string) error {
	f.calls = append(f.calls, fmt.Sprintf("vgcreate %s %s", name, device))
	return nil
}

func (f *fakeVolumes) CreateThinPool(ctx context.Context, vgName, poolName string, sizeBytes uint64) error {
	f.calls = append(f.calls, fmt.Sprintf("thinpool %s/%s", vgName, poolName))
	return nil
}

func (f *fakeVolumes) ListVGs(ctx context.Context) ([]lvm.VG, error) { return f.vgs, nil }
func (f *fakeVolumes) ListPVs(ctx context.Context) ([]lvm.PV, error) { return f.pvs, nil }

func (f *fakeVolumes) ListLVs(ctx context.Context, vgName string) ([]lvm.LV, error) {
	return f.lvs[vgName], nil
}

func (f *fakeVolumes) RemoveLV(ctx context.Context, vgName, lvName string) error {
	f.calls = append(f.calls, fmt.Sprintf("lvremove %s/%s", vgName, lvName))
	return nil
}

func (f *fakeVolumes) DeactivateVG(ctx context.Context, vgName string) error {
	f.calls = append(f.calls, "deactivate "+vgName)
	return nil
}

func (f *fakeVolumes) RemoveVG(ctx context.Context, vgName string) error {
	f.calls = append(f.calls, "vgremove "+vgName)
	return nil
}

func (f *fakeVolumes) RemovePV(ctx context.Context, device string) error {
	f.calls = append(f.calls, "pvremove "+device)
	return nil
}

func (f *fakeVolumes) ExtendLVFull(ctx context.Context, vgName, lvName string) error {
	f.calls = append(f.calls, fmt.Sprintf("lvextend %s/%s", vgName, lvName))
	return nil
}

func (f *fakeVolumes) GrowFS(ctx context.Context, device string) error {
	f.calls = append(f.calls, "resize2fs "+device)
	return nil
}

// fakePreparer records wipe calls.
type fakePreparer struct {
	calls  []string
	remain bool
}

func (f *fakePreparer) ProbeReadable(ctx context.Context, device string) error {
	f.calls = append(f.calls, "probe "+device)
	return nil
}

func (f *fakePreparer) WipeSignatures(ctx context.Context, device string) error {
	f.calls = append(f.calls, "wipefs "+device)
	return nil
}

func (f *fakePreparer) ZapPartitionTable(ctx context.Context, device string) error {
	f.calls = append(f.calls, "zap "+device)
	return nil
}

func (f *fakePreparer) CreateGPT(ctx context.Context, device, partName, typeCode string) error {
	f.calls = append(f.calls, fmt.Sprintf("gpt %s %s", device, partName))
	return nil
}

func (f *fakePreparer) RefreshPartitions(ctx context.Context, device string) error { return nil }
func (f *fakePreparer) Settle(ctx context.Context) error                           { return nil }

func (f *fakePreparer) PartitionsRemain(ctx context.Context, device string) (bool, error) {
	return f.remain, nil
}

// fakeMounter records mount and mount-table calls.
type fakeMounter struct {
	root    string
	uuid    string
	mounted map[string]bool
	entries map[string]mounts.Entry
	calls   []string
}

func (f *fakeMounter) Format(ctx context.Context, device, fsLabel string, fast bool) error {
	f.calls = append(f.calls, fmt.Sprintf("format %s %s", device, fsLabel))
	return nil
}

func (f *fakeMounter) UUIDOf(ctx context.Context, device string) (string, error) {
	f.calls = append(f.calls, "uuid "+device)
	if f.uuid == "" {
		return "3e1f8a0e-9b1f-4c7e-9a65-0e02b32fd9b1", nil
	}
	return f.uuid, nil
}

func (f *fakeMounter) EnsureEntry(spec, target, fstype, options string) error {
	f.calls = append(f.calls, fmt.Sprintf("entry %s %s", spec, target))
	if f.entries == nil {
		f.entries = map[string]mounts.Entry{}
	}
	f.entries[target] = mounts.Entry{Spec: spec, Target: target, FSType: fstype, Options: options}
	return nil
}

func (f *fakeMounter) LookupEntry(target string) (mounts.Entry, bool, error) {
	e, ok := f.entries[target]
	return e, ok, nil
}

func (f *fakeMounter) RemoveEntries(target string) error {
	f.calls = append(f.calls, "rmentry "+target)
	delete(f.entries, target)
	return nil
}

func (f *fakeMounter) EnsureMountpoint(target string) error {
	f.calls = append(f.calls, "mkdir "+target)
	return nil
}

func (f *fakeMounter) RemoveMountpoint(target string) error {
	f.calls = append(f.calls, "rmdir "+target)
	return nil
}

func (f *fakeMounter) Mount(ctx context.Context, target string) error {
	f.calls = append(f.calls, "mount "+target)
	if f.mounted == nil {
		f.mounted = map[string]bool{}
	}
	f.mounted[target] = true
	return nil
}

func (f *fakeMounter) Unmount(ctx context.Context, target string) error {
	f.calls = append(f.calls, "umount "+target)
	delete(f.mounted, target)
	return nil
}

func (f *fakeMounter) IsMounted(ctx context.Context, target string) (bool, error) {
	return f.mounted[target], nil
}

func (f *fakeMounter) MountRoot() string {
	if f.root == "" {
		return "/mnt/pve"
	}
	return f.root
}

// fakeDiskProv records provisioning requests.
type fakeDiskProv struct {
	calls []string
	fail  bool
}

func (f *fakeDiskProv) Provision(ctx context.Context, d inspect.Disk, lab label.Label) error {
	f.calls = append(f.calls, fmt.Sprintf("%s %s", d.Path, lab))
	if f.fail {
		return fmt.Errorf("provision failed")
	}
	return nil
}

// fakeNetProv records network provisioning requests.
type fakeNetProv struct {
	calls []string
}

func (f *fakeNetProv) Provision(ctx context.Context, lab label.Label) error {
	f.calls = append(f.calls, lab.String())
	return nil
}
