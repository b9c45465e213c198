package backend

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/robertsinfosec/proxstor/internal/cmdexec"
	"github.com/robertsinfosec/proxstor/internal/lvm"
	"github.com/robertsinfosec/proxstor/internal/mounts"
)

// mockPreparer records partitioning calls and can fail any step.
type mockPreparer struct {
	calls    []string
	failStep string
}

func (m *mockPreparer) step(name string, err error) error {
	m.calls = append(m.calls, name)
	if m.failStep == name {
		if err != nil {
			return err
		}
		return fmt.Errorf("%s failed", name)
	}
	return nil
}

func (m *mockPreparer) ProbeReadable(ctx context.Context, device string) error {
	return m.step("probe "+device, nil)
}

func (m *mockPreparer) WipeSignatures(ctx context.Context, device string) error {
	return m.step("wipe "+device, nil)
}

func (m *mockPreparer) ZapPartitionTable(ctx context.Context, device string) error {
	return m.step("zap "+device, nil)
}

func (m *mockPreparer) CreateGPT(ctx context.Context, device, partName, typeCode string) error {
	return m.step(fmt.Sprintf("gpt %s %s %s", device, partName, typeCode), nil)
}

func (m *mockPreparer) RefreshPartitions(ctx context.Context, device string) error {
	m.calls = append(m.calls, "refresh "+device)
	return nil
}

func (m *mockPreparer) Settle(ctx context.Context) error {
	m.calls = append(m.calls, "settle")
	return nil
}

func (m *mockPreparer) PartitionsRemain(ctx context.Context, device string) (bool, error) {
	return false, nil
}

// mockMounter records filesystem and mount-table calls.
type mockMounter struct {
	root     string
	uuid     string
	calls    []string
	failCall string
}

func (m *mockMounter) record(call string) error {
	m.calls = append(m.calls, call)
	if m.failCall == call {
		return fmt.Errorf("%s failed", call)
	}
	return nil
}

func (m *mockMounter) Format(ctx context.Context, device, fsLabel string, fast bool) error {
	return m.record(fmt.Sprintf("format %s %s fast=%v", device, fsLabel, fast))
}

func (m *mockMounter) UUIDOf(ctx context.Context, device string) (string, error) {
	if err := m.record("uuid " + device); err != nil {
		return "", err
	}
	return m.uuid, nil
}

func (m *mockMounter) EnsureEntry(spec, target, fstype, options string) error {
	return m.record(fmt.Sprintf("entry %s %s %s %s", spec, target, fstype, options))
}

func (m *mockMounter) LookupEntry(target string) (mounts.Entry, bool, error) {
	return mounts.Entry{}, false, nil
}

func (m *mockMounter) RemoveEntries(target string) error {
	return m.record("rmentry " + target)
}

func (m *mockMounter) EnsureMountpoint(target string) error {
	return m.record("mkdir " + target)
}

func (m *mockMounter) RemoveMountpoint(target string) error {
	return m.record("rmdir " + target)
}

func (m *mockMounter) Mount(ctx context.Context, target string) error {
	return m.record("mount " + target)
}

func (m *mockMounter) Unmount(ctx context.Context, target string) error {
	return m.record("umount " + target)
}

func (m *mockMounter) IsMounted(ctx context.Context, target string) (bool, error) {
	return false, nil
}

func (m *mockMounter) MountRoot() string {
	if m.root == "" {
		return "/mnt/pve"
	}
	return m.root
}

func (m *mockMounter) target(id string) string {
	return filepath.Join(m.MountRoot(), id)
}

// mockVolumes records lvm calls and serves a canned VG listing.
type mockVolumes struct {
	vgs   []lvm.VG
	calls []string
}

func (m *mockVolumes) CreatePV(ctx context.Context, device string) error {
	m.calls = append(m.calls, "pvcreate "+device)
	return nil
}

func (m *mockVolumes) CreateVG(ctx context.Context, name, device string) error {
	m.calls = append(m.calls, fmt.Sprintf("vgcreate %s %s", name, device))
	return nil
}

func (m *mockVolumes) CreateThinPool(ctx context.Context, vgName, poolName string, sizeBytes uint64) error {
	m.calls = append(m.calls, fmt.Sprintf("thinpool %s/%s %d", vgName, poolName, sizeBytes))
	return nil
}

func (m *mockVolumes) ListVGs(ctx context.Context) ([]lvm.VG, error)               { return m.vgs, nil }
func (m *mockVolumes) ListPVs(ctx context.Context) ([]lvm.PV, error)               { return nil, nil }
func (m *mockVolumes) ListLVs(ctx context.Context, vgName string) ([]lvm.LV, error) { return nil, nil }

func (m *mockVolumes) RemoveLV(ctx context.Context, vgName, lvName string) error {
	m.calls = append(m.calls, fmt.Sprintf("lvremove %s/%s", vgName, lvName))
	return nil
}

func (m *mockVolumes) DeactivateVG(ctx context.Context, vgName string) error {
	m.calls = append(m.calls, "vgchange -an "+vgName)
	return nil
}

func (m *mockVolumes) RemoveVG(ctx context.Context, vgName string) error {
	m.calls = append(m.calls, "vgremove "+vgName)
	return nil
}

func (m *mockVolumes) RemovePV(ctx context.Context, device string) error {
	m.calls = append(m.calls, "pvremove "+device)
	return nil
}

func (m *mockVolumes) ExtendLVFull(ctx context.Context, vgName, lvName string) error {
	m.calls = append(m.calls, fmt.Sprintf("lvextend %s/%s", vgName, lvName))
	return nil
}

func (m *mockVolumes) GrowFS(ctx context.Context, device string) error {
	m.calls = append(m.calls, "resize2fs "+device)
	return nil
}

// mockRegistry records registrations.
type mockRegistry struct {
	calls []string
}

func (m *mockRegistry) AddFilesystemUnit(id, mountPath string) error {
	m.calls = append(m.calls, fmt.Sprintf("dir %s %s", id, mountPath))
	return nil
}

func (m *mockRegistry) AddThickVolumeUnit(id, vgName string) error {
	m.calls = append(m.calls, fmt.Sprintf("lvm %s %s", id, vgName))
	return nil
}

func (m *mockRegistry) AddThinVolumeUnit(id, vgName, poolName string) error {
	m.calls = append(m.calls, fmt.Sprintf("lvmthin %s %s %s", id, vgName, poolName))
	return nil
}

func (m *mockRegistry) AddNetworkUnit(id, server, export, mountPath, options string) error {
	m.calls = append(m.calls, fmt.Sprintf("nfs %s %s:%s %s %s", id, server, export, mountPath, options))
	return nil
}

// mockRunner serves canned command output for the nfs export probe.
type mockRunner struct {
	responses map[string]string
	missing   map[string]bool
	calls     []string
}

func (m *mockRunner) Run(ctx context.Context, step cmdexec.Step) (string, error) {
	cmd := step.Command()
	m.calls = append(m.calls, cmd)
	return m.responses[cmd], nil
}

func (m *mockRunner) LookPath(name string) (string, error) {
	if m.missing[name] {
		return "", fmt.Errorf("%s not found in PATH", name)
	}
	return "/usr/sbin/" + name, nil
}
