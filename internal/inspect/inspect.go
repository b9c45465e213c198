// Package inspect enumerates and classifies the host's physical block
// devices. It is strictly read-only: everything here is a query over
// lsblk, smartctl, findmnt and sysfs, parsed into typed results.
package inspect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/robertsinfosec/proxstor/internal/cmdexec"
	"github.com/robertsinfosec/proxstor/internal/label"
)

// Class is the media classification of a disk. It is never guessed:
// if neither smartctl nor the kernel can tell, it stays unknown.
type Class string

const (
	ClassHDD     Class = "HDD"
	ClassSSD     Class = "SSD"
	ClassUnknown Class = "unknown"
)

// LabelKind maps a classification onto the storage label namespace.
func (c Class) LabelKind() (label.Kind, bool) {
	switch c {
	case ClassHDD:
		return label.KindHDD, true
	case ClassSSD:
		return label.KindSSD, true
	default:
		return "", false
	}
}

// Partition is one partition on a disk as the kernel sees it.
type Partition struct {
	Path       string
	Name       string
	PartLabel  string
	FSType     string
	SizeBytes  uint64
	Mountpoint string
}

// Disk is one physical block device. Identity is the device path.
type Disk struct {
	Path       string
	Name       string
	Model      string
	Serial     string
	SizeBytes  uint64
	ReadOnly   bool
	Rotational *bool // kernel rotational flag; nil when lsblk omits it
	Class      Class
	Partitions []Partition
}

// StorageLabel returns the first partition name on the disk that has
// the shape of a storage label, or "".
func (d Disk) StorageLabel() string {
	for _, p := range d.Partitions {
		if label.IsLabel(p.PartLabel) {
			return p.PartLabel
		}
	}
	return ""
}

// PartitionByLabel returns the partition carrying the given name.
func (d Disk) PartitionByLabel(name string) (Partition, bool) {
	for _, p := range d.Partitions {
		if p.PartLabel == name {
			return p, true
		}
	}
	return Partition{}, false
}

// FirstPartitionPath returns the device path the single managed
// partition gets after partitioning (e.g. /dev/sdb1, /dev/nvme0n1p1).
func (d Disk) FirstPartitionPath() string {
	last := d.Path[len(d.Path)-1]
	if last >= '0' && last <= '9' {
		return d.Path + "p1"
	}
	return d.Path + "1"
}

// Health is best-effort SMART state for a disk.
type Health struct {
	Available   bool
	Passed      bool
	TempC       int
	LifeLeftPct int // -1 when the drive does not report wear
}

// Inspector answers disk queries for the engines.
type Inspector struct {
	run cmdexec.Runner
	log *zap.Logger

	// sysBlockPath is the sysfs root, overridable in tests.
	sysBlockPath string
}

// New returns an Inspector backed by the given runner.
func New(run cmdexec.Runner, log *zap.Logger) *Inspector {
	return &Inspector{run: run, log: log, sysBlockPath: "/sys/block"}
}

// AllDisks lists every physical disk, including the system disk.
func (i *Inspector) AllDisks(ctx context.Context) ([]Disk, error) {
	out, err := i.run.Run(ctx, cmdexec.Step{
		Desc: "enumerate block devices",
		Name: "lsblk",
		Args: []string{"--json", "--bytes", "--paths",
			"-o", "NAME,PATH,TYPE,SIZE,MODEL,SERIAL,ROTA,RO,PARTLABEL,FSTYPE,MOUNTPOINT"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list block devices: %w", err)
	}
	disks, err := parseLsblk([]byte(out))
	if err != nil {
		return nil, fmt.Errorf("failed to parse lsblk output: %w", err)
	}
	return disks, nil
}

// ListDisks lists physical disks with the system disk excluded. This
// is the default target set for provisioning and teardown.
func (i *Inspector) ListDisks(ctx context.Context) ([]Disk, error) {
	all, err := i.AllDisks(ctx)
	if err != nil {
		return nil, err
	}
	sys, err := i.ResolveSystemDisk(ctx)
	if err != nil {
		return nil, err
	}
	var disks []Disk
	for _, d := range all {
		if d.Path != sys.Path {
			disks = append(disks, d)
		}
	}
	return disks, nil
}

// Classify determines a disk's media class. smartctl's reported
// rotation rate wins; the kernel's rotational flag is the fallback.
func (i *Inspector) Classify(ctx context.Context, d Disk) Class {
	if data, err := i.querySMART(ctx, d.Path); err == nil && data.RotationRate != nil {
		if *data.RotationRate > 0 {
			return ClassHDD
		}
		return ClassSSD
	}

	// Kernel flag, from lsblk if present, sysfs otherwise.
	rot := d.Rotational
	if rot == nil {
		raw, err := os.ReadFile(filepath.Join(i.sysBlockPath, d.Name, "queue", "rotational"))
		if err == nil {
			v := strings.TrimSpace(string(raw)) == "1"
			rot = &v
		}
	}
	if rot == nil {
		return ClassUnknown
	}
	if *rot {
		return ClassHDD
	}
	return ClassSSD
}

// Health reads best-effort SMART health for a disk.
func (i *Inspector) Health(ctx context.Context, d Disk) Health {
	data, err := i.querySMART(ctx, d.Path)
	if err != nil {
		return Health{LifeLeftPct: -1}
	}
	return data.health()
}

// ResolveSystemDisk traces the root filesystem's mount source down to
// the physical disk backing it. Any failure here is fatal to the
// caller: without a known system disk no destructive work is safe.
func (i *Inspector) ResolveSystemDisk(ctx context.Context) (Disk, error) {
	out, err := i.run.Run(ctx, cmdexec.Step{
		Desc: "resolve root mount source",
		Name: "findmnt",
		Args: []string{"-n", "-o", "SOURCE", "/"},
	})
	if err != nil {
		return Disk{}, fmt.Errorf("failed to resolve the root mount source: %w", err)
	}
	source := strings.TrimSpace(out)
	if source == "" {
		return Disk{}, fmt.Errorf("root mount has no source device")
	}

	device := source
	if strings.HasPrefix(source, "/dev/mapper/") || strings.HasPrefix(source, "/dev/dm-") {
		device, err = i.resolveMappedDevice(ctx, source)
		if err != nil {
			return Disk{}, err
		}
	}

	parent, err := i.parentDisk(ctx, device)
	if err != nil {
		return Disk{}, err
	}

	all, err := i.AllDisks(ctx)
	if err != nil {
		return Disk{}, err
	}
	for _, d := range all {
		if d.Path == parent {
			return d, nil
		}
	}
	return Disk{}, fmt.Errorf("system disk %s not present in block device listing", parent)
}

// resolveMappedDevice follows a device-mapper root volume through its
// volume group to the physical volume backing it.
func (i *Inspector) resolveMappedDevice(ctx context.Context, source string) (string, error) {
	out, err := i.run.Run(ctx, cmdexec.Step{
		Desc: "resolve root volume group",
		Name: "lvs",
		Args: []string{"--noheadings", "-o", "vg_name", source},
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve the volume group of %s: %w", source, err)
	}
	vg := strings.TrimSpace(out)
	if vg == "" {
		return "", fmt.Errorf("no volume group found for root volume %s", source)
	}

	out, err = i.run.Run(ctx, cmdexec.Step{
		Desc: "resolve physical volume backing root volume group",
		Name: "pvs",
		Args: []string{"--noheadings", "-o", "pv_name", "--select", "vg_name=" + vg},
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve the physical volumes of %s: %w", vg, err)
	}
	pv := ""
	for _, line := range strings.Split(out, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			pv = s
			break
		}
	}
	if pv == "" {
		return "", fmt.Errorf("volume group %s has no physical volumes", vg)
	}
	return pv, nil
}

// parentDisk returns the whole-disk device path for a partition, or
// the device itself when it has no parent.
func (i *Inspector) parentDisk(ctx context.Context, device string) (string, error) {
	out, err := i.run.Run(ctx, cmdexec.Step{
		Desc: "resolve parent disk",
		Name: "lsblk",
		Args: []string{"-no", "PKNAME", device},
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve the parent disk of %s: %w", device, err)
	}
	parent := strings.TrimSpace(out)
	if parent == "" {
		return device, nil
	}
	if i := strings.IndexByte(parent, '\n'); i >= 0 {
		parent = strings.TrimSpace(parent[:i])
	}
	return "/dev/" + parent, nil
}
