// Package engine holds the two orchestrators: reconciliation
// (provisioning) and teardown (deprovisioning). Both depend only on
// the capability interfaces below; the real adapters live in their own
// packages and the tests substitute fakes.
package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/robertsinfosec/proxstor/internal/blockdev"
	"github.com/robertsinfosec/proxstor/internal/config"
	"github.com/robertsinfosec/proxstor/internal/inspect"
	"github.com/robertsinfosec/proxstor/internal/label"
	"github.com/robertsinfosec/proxstor/internal/lvm"
	"github.com/robertsinfosec/proxstor/internal/mounts"
	"github.com/robertsinfosec/proxstor/internal/registry"
	"github.com/robertsinfosec/proxstor/internal/safety"
)

// Inspector is the disk-discovery slice the engines use.
type Inspector interface {
	AllDisks(ctx context.Context) ([]inspect.Disk, error)
	ListDisks(ctx context.Context) ([]inspect.Disk, error)
	ResolveSystemDisk(ctx context.Context) (inspect.Disk, error)
	Classify(ctx context.Context, d inspect.Disk) inspect.Class
}

// Registry is the storage-registry slice the engines use.
type Registry interface {
	Units() ([]registry.Unit, error)
	LocalUnits() ([]registry.Unit, error)
	Lookup(id string) (registry.Unit, bool, error)
	Remove(id string) error
	Rename(oldID, newID string) error
	UpdatePath(id, path string) error
	AddFilesystemUnit(id, mountPath string) error
	AddThickVolumeUnit(id, vgName string) error
	AddThinVolumeUnit(id, vgName, poolName string) error
	AddNetworkUnit(id, server, export, mountPath, options string) error
}

// DiskProvisioner provisions one disk under one label.
type DiskProvisioner interface {
	Provision(ctx context.Context, d inspect.Disk, lab label.Label) error
}

// NetProvisioner provisions a network export under one label.
type NetProvisioner interface {
	Provision(ctx context.Context, lab label.Label) error
}

// Deps collects everything both engines need.
type Deps struct {
	Config   *config.Run
	Gate     *safety.Gate
	Inspect  Inspector
	Registry Registry
	Volumes  lvm.Manager
	Prepare  blockdev.Preparer
	Mounts   mounts.Mounter
	Backends map[config.StorageType]DiskProvisioner
	Network  NetProvisioner
	Log      *zap.Logger
}

// Engine runs reconciliation and teardown over one host.
type Engine struct {
	cfg      *config.Run
	gate     *safety.Gate
	ins      Inspector
	reg      Registry
	vol      lvm.Manager
	prep     blockdev.Preparer
	mnt      mounts.Mounter
	backends map[config.StorageType]DiskProvisioner
	net      NetProvisioner
	log      *zap.Logger
}

// New builds an Engine from its dependencies.
func New(d Deps) *Engine {
	return &Engine{
		cfg:      d.Config,
		gate:     d.Gate,
		ins:      d.Inspect,
		reg:      d.Registry,
		vol:      d.Volumes,
		prep:     d.Prepare,
		mnt:      d.Mounts,
		backends: d.Backends,
		net:      d.Network,
		log:      d.Log,
	}
}

// unitByID indexes registry units.
func unitByID(units []registry.Unit) map[string]registry.Unit {
	m := make(map[string]registry.Unit, len(units))
	for _, u := range units {
		m[u.ID] = u
	}
	return m
}

// parentDiskOf maps a physical-volume device (a partition) back to the
// whole disk it sits on. Returns "" when no known disk matches.
func parentDiskOf(pvPath string, disks []inspect.Disk) string {
	for _, d := range disks {
		if pvPath == d.Path {
			return d.Path
		}
		rest, ok := strings.CutPrefix(pvPath, d.Path)
		if !ok || rest == "" {
			continue
		}
		// Accept only a partition suffix ("1" or "p1"), so /dev/sda
		// never claims /dev/sdab1.
		rest = strings.TrimPrefix(rest, "p")
		if strings.TrimLeft(rest, "0123456789") == "" {
			return d.Path
		}
	}
	return ""
}

// runErrors folds per-target failures into one summary error, nil when
// everything succeeded.
func runErrors(failed, total int, what string) error {
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d %s failed; re-run after fixing the reported steps", failed, total, what)
}
