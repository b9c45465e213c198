package backend

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/robertsinfosec/proxstor/internal/cmdexec"
	"github.com/robertsinfosec/proxstor/internal/label"
	"github.com/robertsinfosec/proxstor/internal/mounts"
)

// NFS provisions a network-filesystem unit. It touches no disks:
// mountpoint, mount-table entry keyed server:export, and a registry
// entry.
type NFS struct {
	run     cmdexec.Runner
	mnt     mounts.Mounter
	reg     Registry
	server  string
	export  string
	options string
	log     *zap.Logger
}

// NewNFS returns the network backend for one server and export.
func NewNFS(run cmdexec.Runner, mnt mounts.Mounter, reg Registry, server, export, options string, log *zap.Logger) *NFS {
	return &NFS{run: run, mnt: mnt, reg: reg, server: server, export: export, options: options, log: log}
}

// Provision mounts and registers the export under the given label.
func (b *NFS) Provision(ctx context.Context, lab label.Label) error {
	b.probeExport(ctx)

	spec := b.server + ":" + b.export
	target := filepath.Join(b.mnt.MountRoot(), lab.String())
	if err := b.mnt.EnsureMountpoint(target); err != nil {
		return err
	}
	if err := b.mnt.EnsureEntry(spec, target, "nfs", b.options); err != nil {
		return err
	}
	if err := b.mnt.Mount(ctx, target); err != nil {
		return fmt.Errorf("failed to mount %s at %s: %w", spec, target, err)
	}
	return b.reg.AddNetworkUnit(lab.String(), b.server, b.export, target, b.options)
}

// probeExport checks that the server advertises the export. Warn-only:
// servers commonly firewall the mount protocol while serving NFS fine,
// and showmount may not be installed at all.
func (b *NFS) probeExport(ctx context.Context) {
	if _, err := b.run.LookPath("showmount"); err != nil {
		return
	}
	out, err := b.run.Run(ctx, cmdexec.Step{
		Desc:  "list exports on " + b.server,
		Kind:  cmdexec.Advisory,
		Query: true,
		Name:  "showmount",
		Args:  []string{"-e", "--no-headers", b.server},
	})
	if err != nil {
		return
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == b.export {
			return
		}
	}
	b.log.Warn("export not advertised by server; mounting anyway",
		zap.String("server", b.server),
		zap.String("export", b.export))
}
