// Package lvm wraps the lvm2 command set behind a capability
// interface. The engines depend on the interface; the CLI
// implementation shells out and parses lvm's JSON reports.
package lvm

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/robertsinfosec/proxstor/internal/cmdexec"
)

// Thin-pool sizing policy. Fixed defaults; callers that need a
// different ratio size the pool themselves and pass the byte count to
// CreateThinPool.
const (
	// ThinPoolPercent of the volume group's capacity goes to the pool.
	ThinPoolPercent = 95
	// MinThinVGBytes is the volume group size floor below which thin
	// provisioning is refused.
	MinThinVGBytes = 1 << 30 // 1 GiB
)

// ThinPoolSize computes the pool size for a volume group, refusing
// groups below the floor.
func ThinPoolSize(vgBytes uint64) (uint64, error) {
	if vgBytes < MinThinVGBytes {
		return 0, fmt.Errorf("volume group of %s is below the %s minimum for thin provisioning",
			humanize.IBytes(vgBytes), humanize.IBytes(MinThinVGBytes))
	}
	return vgBytes * ThinPoolPercent / 100, nil
}

// VG is one volume group.
type VG struct {
	Name      string
	SizeBytes uint64
	FreeBytes uint64
}

// PV is one physical volume and its group membership.
type PV struct {
	Name      string // device path
	VGName    string // "" when unassigned
	SizeBytes uint64
}

// LV is one logical volume.
type LV struct {
	Name      string
	VGName    string
	SizeBytes uint64
	Attr      string
}

// IsThinPool reports whether the volume is a thin pool.
func (l LV) IsThinPool() bool {
	return strings.HasPrefix(l.Attr, "t")
}

// Manager is the volume-management capability the engines use.
type Manager interface {
	CreatePV(ctx context.Context, device string) error
	CreateVG(ctx context.Context, name, device string) error
	CreateThinPool(ctx context.Context, vgName, poolName string, sizeBytes uint64) error
	ListVGs(ctx context.Context) ([]VG, error)
	ListPVs(ctx context.Context) ([]PV, error)
	ListLVs(ctx context.Context, vgName string) ([]LV, error)
	RemoveLV(ctx context.Context, vgName, lvName string) error
	DeactivateVG(ctx context.Context, vgName string) error
	RemoveVG(ctx context.Context, vgName string) error
	RemovePV(ctx context.Context, device string) error
	ExtendLVFull(ctx context.Context, vgName, lvName string) error
	GrowFS(ctx context.Context, device string) error
}

// CLI implements Manager with the lvm2 tools.
type CLI struct {
	run cmdexec.Runner
	log *zap.Logger
}

// NewCLI returns a Manager backed by the lvm2 command set.
func NewCLI(run cmdexec.Runner, log *zap.Logger) *CLI {
	return &CLI{run: run, log: log}
}

func (c *CLI) CreatePV(ctx context.Context, device string) error {
	_, err := c.run.Run(ctx, cmdexec.Step{
		Desc:   "mark " + device + " as a physical volume",
		Name:   "pvcreate",
		Args:   []string{"-ff", "--yes", device},
		Remedy: "pvcreate -ff --yes " + device,
	})
	return err
}

func (c *CLI) CreateVG(ctx context.Context, name, device string) error {
	_, err := c.run.Run(ctx, cmdexec.Step{
		Desc:   fmt.Sprintf("create volume group %s on %s", name, device),
		Name:   "vgcreate",
		Args:   []string{name, device},
		Remedy: fmt.Sprintf("vgcreate %s %s", name, device),
	})
	return err
}

func (c *CLI) CreateThinPool(ctx context.Context, vgName, poolName string, sizeBytes uint64) error {
	_, err := c.run.Run(ctx, cmdexec.Step{
		Desc: fmt.Sprintf("create thin pool %s/%s", vgName, poolName),
		Name: "lvcreate",
		Args: []string{"--yes", "--type", "thin-pool",
			"-L", fmt.Sprintf("%db", sizeBytes), "-n", poolName, vgName},
	})
	return err
}

func (c *CLI) ListVGs(ctx context.Context) ([]VG, error) {
	out, err := c.run.Run(ctx, cmdexec.Step{
		Desc:  "list volume groups",
		Query: true,
		Name:  "vgs",
		Args: []string{
			"--reportformat", "json", "--units", "b", "--nosuffix",
			"-o", "vg_name,vg_size,vg_free",
		},
	})
	if err != nil {
		return nil, err
	}
	return parseVGReport([]byte(out))
}

func (c *CLI) ListPVs(ctx context.Context) ([]PV, error) {
	out, err := c.run.Run(ctx, cmdexec.Step{
		Desc:  "list physical volumes",
		Query: true,
		Name:  "pvs",
		Args: []string{"--reportformat", "json", "--units", "b", "--nosuffix",
			"-o", "pv_name,vg_name,pv_size"},
	})
	if err != nil {
		return nil, err
	}
	return parsePVReport([]byte(out))
}

func (c *CLI) ListLVs(ctx context.Context, vgName string) ([]LV, error) {
	args := []string{"--reportformat", "json", "--units", "b", "--nosuffix",
		"-o", "lv_name,vg_name,lv_size,lv_attr"}
	if vgName != "" {
		args = append(args, vgName)
	}
	out, err := c.run.Run(ctx, cmdexec.Step{
		Desc:  "list logical volumes",
		Query: true,
		Name:  "lvs",
		Args:  args,
	})
	if err != nil {
		return nil, err
	}
	return parseLVReport([]byte(out))
}

func (c *CLI) RemoveLV(ctx context.Context, vgName, lvName string) error {
	_, err := c.run.Run(ctx, cmdexec.Step{
		Desc:   fmt.Sprintf("remove logical volume %s/%s", vgName, lvName),
		Name:   "lvremove",
		Args:   []string{"--yes", "-f", vgName + "/" + lvName},
		Remedy: fmt.Sprintf("lvremove -f %s/%s", vgName, lvName),
	})
	return err
}

func (c *CLI) DeactivateVG(ctx context.Context, vgName string) error {
	_, err := c.run.Run(ctx, cmdexec.Step{
		Desc: "deactivate volume group " + vgName,
		Name: "vgchange",
		Args: []string{"-an", vgName},
	})
	return err
}

func (c *CLI) RemoveVG(ctx context.Context, vgName string) error {
	_, err := c.run.Run(ctx, cmdexec.Step{
		Desc:   "remove volume group " + vgName,
		Name:   "vgremove",
		Args:   []string{"-f", vgName},
		Remedy: "vgremove -f " + vgName,
	})
	return err
}

func (c *CLI) RemovePV(ctx context.Context, device string) error {
	_, err := c.run.Run(ctx, cmdexec.Step{
		Desc:   "remove physical volume label from " + device,
		Name:   "pvremove",
		Args:   []string{"-ff", "--yes", device},
		Remedy: "pvremove -ff --yes " + device,
	})
	return err
}

// ExtendLVFull grows a logical volume to consume all free space in
// its group. An already-full volume is success, not failure, so a
// re-run of system-disk reclaim stays idempotent.
func (c *CLI) ExtendLVFull(ctx context.Context, vgName, lvName string) error {
	out, err := c.run.Run(ctx, cmdexec.Step{
		Desc: fmt.Sprintf("extend %s/%s over all free space", vgName, lvName),
		Name: "lvextend",
		Args: []string{"-l", "+100%FREE", fmt.Sprintf("/dev/%s/%s", vgName, lvName)},
	})
	if err != nil && strings.Contains(out, "matches existing size") {
		c.log.Info("logical volume already at full size",
			zap.String("lv", vgName+"/"+lvName))
		return nil
	}
	return err
}

// GrowFS grows the filesystem on a device to the device's size.
// resize2fs is a no-op when nothing needs doing.
func (c *CLI) GrowFS(ctx context.Context, device string) error {
	_, err := c.run.Run(ctx, cmdexec.Step{
		Desc:   "grow filesystem on " + device,
		Name:   "resize2fs",
		Args:   []string{device},
		Remedy: "resize2fs " + device,
	})
	return err
}
