// Package blockdev performs raw partition-table operations on whole
// disks. All destructive entry points assume the caller has already
// cleared them through the safety gate and system-disk checks.
package blockdev

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/robertsinfosec/proxstor/internal/cmdexec"
)

// GPT partition type codes for the single managed partition.
const (
	TypeLinuxFS = "8300"
	TypeLVM     = "8E00"
)

// Preparer is the partitioning capability the backends and the
// teardown engine use.
type Preparer interface {
	ProbeReadable(ctx context.Context, device string) error
	WipeSignatures(ctx context.Context, device string) error
	ZapPartitionTable(ctx context.Context, device string) error
	CreateGPT(ctx context.Context, device, partName, typeCode string) error
	RefreshPartitions(ctx context.Context, device string) error
	Settle(ctx context.Context) error
	PartitionsRemain(ctx context.Context, device string) (bool, error)
}

// CLI implements Preparer with sgdisk, wipefs, partprobe and udevadm.
type CLI struct {
	run cmdexec.Runner
	log *zap.Logger
}

// New returns a Preparer backed by the partitioning tools.
func New(run cmdexec.Runner, log *zap.Logger) *CLI {
	return &CLI{run: run, log: log}
}

// ProbeReadable verifies the device can actually be read before
// anything destructive happens. A dying disk fails here, not halfway
// through a wipe.
func (c *CLI) ProbeReadable(ctx context.Context, device string) error {
	_, err := c.run.Run(ctx, cmdexec.Step{
		Desc: "verify " + device + " is readable",
		Name: "dd",
		Args: []string{"if=" + device, "of=/dev/null", "bs=1M", "count=4", "iflag=direct"},
	})
	if err != nil {
		return fmt.Errorf("device %s failed the pre-destruction read probe: %w", device, err)
	}
	return nil
}

// WipeSignatures erases filesystem and volume-management signatures.
func (c *CLI) WipeSignatures(ctx context.Context, device string) error {
	_, err := c.run.Run(ctx, cmdexec.Step{
		Desc:   "wipe filesystem and volume signatures on " + device,
		Name:   "wipefs",
		Args:   []string{"--all", "--force", device},
		Remedy: "wipefs --all --force " + device,
	})
	return err
}

// ZapPartitionTable zeroes the GPT and MBR structures.
func (c *CLI) ZapPartitionTable(ctx context.Context, device string) error {
	_, err := c.run.Run(ctx, cmdexec.Step{
		Desc:   "zero the partition table on " + device,
		Name:   "sgdisk",
		Args:   []string{"--zap-all", device},
		Remedy: "sgdisk --zap-all " + device,
	})
	return err
}

// CreateGPT creates a single partition spanning the disk, typed for
// the backend and carrying the storage label as its partition name.
func (c *CLI) CreateGPT(ctx context.Context, device, partName, typeCode string) error {
	_, err := c.run.Run(ctx, cmdexec.Step{
		Desc: fmt.Sprintf("create partition %s on %s", partName, device),
		Name: "sgdisk",
		Args: []string{
			"--new", "1:0:0",
			"--typecode", "1:" + typeCode,
			"--change-name", "1:" + partName,
			device,
		},
	})
	return err
}

// RefreshPartitions asks the kernel to re-read the partition table.
// Advisory: the kernel converges on its own.
func (c *CLI) RefreshPartitions(ctx context.Context, device string) error {
	_, err := c.run.Run(ctx, cmdexec.Step{
		Desc: "refresh kernel partition table for " + device,
		Kind: cmdexec.Advisory,
		Name: "partprobe",
		Args: []string{device},
	})
	return err
}

// Settle waits for device nodes to appear. Advisory.
func (c *CLI) Settle(ctx context.Context) error {
	_, err := c.run.Run(ctx, cmdexec.Step{
		Desc: "wait for device nodes to settle",
		Kind: cmdexec.Advisory,
		Name: "udevadm",
		Args: []string{"settle"},
	})
	return err
}

// PartitionsRemain reports whether the kernel still sees partitions on
// the device, for the post-wipe residue check.
func (c *CLI) PartitionsRemain(ctx context.Context, device string) (bool, error) {
	out, err := c.run.Run(ctx, cmdexec.Step{
		Desc:  "check for remaining partitions on " + device,
		Query: true,
		Name:  "lsblk",
		Args:  []string{"-no", "TYPE", device},
	})
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "part" {
			return true, nil
		}
	}
	return false, nil
}
