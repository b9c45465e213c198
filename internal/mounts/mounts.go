// Package mounts manages the host's mount-table file and the
// filesystem operations around it. Managed entries are keyed by
// filesystem UUID (disk-backed) or server:export (network), always
// point under the managed mount root, and tolerate a missing device at
// boot.
package mounts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/robertsinfosec/proxstor/internal/cmdexec"
)

// Mounter is the mount capability the backends and engines use.
type Mounter interface {
	Format(ctx context.Context, device, fsLabel string, fast bool) error
	UUIDOf(ctx context.Context, device string) (string, error)
	EnsureEntry(spec, target, fstype, options string) error
	LookupEntry(target string) (Entry, bool, error)
	RemoveEntries(target string) error
	EnsureMountpoint(target string) error
	RemoveMountpoint(target string) error
	Mount(ctx context.Context, target string) error
	Unmount(ctx context.Context, target string) error
	IsMounted(ctx context.Context, target string) (bool, error)
	MountRoot() string
}

// Entry is one mount-table line.
type Entry struct {
	Spec    string
	Target  string
	FSType  string
	Options string
}

// Table implements Mounter against a mount-table file and the mount
// tools.
type Table struct {
	path      string
	mountRoot string
	run       cmdexec.Runner
	log       *zap.Logger

	// DryRun suppresses file and directory mutations; shelled commands
	// are already covered by the what-if runner.
	DryRun bool
}

// NewTable returns a Mounter for the given mount-table file and
// managed mount root.
func NewTable(path, mountRoot string, run cmdexec.Runner, log *zap.Logger) *Table {
	return &Table{path: path, mountRoot: mountRoot, run: run, log: log}
}

// MountRoot returns the managed mount root.
func (t *Table) MountRoot() string { return t.mountRoot }

// Format creates an ext4 filesystem on the device. Fast mode reserves
// no blocks and uses a large-file inode density, which is what VM
// image storage wants; full mode takes the filesystem defaults.
func (t *Table) Format(ctx context.Context, device, fsLabel string, fast bool) error {
	args := []string{"-F", "-L", fsLabel}
	if fast {
		args = append(args, "-m", "0", "-T", "largefile4")
	}
	args = append(args, device)
	_, err := t.run.Run(ctx, cmdexec.Step{
		Desc:   fmt.Sprintf("format %s as ext4 (%s)", device, fsLabel),
		Name:   "mkfs.ext4",
		Args:   args,
		Remedy: "mkfs.ext4 " + strings.Join(args, " "),
	})
	return err
}

// UUIDOf reads and validates the filesystem UUID of a device. In a
// dry run the filesystem may not exist yet, so a placeholder stands in.
func (t *Table) UUIDOf(ctx context.Context, device string) (string, error) {
	if t.DryRun {
		return "00000000-0000-0000-0000-000000000000", nil
	}
	out, err := t.run.Run(ctx, cmdexec.Step{
		Desc: "read filesystem UUID of " + device,
		Name: "blkid",
		Args: []string{"-s", "UUID", "-o", "value", device},
	})
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(out)
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("device %s reported malformed filesystem UUID %q: %w", device, id, err)
	}
	return id, nil
}

// EnsureEntry adds a managed mount-table line unless an entry for the
// same source or target already exists. Idempotent.
func (t *Table) EnsureEntry(spec, target, fstype, options string) error {
	lines, err := t.readLines()
	if err != nil {
		return err
	}
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if fields[0] == spec || fields[1] == target {
			t.log.Info("mount-table entry already present", zap.String("target", target))
			return nil
		}
	}

	if !strings.Contains(options, "nofail") {
		options += ",nofail"
	}
	pass := "2"
	if fstype == "nfs" {
		pass = "0"
	}
	lines = append(lines, fmt.Sprintf("%s %s %s %s 0 %s", spec, target, fstype, options, pass))
	return t.writeLines(lines)
}

// LookupEntry returns the mount-table entry for a target, if present.
func (t *Table) LookupEntry(target string) (Entry, bool, error) {
	lines, err := t.readLines()
	if err != nil {
		return Entry{}, false, err
	}
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 4 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if fields[1] == target {
			return Entry{Spec: fields[0], Target: fields[1], FSType: fields[2], Options: fields[3]}, true, nil
		}
	}
	return Entry{}, false, nil
}

// RemoveEntries strips every line whose mount target matches.
func (t *Table) RemoveEntries(target string) error {
	lines, err := t.readLines()
	if err != nil {
		return err
	}
	kept := lines[:0]
	removed := 0
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) >= 2 && !strings.HasPrefix(fields[0], "#") && fields[1] == target {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	if removed == 0 {
		return nil
	}
	t.log.Info("removed mount-table entries", zap.String("target", target), zap.Int("count", removed))
	return t.writeLines(kept)
}

// EnsureMountpoint creates the mount directory.
func (t *Table) EnsureMountpoint(target string) error {
	if t.DryRun {
		t.log.Info("WHATIF: would create mount point", zap.String("target", target))
		return nil
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("failed to create mount point %s: %w", target, err)
	}
	return nil
}

// RemoveMountpoint removes an empty mount directory, but only under
// the managed mount root.
func (t *Table) RemoveMountpoint(target string) error {
	clean := filepath.Clean(target)
	if !strings.HasPrefix(clean, filepath.Clean(t.mountRoot)+string(filepath.Separator)) {
		return fmt.Errorf("refusing to remove %s: outside the managed mount root %s", target, t.mountRoot)
	}
	if t.DryRun {
		t.log.Info("WHATIF: would remove mount point", zap.String("target", clean))
		return nil
	}
	if err := os.Remove(clean); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove mount point %s: %w", target, err)
	}
	return nil
}

// Mount mounts a target using its mount-table entry.
func (t *Table) Mount(ctx context.Context, target string) error {
	_, err := t.run.Run(ctx, cmdexec.Step{
		Desc:   "mount " + target,
		Name:   "mount",
		Args:   []string{target},
		Remedy: "mount " + target,
	})
	return err
}

// Unmount unmounts a target.
func (t *Table) Unmount(ctx context.Context, target string) error {
	_, err := t.run.Run(ctx, cmdexec.Step{
		Desc:   "unmount " + target,
		Name:   "umount",
		Args:   []string{target},
		Remedy: "umount " + target,
	})
	return err
}

// IsMounted reports whether something is mounted at the target.
func (t *Table) IsMounted(ctx context.Context, target string) (bool, error) {
	out, _ := t.run.Run(ctx, cmdexec.Step{
		Desc:  "check mount state of " + target,
		Kind:  cmdexec.Advisory, // findmnt exits non-zero for "not mounted"
		Query: true,
		Name:  "findmnt",
		Args:  []string{"-n", target},
	})
	return strings.TrimSpace(out) != "", nil
}

func (t *Table) readLines() ([]string, error) {
	data, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mount table %s: %w", t.path, err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	return lines, nil
}

func (t *Table) writeLines(lines []string) error {
	if t.DryRun {
		t.log.Info("WHATIF: would update mount table", zap.String("path", t.path))
		return nil
	}
	data := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(t.path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("failed to write mount table %s: %w", t.path, err)
	}
	return nil
}
