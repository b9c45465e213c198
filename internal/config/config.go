// Package config builds the single immutable run configuration that
// every engine component receives. Flags and the optional defaults
// file are folded together exactly once at startup; nothing reads
// global state after that.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Built-in paths and defaults. The defaults file can override all of
// them; flags cannot, because they describe the host, not the run.
const (
	DefaultMountRoot      = "/mnt/pve"
	DefaultRegistryPath   = "/etc/pve/storage.cfg"
	DefaultMountTablePath = "/etc/fstab"
	DefaultNFSOptions     = "vers=4,soft,timeo=150,retrans=3"

	// DefaultThinUnit is the stock thin-pool registry entry reclaimed
	// from the system disk on a full provisioning pass.
	DefaultThinUnit = "local-lvm"
	// DefaultRootVG and DefaultRootLV locate the root logical volume
	// grown during system-disk reclaim.
	DefaultRootVG = "pve"
	DefaultRootLV = "root"
)

// StorageType is the requested backend type for provisioning.
type StorageType string

const (
	TypeDir     StorageType = "dir"
	TypeLVM     StorageType = "lvm"
	TypeLVMThin StorageType = "lvm-thin"
	TypeNFS     StorageType = "nfs"
)

// ParseStorageType validates a --type flag value.
func ParseStorageType(s string) (StorageType, error) {
	switch StorageType(s) {
	case TypeDir, TypeLVM, TypeLVMThin, TypeNFS:
		return StorageType(s), nil
	default:
		return "", fmt.Errorf("unknown storage type %q (want dir, lvm, lvm-thin or nfs)", s)
	}
}

// Run is the complete, immutable configuration for one invocation.
type Run struct {
	Node      string // host short name
	NodeDigit byte   // trailing digit of Node

	Type       StorageType
	Force      bool
	WhatIf     bool
	FullFormat bool
	All        bool
	Filters    []string

	// NFS backend inputs.
	Server  string
	Export  string
	Options string

	// Host layout.
	MountRoot      string
	RegistryPath   string
	MountTablePath string
	VMConfigDirs   []string

	// System-disk reclaim targets.
	ThinUnit string
	RootVG   string
	RootLV   string
}

// Defaults is the optional YAML defaults file
// (/etc/proxstor/proxstor.yaml).
type Defaults struct {
	MountRoot      string   `yaml:"mount_root,omitempty"`
	RegistryPath   string   `yaml:"registry_path,omitempty"`
	MountTablePath string   `yaml:"mount_table_path,omitempty"`
	NFSOptions     string   `yaml:"nfs_options,omitempty"`
	VMConfigDirs   []string `yaml:"vm_config_dirs,omitempty"`
	ThinUnit       string   `yaml:"thin_unit,omitempty"`
	RootVG         string   `yaml:"root_vg,omitempty"`
	RootLV         string   `yaml:"root_lv,omitempty"`
}

// LoadDefaults reads the defaults file. A missing file is not an
// error; an unreadable or malformed one is.
func LoadDefaults(path string) (Defaults, error) {
	var d Defaults
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return d, fmt.Errorf("failed to read defaults file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("failed to parse defaults file %s: %w", path, err)
	}
	return d, nil
}

// New builds a Run from the host name, flag values and defaults.
func New(hostname string, d Defaults) (*Run, error) {
	node := ShortName(hostname)
	digit, err := NodeDigit(node)
	if err != nil {
		return nil, err
	}

	r := &Run{
		Node:           node,
		NodeDigit:      digit,
		Type:           TypeDir,
		Options:        DefaultNFSOptions,
		MountRoot:      DefaultMountRoot,
		RegistryPath:   DefaultRegistryPath,
		MountTablePath: DefaultMountTablePath,
		VMConfigDirs:   []string{"/etc/pve/qemu-server", "/etc/pve/lxc"},
		ThinUnit:       DefaultThinUnit,
		RootVG:         DefaultRootVG,
		RootLV:         DefaultRootLV,
	}

	if d.MountRoot != "" {
		r.MountRoot = d.MountRoot
	}
	if d.RegistryPath != "" {
		r.RegistryPath = d.RegistryPath
	}
	if d.MountTablePath != "" {
		r.MountTablePath = d.MountTablePath
	}
	if d.NFSOptions != "" {
		r.Options = d.NFSOptions
	}
	if len(d.VMConfigDirs) > 0 {
		r.VMConfigDirs = d.VMConfigDirs
	}
	if d.ThinUnit != "" {
		r.ThinUnit = d.ThinUnit
	}
	if d.RootVG != "" {
		r.RootVG = d.RootVG
	}
	if d.RootLV != "" {
		r.RootLV = d.RootLV
	}
	return r, nil
}

// Validate checks flag combinations after the caller has filled in the
// run-specific fields.
func (r *Run) Validate() error {
	if r.Type == TypeNFS {
		if r.Server == "" || r.Export == "" {
			return fmt.Errorf("nfs storage requires --server and --export")
		}
		if r.All || r.FullFormat {
			return fmt.Errorf("nfs storage touches no disks; --all and --full-format do not apply")
		}
	} else if r.Server != "" || r.Export != "" {
		return fmt.Errorf("--server and --export only apply to --type nfs")
	}
	return nil
}

// ShortName strips any domain part from a hostname.
func ShortName(hostname string) string {
	if i := strings.IndexByte(hostname, '.'); i >= 0 {
		return hostname[:i]
	}
	return hostname
}

// NodeDigit extracts the node identity digit. The host's short name
// must end in exactly one digit; every storage label on the node
// embeds it, so anything else is a fatal configuration error.
func NodeDigit(shortName string) (byte, error) {
	if shortName == "" {
		return 0, fmt.Errorf("empty hostname")
	}
	last := shortName[len(shortName)-1]
	if last < '0' || last > '9' {
		return 0, fmt.Errorf("hostname %q must end in a single digit (e.g. pve3) to derive the node identity", shortName)
	}
	if len(shortName) >= 2 {
		prev := shortName[len(shortName)-2]
		if prev >= '0' && prev <= '9' {
			return 0, fmt.Errorf("hostname %q must end in exactly one digit, found more", shortName)
		}
	}
	return last, nil
}
