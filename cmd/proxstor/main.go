package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/robertsinfosec/proxstor/internal/backend"
	"github.com/robertsinfosec/proxstor/internal/blockdev"
	"github.com/robertsinfosec/proxstor/internal/cmdexec"
	"github.com/robertsinfosec/proxstor/internal/config"
	"github.com/robertsinfosec/proxstor/internal/engine"
	"github.com/robertsinfosec/proxstor/internal/inspect"
	"github.com/robertsinfosec/proxstor/internal/lvm"
	"github.com/robertsinfosec/proxstor/internal/mounts"
	"github.com/robertsinfosec/proxstor/internal/registry"
	"github.com/robertsinfosec/proxstor/internal/safety"
)

var (
	version = "dev"
	commit  = "unknown"
)

// defaultsPath is the optional host-layout defaults file.
const defaultsPath = "/etc/proxstor/proxstor.yaml"

var verbose bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "proxstor",
	Short: "Proxstor - node-local storage provisioning for Proxmox hosts",
	Long: `Proxstor reconciles a node's physical data disks into labeled,
registered storage units.

It discovers and classifies disks, assigns deterministic labels like
HDD-3A, provisions the requested backend (dir, lvm, lvm-thin or nfs),
and keeps the storage registry and mount table in sync. Destructive
runs are gated behind an explicit confirmation and can be simulated
with --whatif.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(deprovisionCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(listUsageCmd)
	rootCmd.AddCommand(statusCmd)
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// loadRun folds the hostname and the optional defaults file into the
// run configuration. Commands fill in their flag-driven fields after.
func loadRun() (*config.Run, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to read hostname: %w", err)
	}
	defaults, err := config.LoadDefaults(defaultsPath)
	if err != nil {
		return nil, err
	}
	return config.New(hostname, defaults)
}

// buildEngine wires the real adapters. Queries always execute so a
// simulated run plans against true host state; mutations go through
// the what-if runner and the adapters' dry-run switches when
// cfg.WhatIf is set.
func buildEngine(cfg *config.Run, log *zap.Logger) *engine.Engine {
	query := cmdexec.NewExec(log)
	var mutate cmdexec.Runner = query
	if cfg.WhatIf {
		mutate = cmdexec.NewWhatIf(log)
	}

	reg := registry.NewFile(cfg.RegistryPath, cfg.Node, log)
	reg.DryRun = cfg.WhatIf
	mnt := mounts.NewTable(cfg.MountTablePath, cfg.MountRoot, mutate, log)
	mnt.DryRun = cfg.WhatIf
	vol := lvm.NewCLI(mutate, log)
	prep := blockdev.New(mutate, log)
	gate := &safety.Gate{WhatIf: cfg.WhatIf, Force: cfg.Force, In: os.Stdin, Out: os.Stdout}

	return engine.New(engine.Deps{
		Config:   cfg,
		Gate:     gate,
		Inspect:  inspect.New(query, log),
		Registry: reg,
		Volumes:  vol,
		Prepare:  prep,
		Mounts:   mnt,
		Backends: map[config.StorageType]engine.DiskProvisioner{
			config.TypeDir:     backend.NewDir(prep, mnt, reg, cfg.FullFormat, log),
			config.TypeLVM:     backend.NewLVM(prep, vol, reg, log),
			config.TypeLVMThin: backend.NewLVMThin(prep, vol, reg, log),
		},
		Network: backend.NewNFS(mutate, mnt, reg, cfg.Server, cfg.Export, cfg.Options, log),
		Log:     log,
	})
}
