package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/robertsinfosec/proxstor/internal/config"
)

var (
	provisionType       string
	provisionForce      bool
	provisionWhatIf     bool
	provisionFullFormat bool
	provisionAll        bool
	provisionOnly       []string
	provisionServer     string
	provisionExport     string
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Reconcile data disks into labeled storage units",
	Long: `Reconcile every data disk on this node into a labeled, registered
storage unit of the requested type.

Disks already carrying a correct label are healed in place: missing
mountpoints, mount-table entries and registry entries are restored
without touching the data. Unlabeled or mislabeled disks are wiped and
provisioned fresh. With --all, or when --only narrows the target set,
every selected disk is wiped and recreated.

A full, unfiltered pass also reclaims the system disk: the stock thin
pool is removed and the root volume grown over the freed space.

With --type nfs no disks are touched; the export is mounted and
registered under the next free NFS label.`,
	Example: `  proxstor provision --type lvm-thin
  proxstor provision --type dir --only /dev/sdc --whatif
  proxstor provision --type nfs --server nas1 --export /srv/backups`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := config.ParseStorageType(provisionType)
		if err != nil {
			return err
		}

		log, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		cfg, err := loadRun()
		if err != nil {
			return err
		}
		cfg.Type = st
		cfg.Force = provisionForce
		cfg.WhatIf = provisionWhatIf
		cfg.FullFormat = provisionFullFormat
		cfg.All = provisionAll
		cfg.Filters = provisionOnly
		cfg.Server = provisionServer
		cfg.Export = provisionExport
		if err := cfg.Validate(); err != nil {
			return err
		}

		return buildEngine(cfg, log).Reconcile(context.Background())
	},
}

func init() {
	provisionCmd.Flags().StringVarP(&provisionType, "type", "t", "dir", "storage type: dir, lvm, lvm-thin or nfs")
	provisionCmd.Flags().BoolVar(&provisionForce, "force", false, "skip the confirmation prompt")
	provisionCmd.Flags().BoolVar(&provisionWhatIf, "whatif", false, "print what would change without changing it")
	provisionCmd.Flags().BoolVar(&provisionFullFormat, "full-format", false, "format with filesystem defaults instead of the VM-image profile")
	provisionCmd.Flags().BoolVar(&provisionAll, "all", false, "wipe and recreate every data disk, correctly labeled ones included")
	provisionCmd.Flags().StringSliceVar(&provisionOnly, "only", nil, "limit to the given device paths or storage names")
	provisionCmd.Flags().StringVar(&provisionServer, "server", "", "NFS server hostname or address (--type nfs)")
	provisionCmd.Flags().StringVar(&provisionExport, "export", "", "NFS export path (--type nfs)")
}
