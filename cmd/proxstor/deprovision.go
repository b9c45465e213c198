package main

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	deprovisionForce  bool
	deprovisionWhatIf bool
	deprovisionOnly   []string
)

var deprovisionCmd = &cobra.Command{
	Use:   "deprovision",
	Short: "Tear down storage units and wipe their disks",
	Long: `Tear down this node's storage units: unregister them, remove their
mount-table entries, dismantle their volume groups and wipe the
backing disks back to blank.

Without --only every local unit and data disk is torn down. The system
disk is never touched, and a volume group that spans a disk outside
the selected set, or reaches the system disk, is refused and left
intact along with its member disks.`,
	Example: `  proxstor deprovision --only HDD-3A
  proxstor deprovision --only /dev/sdb --whatif
  proxstor deprovision`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		cfg, err := loadRun()
		if err != nil {
			return err
		}
		cfg.Force = deprovisionForce
		cfg.WhatIf = deprovisionWhatIf
		cfg.Filters = deprovisionOnly

		return buildEngine(cfg, log).Teardown(context.Background())
	},
}

func init() {
	deprovisionCmd.Flags().BoolVar(&deprovisionForce, "force", false, "skip the confirmation prompt")
	deprovisionCmd.Flags().BoolVar(&deprovisionWhatIf, "whatif", false, "print what would change without changing it")
	deprovisionCmd.Flags().StringSliceVar(&deprovisionOnly, "only", nil, "limit to the given device paths or storage names")
}
