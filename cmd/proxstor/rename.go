package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/robertsinfosec/proxstor/internal/cmdexec"
	"github.com/robertsinfosec/proxstor/internal/lvm"
	"github.com/robertsinfosec/proxstor/internal/registry"
)

var renameForce bool

var renameCmd = &cobra.Command{
	Use:   "rename <old>:<new>",
	Short: "Rename a storage unit",
	Long: `Rename one of this node's storage units.

Directory and NFS units are remounted under the new name; volume
units keep their volume group and only change their registry name.
Guest configs referencing the old name are not rewritten, so check
list-usage first.`,
	Example: `  proxstor rename HDD-3A:bulk-media
  proxstor rename bulk-media:HDD-3A --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldID, newID, ok := strings.Cut(args[0], ":")
		if !ok || oldID == "" || newID == "" {
			return fmt.Errorf("rename takes a single <old>:<new> argument, got %q", args[0])
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
		cfg.Force = renameForce

		return buildEngine(cfg, log).Rename(context.Background(), oldID, newID)
	},
}

var listUsageCmd = &cobra.Command{
	Use:   "list-usage <storage-name>",
	Short: "Show what a storage unit holds and which guests use it",
	Long: `Show the contents of a storage unit and the guest configs that
reference it, so the operator can judge what a rename or teardown
would affect.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		log, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		cfg, err := loadRun()
		if err != nil {
			return err
		}

		run := cmdexec.NewExec(log)
		reg := registry.NewFile(cfg.RegistryPath, cfg.Node, log)
		vol := lvm.NewCLI(run, log)
		lister := func(ctx context.Context, vgName string) ([]string, error) {
			lvs, err := vol.ListLVs(ctx, vgName)
			if err != nil {
				return nil, err
			}
			var names []string
			for _, lv := range lvs {
				names = append(names, lv.Name)
			}
			return names, nil
		}

		usage, err := reg.ListUsage(context.Background(), id, lister, cfg.VMConfigDirs)
		if err != nil {
			return err
		}
		printUsage(usage)
		return nil
	},
}

func printUsage(u registry.Usage) {
	fmt.Printf("Storage: %s (%s)\n", u.Unit.ID, u.Unit.Backend)
	switch u.Unit.Backend {
	case registry.BackendLVM, registry.BackendLVMThin:
		fmt.Printf("Volume group: %s\n", u.Unit.VolumeGroup)
	case registry.BackendNFS:
		fmt.Printf("Source: %s:%s\n", u.Unit.Server, u.Unit.Export)
		fmt.Printf("Path: %s\n", u.Unit.Path)
	default:
		fmt.Printf("Path: %s\n", u.Unit.Path)
	}

	if len(u.Contents) == 0 {
		fmt.Println("\nContents: none")
	} else {
		fmt.Printf("\nContents (%d):\n", len(u.Contents))
		for _, c := range u.Contents {
			fmt.Printf("  %s\n", c)
		}
	}

	if len(u.UsedBy) == 0 {
		fmt.Println("\nUsed by: no guests")
	} else {
		fmt.Printf("\nUsed by (%d guests):\n", len(u.UsedBy))
		for _, g := range u.UsedBy {
			fmt.Printf("  %s\n", g)
		}
	}
}

func init() {
	renameCmd.Flags().BoolVar(&renameForce, "force", false, "skip the confirmation prompt")
}
