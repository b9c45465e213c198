package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robertsinfosec/proxstor/internal/cmdexec"
	"github.com/robertsinfosec/proxstor/internal/inspect"
	"github.com/robertsinfosec/proxstor/internal/output"
	"github.com/robertsinfosec/proxstor/internal/registry"
)

var (
	statusFormat    string
	statusNoHeaders bool
	statusExtended  bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show this node's disks and registered storage units",
	Long: `Show every physical disk with its classification and storage label,
and every entry in the storage registry. Read-only.

With --extended each disk also reports SMART health, temperature and
remaining wear life where the drive exposes them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(statusFormat); err != nil {
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

		run := cmdexec.NewExec(log)
		ins := inspect.New(run, log)
		reg := registry.NewFile(cfg.RegistryPath, cfg.Node, log)

		report, err := gatherReport(context.Background(), cfg.Node, ins, reg)
		if err != nil {
			return err
		}

		f, err := output.NewFormatter(output.Options{
			Format:    output.Format(statusFormat),
			NoHeaders: statusNoHeaders,
			Extended:  statusExtended,
		})
		if err != nil {
			return err
		}
		rendered, err := f.FormatReport(report)
		if err != nil {
			return err
		}
		fmt.Print(rendered)
		return nil
	},
}

func gatherReport(ctx context.Context, node string, ins *inspect.Inspector, reg *registry.File) (*output.Report, error) {
	disks, err := ins.AllDisks(ctx)
	if err != nil {
		return nil, err
	}
	sys, err := ins.ResolveSystemDisk(ctx)
	if err != nil {
		return nil, err
	}
	units, err := reg.Units()
	if err != nil {
		return nil, err
	}

	report := &output.Report{Node: node}
	for _, d := range disks {
		row := output.DiskRow{
			Path:      d.Path,
			Model:     d.Model,
			SizeBytes: d.SizeBytes,
			Class:     string(ins.Classify(ctx, d)),
			Label:     d.StorageLabel(),
			System:    d.Path == sys.Path,
		}
		if statusExtended {
			if h := ins.Health(ctx, d); h.Available {
				row.Health = &output.HealthRow{
					Passed:      h.Passed,
					TempC:       h.TempC,
					LifeLeftPct: h.LifeLeftPct,
				}
			}
		}
		report.Disks = append(report.Disks, row)
	}
	for _, u := range units {
		report.Units = append(report.Units, output.UnitRow{
			ID:      u.ID,
			Backend: string(u.Backend),
			Target:  unitTarget(u),
			Content: u.Content,
			Shared:  u.IsShared(),
		})
	}
	return report, nil
}

// unitTarget picks the most telling location for a unit: mount path
// for filesystem backends, source for network, group for volumes.
func unitTarget(u registry.Unit) string {
	switch u.Backend {
	case registry.BackendLVMThin:
		return u.VolumeGroup + "/" + u.ThinPool
	case registry.BackendLVM:
		return u.VolumeGroup
	case registry.BackendNFS:
		return u.Server + ":" + u.Export
	default:
		return u.Path
	}
}

func init() {
	statusCmd.Flags().StringVarP(&statusFormat, "output", "o", "table", "output format: table, yaml or json")
	statusCmd.Flags().BoolVar(&statusNoHeaders, "no-headers", false, "omit column headers in table output")
	statusCmd.Flags().BoolVarP(&statusExtended, "extended", "e", false, "include SMART health columns")
}
