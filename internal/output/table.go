package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

// TableFormatter formats the report as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header rows.
	NoHeaders bool
	// Extended adds the SMART health columns.
	Extended bool
}

// FormatReport renders the disk inventory followed by the registered
// storage units.
func (f *TableFormatter) FormatReport(r *Report) (string, error) {
	var buf bytes.Buffer
	f.writeDisks(&buf, r.Disks)
	buf.WriteByte('\n')
	f.writeUnits(&buf, r.Units)
	return buf.String(), nil
}

func (f *TableFormatter) writeDisks(buf *bytes.Buffer, disks []DiskRow) {
	if len(disks) == 0 {
		buf.WriteString("No disks found\n")
		return
	}

	w := tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)
	if !f.NoHeaders {
		header := "DEVICE\tMODEL\tSIZE\tCLASS\tLABEL"
		if f.Extended {
			header += "\tHEALTH\tTEMP\tLIFE"
		}
		_, _ = fmt.Fprintln(w, header)
	}

	for _, d := range disks {
		model := d.Model
		if model == "" {
			model = "-"
		}
		lab := d.Label
		if lab == "" {
			lab = "-"
		}
		if d.System {
			lab = "(system)"
		}
		row := fmt.Sprintf("%s\t%s\t%s\t%s\t%s",
			d.Path, model, humanize.IBytes(d.SizeBytes), d.Class, lab)
		if f.Extended {
			row += "\t" + healthColumns(d.Health)
		}
		_, _ = fmt.Fprintln(w, row)
	}
	_ = w.Flush()
}

func (f *TableFormatter) writeUnits(buf *bytes.Buffer, units []UnitRow) {
	if len(units) == 0 {
		buf.WriteString("No storage units registered\n")
		return
	}

	w := tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)
	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "ID\tBACKEND\tTARGET\tCONTENT\tSHARED")
	}
	for _, u := range units {
		shared := "no"
		if u.Shared {
			shared = "yes"
		}
		content := u.Content
		if content == "" {
			content = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			u.ID, u.Backend, u.Target, content, shared)
	}
	_ = w.Flush()
}

func healthColumns(h *HealthRow) string {
	if h == nil {
		return "-\t-\t-"
	}
	status := "PASSED"
	if !h.Passed {
		status = "FAILED"
	}
	life := "-"
	if h.LifeLeftPct >= 0 {
		life = fmt.Sprintf("%d%%", h.LifeLeftPct)
	}
	return fmt.Sprintf("%s\t%d°C\t%s", status, h.TempC, life)
}
