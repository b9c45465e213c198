package filter

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name       string
		devPath    string
		partLabel  string
		registryID string
		filters    []string
		want       bool
	}{
		{
			name:    "no filters matches everything",
			devPath: "/dev/sdb",
			want:    true,
		},
		{
			name:       "name filter matches registry id",
			devPath:    "/dev/sdb",
			registryID: "HDD-1A",
			filters:    []string{"HDD-1A"},
			want:       true,
		},
		{
			name:      "name filter matches partition label",
			devPath:   "/dev/sdb",
			partLabel: "HDD-1A",
			filters:   []string{"HDD-1A"},
			want:      true,
		},
		{
			name:       "name filter mismatch",
			devPath:    "/dev/sdb",
			partLabel:  "HDD-1B",
			registryID: "HDD-1B",
			filters:    []string{"HDD-1A"},
			want:       false,
		},
		{
			name:    "path filter exact",
			devPath: "/dev/sdb",
			filters: []string{"/dev/sdb"},
			want:    true,
		},
		{
			name:    "path filter cleaned",
			devPath: "/dev/sdb",
			filters: []string{"/dev//sdb"},
			want:    true,
		},
		{
			name:    "path filter other disk",
			devPath: "/dev/sdb",
			filters: []string{"/dev/sdc"},
			want:    false,
		},
		{
			name:       "either of several filters",
			devPath:    "/dev/sdc",
			registryID: "SSD-1A",
			filters:    []string{"/dev/sdb", "SSD-1A"},
			want:       true,
		},
		{
			name:    "empty label does not match empty-name disk",
			devPath: "/dev/sdb",
			filters: []string{"HDD-1A"},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Matches(tt.devPath, tt.partLabel, tt.registryID, tt.filters)
			if got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Filter equivalence: the same unit is selected by its device path and
// by its storage name.
func TestFilterEquivalence(t *testing.T) {
	devPath, partLabel, id := "/dev/sdb", "HDD-1A", "HDD-1A"
	if !Matches(devPath, partLabel, id, []string{"/dev/sdb"}) {
		t.Error("path filter did not match the unit")
	}
	if !Matches(devPath, partLabel, id, []string{"HDD-1A"}) {
		t.Error("name filter did not match the unit")
	}
}

func TestNormalizePathResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "sdb")
	if err := os.WriteFile(real, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "by-id-link")
	if err := os.Symlink(real, link); err != nil {
		t.Fatal(err)
	}
	if got := NormalizePath(link); got != real {
		t.Errorf("NormalizePath(%q) = %q, want %q", link, got, real)
	}
}

func TestMatchesID(t *testing.T) {
	if !MatchesID("NFS-2A", nil) {
		t.Error("empty filter set should match")
	}
	if !MatchesID("NFS-2A", []string{"NFS-2A"}) {
		t.Error("name filter should match id")
	}
	if MatchesID("NFS-2A", []string{"/dev/sdb"}) {
		t.Error("path filter should not match a diskless unit")
	}
}

func TestValidate(t *testing.T) {
	exists := func(id string) bool { return id == "HDD-1A" }

	tests := []struct {
		name    string
		mode    Mode
		filters []string
		wantErr bool
	}{
		{
			name:    "provision over existing name",
			mode:    ModeProvision,
			filters: []string{"HDD-1A"},
			wantErr: true,
		},
		{
			name:    "provision with fresh name",
			mode:    ModeProvision,
			filters: []string{"HDD-1B"},
		},
		{
			name:    "deprovision existing name",
			mode:    ModeDeprovision,
			filters: []string{"HDD-1A"},
		},
		{
			name:    "deprovision missing name",
			mode:    ModeDeprovision,
			filters: []string{"HDD-1B"},
			wantErr: true,
		},
		{
			name:    "system disk path provision",
			mode:    ModeProvision,
			filters: []string{"/dev/sda"},
			wantErr: true,
		},
		{
			name:    "system disk path deprovision",
			mode:    ModeDeprovision,
			filters: []string{"/dev/sda"},
			wantErr: true,
		},
		{
			name:    "other disk path is fine",
			mode:    ModeProvision,
			filters: []string{"/dev/sdb"},
		},
		{
			name: "no filters",
			mode: ModeDeprovision,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.mode, tt.filters, exists, "/dev/sda")
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
