package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNodeDigit(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		want    byte
		wantErr bool
	}{
		{
			name: "single digit suffix",
			host: "pve3",
			want: '3',
		},
		{
			name: "digit zero",
			host: "node0",
			want: '0',
		},
		{
			name:    "no digit",
			host:    "pve",
			wantErr: true,
		},
		{
			name:    "two digit suffix",
			host:    "pve13",
			wantErr: true,
		},
		{
			name:    "empty",
			host:    "",
			wantErr: true,
		},
		{
			name: "bare digit",
			host: "7",
			want: '7',
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NodeDigit(tt.host)
			if (err != nil) != tt.wantErr {
				t.Errorf("NodeDigit(%q) error = %v, wantErr %v", tt.host, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("NodeDigit(%q) = %c, want %c", tt.host, got, tt.want)
			}
		})
	}
}

func TestShortName(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"pve3.example.com", "pve3"},
		{"pve3", "pve3"},
		{"a.b.c", "a"},
	}
	for _, tt := range tests {
		if got := ShortName(tt.host); got != tt.want {
			t.Errorf("ShortName(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestParseStorageType(t *testing.T) {
	for _, ok := range []string{"dir", "lvm", "lvm-thin", "nfs"} {
		if _, err := ParseStorageType(ok); err != nil {
			t.Errorf("ParseStorageType(%q) error = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "zfs", "LVM", "thin"} {
		if _, err := ParseStorageType(bad); err == nil {
			t.Errorf("ParseStorageType(%q) error = nil, want error", bad)
		}
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	r, err := New("pve3.lab.local", Defaults{
		MountRoot: "/srv/stor",
		RootVG:    "sys",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.Node != "pve3" || r.NodeDigit != '3' {
		t.Errorf("node identity = %q/%c", r.Node, r.NodeDigit)
	}
	if r.MountRoot != "/srv/stor" {
		t.Errorf("MountRoot = %q", r.MountRoot)
	}
	if r.RootVG != "sys" {
		t.Errorf("RootVG = %q", r.RootVG)
	}
	if r.RegistryPath != DefaultRegistryPath {
		t.Errorf("RegistryPath = %q, want default", r.RegistryPath)
	}
}

func TestNewRejectsBadHost(t *testing.T) {
	if _, err := New("pve.lab.local", Defaults{}); err == nil {
		t.Error("New() with digitless host: error = nil, want error")
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file is ok", func(t *testing.T) {
		d, err := LoadDefaults(filepath.Join(dir, "absent.yaml"))
		if err != nil {
			t.Fatalf("LoadDefaults: %v", err)
		}
		if d.MountRoot != "" {
			t.Errorf("expected zero Defaults, got %+v", d)
		}
	})

	t.Run("parses yaml", func(t *testing.T) {
		path := filepath.Join(dir, "proxstor.yaml")
		content := "mount_root: /data\nnfs_options: vers=3\nvm_config_dirs:\n  - /etc/pve/qemu-server\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		d, err := LoadDefaults(path)
		if err != nil {
			t.Fatalf("LoadDefaults: %v", err)
		}
		if d.MountRoot != "/data" || d.NFSOptions != "vers=3" || len(d.VMConfigDirs) != 1 {
			t.Errorf("LoadDefaults = %+v", d)
		}
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("mount_root: [unclosed"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadDefaults(path); err == nil {
			t.Error("LoadDefaults() with bad yaml: error = nil, want error")
		}
	})
}

func TestRunValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Run)
		wantErr bool
	}{
		{
			name:   "dir defaults",
			mutate: func(r *Run) {},
		},
		{
			name: "nfs with server and export",
			mutate: func(r *Run) {
				r.Type = TypeNFS
				r.Server = "filer1"
				r.Export = "/srv/nfs"
			},
		},
		{
			name: "nfs missing export",
			mutate: func(r *Run) {
				r.Type = TypeNFS
				r.Server = "filer1"
			},
			wantErr: true,
		},
		{
			name: "nfs with all",
			mutate: func(r *Run) {
				r.Type = TypeNFS
				r.Server = "filer1"
				r.Export = "/srv/nfs"
				r.All = true
			},
			wantErr: true,
		},
		{
			name: "server without nfs",
			mutate: func(r *Run) {
				r.Server = "filer1"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New("pve1", Defaults{})
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(r)
			if err := r.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
