package blockdev

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/robertsinfosec/proxstor/internal/cmdexec"
)

type fakeRunner struct {
	responses map[string]string
	errs      map[string]error
	calls     []cmdexec.Step
}

func (f *fakeRunner) Run(ctx context.Context, step cmdexec.Step) (string, error) {
	f.calls = append(f.calls, step)
	cmd := step.Command()
	if err, ok := f.errs[cmd]; ok {
		return f.responses[cmd], err
	}
	return f.responses[cmd], nil
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	return "/usr/sbin/" + name, nil
}

func TestCreateGPTCommand(t *testing.T) {
	f := &fakeRunner{responses: map[string]string{}}
	c := New(f, zap.NewNop())
	if err := c.CreateGPT(context.Background(), "/dev/sdb", "HDD-3A", TypeLinuxFS); err != nil {
		t.Fatalf("CreateGPT: %v", err)
	}
	want := "sgdisk --new 1:0:0 --typecode 1:8300 --change-name 1:HDD-3A /dev/sdb"
	if len(f.calls) != 1 || f.calls[0].Command() != want {
		t.Errorf("command = %q, want %q", f.calls[0].Command(), want)
	}
	if f.calls[0].Kind != cmdexec.Required {
		t.Error("partition creation must be a required step")
	}
}

func TestAdvisorySteps(t *testing.T) {
	f := &fakeRunner{responses: map[string]string{}}
	c := New(f, zap.NewNop())
	ctx := context.Background()

	if err := c.RefreshPartitions(ctx, "/dev/sdb"); err != nil {
		t.Fatal(err)
	}
	if err := c.Settle(ctx); err != nil {
		t.Fatal(err)
	}
	for _, call := range f.calls {
		if call.Kind != cmdexec.Advisory {
			t.Errorf("step %q should be advisory", call.Desc)
		}
	}
}

func TestProbeReadableFailure(t *testing.T) {
	cmd := "dd if=/dev/sdb of=/dev/null bs=1M count=4 iflag=direct"
	f := &fakeRunner{
		responses: map[string]string{},
		errs:      map[string]error{cmd: fmt.Errorf("Input/output error")},
	}
	c := New(f, zap.NewNop())
	if err := c.ProbeReadable(context.Background(), "/dev/sdb"); err == nil {
		t.Error("ProbeReadable on failing device: error = nil, want error")
	}
}

func TestPartitionsRemain(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want bool
	}{
		{
			name: "partitions left",
			out:  "disk\npart\n",
			want: true,
		},
		{
			name: "clean disk",
			out:  "disk\n",
			want: false,
		},
		{
			name: "empty output",
			out:  "",
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeRunner{responses: map[string]string{"lsblk -no TYPE /dev/sdb": tt.out}}
			c := New(f, zap.NewNop())
			got, err := c.PartitionsRemain(context.Background(), "/dev/sdb")
			if err != nil {
				t.Fatalf("PartitionsRemain: %v", err)
			}
			if got != tt.want {
				t.Errorf("PartitionsRemain() = %v, want %v", got, tt.want)
			}
		})
	}
}
