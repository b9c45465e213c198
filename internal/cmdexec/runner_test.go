package cmdexec

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestExecRunSuccess(t *testing.T) {
	r := NewExec(zap.NewNop())
	out, err := r.Run(context.Background(), Step{
		Desc: "echo test",
		Name: "echo",
		Args: []string{"hello"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("Run() output = %q, want %q", out, "hello")
	}
}

func TestExecRunRequiredFailure(t *testing.T) {
	r := NewExec(zap.NewNop())
	_, err := r.Run(context.Background(), Step{
		Desc:   "fail on purpose",
		Kind:   Required,
		Name:   "false",
		Remedy: "false",
	})
	if err == nil {
		t.Fatal("Run() error = nil, want StepError")
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("Run() error type = %T, want *StepError", err)
	}
	if stepErr.Desc != "fail on purpose" {
		t.Errorf("StepError.Desc = %q", stepErr.Desc)
	}
	if !strings.Contains(stepErr.Error(), "to retry by hand: false") {
		t.Errorf("StepError.Error() missing remedy: %q", stepErr.Error())
	}
}

func TestExecRunAdvisoryFailure(t *testing.T) {
	r := NewExec(zap.NewNop())
	_, err := r.Run(context.Background(), Step{
		Desc: "best effort",
		Kind: Advisory,
		Name: "false",
	})
	if err != nil {
		t.Errorf("advisory step failure should not return an error, got %v", err)
	}
}

func TestWhatIfRunsNothing(t *testing.T) {
	r := NewWhatIf(zap.NewNop())
	out, err := r.Run(context.Background(), Step{
		Desc: "would wipe disk",
		Name: "wipefs",
		Args: []string{"--all", "/dev/sdz"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out != "" {
		t.Errorf("Run() output = %q, want empty", out)
	}
}

func TestWhatIfRunsQuerySteps(t *testing.T) {
	r := NewWhatIf(zap.NewNop())
	out, err := r.Run(context.Background(), Step{
		Desc:  "read something",
		Query: true,
		Name:  "echo",
		Args:  []string{"state"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.TrimSpace(out) != "state" {
		t.Errorf("query step output = %q, want %q", out, "state")
	}
}

func TestStepCommand(t *testing.T) {
	tests := []struct {
		name string
		step Step
		want string
	}{
		{
			name: "with args",
			step: Step{Name: "sgdisk", Args: []string{"--zap-all", "/dev/sdb"}},
			want: "sgdisk --zap-all /dev/sdb",
		},
		{
			name: "no args",
			step: Step{Name: "sync"},
			want: "sync",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.step.Command(); got != tt.want {
				t.Errorf("Command() = %q, want %q", got, tt.want)
			}
		})
	}
}
