package safety

import (
	"strings"
	"testing"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		name   string
		gate   Gate
		input  string
		want   bool
		prompt bool
	}{
		{
			name:  "whatif proceeds without prompting",
			gate:  Gate{WhatIf: true},
			want:  true,
		},
		{
			name: "force proceeds without prompting",
			gate: Gate{Force: true},
			want: true,
		},
		{
			name:   "exact literal proceeds",
			input:  "ERASE\n",
			want:   true,
			prompt: true,
		},
		{
			name:   "literal with CRLF proceeds",
			input:  "ERASE\r\n",
			want:   true,
			prompt: true,
		},
		{
			name:   "lowercase aborts",
			input:  "erase\n",
			want:   false,
			prompt: true,
		},
		{
			name:   "empty input aborts",
			input:  "\n",
			want:   false,
			prompt: true,
		},
		{
			name:   "closed input aborts",
			input:  "",
			want:   false,
			prompt: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			g := tt.gate
			g.In = strings.NewReader(tt.input)
			g.Out = &out

			got, err := g.Confirm("About to erase /dev/sdb")
			if err != nil {
				t.Fatalf("Confirm: %v", err)
			}
			if got != tt.want {
				t.Errorf("Confirm() = %v, want %v", got, tt.want)
			}
			if tt.prompt && !strings.Contains(out.String(), ConfirmLiteral) {
				t.Error("prompt does not name the confirmation literal")
			}
			if !tt.prompt && out.Len() != 0 {
				t.Errorf("unexpected prompt output: %q", out.String())
			}
			if tt.prompt && !tt.want && !strings.Contains(out.String(), "Aborted") {
				t.Error("abort message missing")
			}
		})
	}
}
