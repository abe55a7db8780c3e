package util

import "testing"

func TestDecodeBranch(t *testing.T) {
	tests := []struct {
		segment string
		want    string
		wantErr bool
	}{
		{"MAIN", "MAIN", false},
		{"MAIN|SNOMEDCT-AU|AUAMT", "MAIN/SNOMEDCT-AU/AUAMT", false},
		{" MAIN|TASK-1 ", "MAIN/TASK-1", false},
		{"", "", true},
		{"PROJECT|A", "", true},
		{"MAIN||A", "", true},
		{"MAIN|", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.segment, func(t *testing.T) {
			got, err := DecodeBranch(tt.segment)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %q", tt.segment, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestEncodeBranch(t *testing.T) {
	branch := "MAIN/SNOMEDCT-AU/AUAMT"
	encoded := EncodeBranch(branch)
	if encoded != "MAIN|SNOMEDCT-AU|AUAMT" {
		t.Fatalf("expected pipes, got %q", encoded)
	}
	decoded, err := DecodeBranch(encoded)
	if err != nil || decoded != branch {
		t.Fatalf("expected %q, got %q (%v)", branch, decoded, err)
	}
}
