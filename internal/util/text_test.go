package util

import "testing"

func TestSanitizePostgresText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain utf8",
			input: "Paracetamol 500 mg tablet",
			want:  "Paracetamol 500 mg tablet",
		},
		{
			name:  "contains null byte",
			input: "Pana\x00dol",
			want:  "Panadol",
		},
		{
			name:  "contains invalid utf8",
			input: string([]byte{'a', 0xff, 'b'}),
			want:  "ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizePostgresText(tt.input)
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSanitizeProductName(t *testing.T) {
	got := SanitizeProductName("  Panadol 500 mg\ttablet,\n 20\x00 ")
	want := "Panadol 500 mg tablet, 20"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
