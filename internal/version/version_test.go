package version

import "testing"

func TestCompatible(t *testing.T) {
	tests := []struct {
		name       string
		client     string
		server     string
		compatible bool
		wantErr    bool
	}{
		{"same version", "1.0.0", "1.0.0", true, false},
		{"minor drift", "1.0.0", "1.3.2", true, false},
		{"major mismatch", "1.0.0", "2.0.0", false, false},
		{"invalid client", "not-a-version", "1.0.0", false, true},
		{"invalid server", "1.0.0", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compatible(tt.client, tt.server)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if got != tt.compatible {
				t.Errorf("Compatible(%q, %q) = %v, want %v", tt.client, tt.server, got, tt.compatible)
			}
		})
	}
}
