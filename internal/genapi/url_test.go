package genapi

import "testing"

func TestResolveImageURL(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{"http://192.168.56.1:5000", "out/1.png", "http://192.168.56.1:5000/out/1.png"},
		{"http://localhost:5000/", "out/1.png", "http://localhost:5000/out/1.png"},
		{"http://localhost:5000", "/images/1.png", "http://localhost:5000/images/1.png"},
		{"http://cdn.local/results", "out/1.png", "http://cdn.local/results/out/1.png"},
		{"http://localhost:5000", "https://cdn.example.com/a.png", "https://cdn.example.com/a.png"},
		{"http://localhost:5000", "data:image/png;base64,AAAA", "data:image/png;base64,AAAA"},
	}
	for _, tt := range tests {
		got, err := ResolveImageURL(tt.base, tt.ref)
		if err != nil {
			t.Errorf("ResolveImageURL(%q, %q) error: %v", tt.base, tt.ref, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveImageURL(%q, %q) = %q, want %q", tt.base, tt.ref, got, tt.want)
		}
	}

	if _, err := ResolveImageURL("http://localhost:5000", ""); err == nil {
		t.Error("expected error for empty reference")
	}
}
