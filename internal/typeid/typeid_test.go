package typeid

import (
	"strings"
	"testing"
)

func TestNewCarriesPrefix(t *testing.T) {
	for _, p := range []Prefix{User, Scene, Node, Snapshot, Op, Timeline, Track, Keyframe, Asset} {
		t.Run(string(p), func(t *testing.T) {
			id := p.New()
			if !strings.HasPrefix(id, string(p)+"_") {
				t.Fatalf("id %q does not start with %q", id, string(p)+"_")
			}
			if err := p.Validate(id); err != nil {
				t.Fatalf("Validate(%q): %v", id, err)
			}
		})
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"other prefix", Scene.New()},
		{"garbage", "not an id"},
		{"empty", ""},
		{"path", "../../etc/passwd"},
	}
	for _, tt := range tests {
		if err := Node.Validate(tt.id); err == nil {
			t.Errorf("%s: Validate(%q) succeeded", tt.name, tt.id)
		}
	}
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := Node.New()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
