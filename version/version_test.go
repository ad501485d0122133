package version

import (
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version == "" {
		t.Error("expected a non-empty version")
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{"no commit", Info{Version: "1.2.0"}, "1.2.0"},
		{"short commit", Info{Version: "1.2.0", GitCommit: "abc123"}, "1.2.0 (abc123)"},
		{"long commit truncated", Info{Version: "1.2.0", GitCommit: "abcdef0123456789"}, "1.2.0 (abcdef01)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.info.String(); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
