package manifest

import (
	"testing"

	"github.com/spf13/afero"

	"github.com/schaermu/wfsync/internal/testutil"
)

func TestContains(t *testing.T) {
	m := Default()

	tests := []struct {
		path string
		want bool
	}{
		{"CLAUDE.md", true},
		{".claude", true},
		{".claude/commands/write-plan.md", true},
		{"./.constitution/principles.md", true},
		{".claudex/file.md", false},
		{"README.md", false},
		{"docs/CLAUDE.md", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := m.Contains(tt.path); got != tt.want {
				t.Errorf("Contains(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	testutil.WriteTree(t, fs, "/data", map[string]string{
		"CLAUDE.md":                "doc",
		".claude/commands/plan.md": "plan",
	})

	missing := Default().Missing(fs, "/data")
	if len(missing) != 1 || missing[0] != ".constitution" {
		t.Errorf("Missing() = %v, want [.constitution]", missing)
	}

	testutil.WriteTree(t, fs, "/data", map[string]string{".constitution/a.md": "a"})
	if missing := Default().Missing(fs, "/data"); len(missing) != 0 {
		t.Errorf("Missing() = %v, want none", missing)
	}
}

func TestInstalled(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := Default()

	if m.Installed(fs, "/project") {
		t.Error("empty project reported as installed")
	}

	testutil.WriteTree(t, fs, "/project", map[string]string{".claude/settings.json": "{}"})
	if !m.Installed(fs, "/project") {
		t.Error("project with marker not reported as installed")
	}

	if (Manifest{Items: m.Items}).Installed(fs, "/project") {
		t.Error("manifest without marker should never report an installation")
	}
}

func TestDefaultIsACopy(t *testing.T) {
	m := Default()
	m.Items[0] = "changed"
	if DefaultItems[0] != ".claude" {
		t.Error("Default() must not alias DefaultItems")
	}
}
