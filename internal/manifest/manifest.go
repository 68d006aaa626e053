// Package manifest describes which top-level entries of the template
// repository are installed into a project.
package manifest

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// DefaultItems are the tracked entries of the workflow template repository.
var DefaultItems = []string{
	".claude",
	".constitution",
	"CLAUDE.md",
}

// DefaultMarker is the entry whose presence marks an existing installation.
const DefaultMarker = ".claude"

// Manifest is the fixed list of tracked top-level entries.
type Manifest struct {
	Items  []string
	Marker string
}

// Default returns the manifest of the workflow template repository.
func Default() Manifest {
	items := make([]string, len(DefaultItems))
	copy(items, DefaultItems)
	return Manifest{Items: items, Marker: DefaultMarker}
}

// Missing returns the tracked items that do not exist below dir.
func (m Manifest) Missing(fs afero.Fs, dir string) []string {
	var missing []string
	for _, item := range m.Items {
		if _, err := fs.Stat(filepath.Join(dir, filepath.FromSlash(item))); err != nil {
			missing = append(missing, item)
		}
	}
	return missing
}

// Installed reports whether the marker entry exists below dir.
func (m Manifest) Installed(fs afero.Fs, dir string) bool {
	if m.Marker == "" {
		return false
	}
	_, err := fs.Stat(filepath.Join(dir, filepath.FromSlash(m.Marker)))
	return err == nil
}

// Contains reports whether the slash separated relative path rel is one of
// the tracked items or lies below one of them.
func (m Manifest) Contains(rel string) bool {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "./")
	for _, item := range m.Items {
		if rel == item || strings.HasPrefix(rel, item+"/") {
			return true
		}
	}
	return false
}
