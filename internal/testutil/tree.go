package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// FileState captures what a test cares about for a single file.
type FileState struct {
	Content string
	Mode    os.FileMode
	ModTime time.Time
}

// WriteTree creates files below root. Keys are slash separated relative
// paths, values are file contents.
func WriteTree(t testing.TB, fs afero.Fs, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir for %s: %v", rel, err)
		}
		if err := afero.WriteFile(fs, path, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

// ReadTree returns the content of every regular file below root keyed by
// slash separated relative path. A missing root yields an empty map.
func ReadTree(t testing.TB, fs afero.Fs, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for rel, st := range Snapshot(t, fs, root) {
		out[rel] = st.Content
	}
	return out
}

// Snapshot records content, mode and modification time of every regular
// file below root.
func Snapshot(t testing.TB, fs afero.Fs, root string) map[string]FileState {
	t.Helper()
	out := make(map[string]FileState)
	if _, err := fs.Stat(root); os.IsNotExist(err) {
		return out
	}

	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = FileState{
			Content: string(data),
			Mode:    info.Mode(),
			ModTime: info.ModTime(),
		}
		return nil
	})
	if err != nil {
		t.Fatalf("snapshot %s: %v", root, err)
	}
	return out
}

// Dirs returns the sorted relative paths of every directory below root,
// root itself excluded.
func Dirs(t testing.TB, fs afero.Fs, root string) []string {
	t.Helper()
	dirs := make([]string, 0)
	if _, err := fs.Stat(root); os.IsNotExist(err) {
		return dirs
	}

	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && path != root {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			dirs = append(dirs, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("list dirs %s: %v", root, err)
	}
	sort.Strings(dirs)
	return dirs
}
