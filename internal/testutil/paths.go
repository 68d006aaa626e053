// Package testutil holds fixtures shared by the package and integration tests.
package testutil

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
)

// FindProjectRoot returns the module root of the calling test, the first
// directory above its source file that holds go.mod.
func FindProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(1)
	if !ok {
		return "", fmt.Errorf("testutil: caller information unavailable")
	}
	return findUp(filepath.Dir(filename), "go.mod")
}

// findUp returns the first directory at or above dir that contains name.
func findUp(dir, name string) (string, error) {
	for start := dir; ; {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found at or above %s", name, start)
		}
		dir = parent
	}
}

// BuildBinary compiles ./cmd/<name> into a temporary directory and returns
// the path of the executable.
func BuildBinary(t testing.TB, name string) string {
	t.Helper()

	root, err := FindProjectRoot()
	if err != nil {
		t.Fatalf("find project root: %v", err)
	}

	bin := filepath.Join(t.TempDir(), name)
	if runtime.GOOS == "windows" {
		bin += ".exe"
	}

	cmd := exec.Command("go", "build", "-o", bin, "./cmd/"+name)
	cmd.Dir = root
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("go build ./cmd/%s: %v\n%s", name, err, out)
	}
	return bin
}
