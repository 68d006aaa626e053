package git

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/schaermu/wfsync/internal/manifest"
)

// tempPrefix names the temporary clone directories
const tempPrefix = "wfsync-"

// Checkout is a temporary local clone of the template repository
type Checkout struct {
	Root   string // temporary directory owning the clone
	Dir    string // working tree of the clone
	Commit string
}

// newCheckoutRoot creates a fresh temporary directory for a clone
func newCheckoutRoot() (string, error) {
	root, err := os.MkdirTemp("", tempPrefix)
	if err != nil {
		return "", &FetchError{Kind: KindClone, Msg: "failed to create temporary directory", Err: err}
	}
	return root, nil
}

// Subtree resolves subdir inside the working tree. It fails with
// KindMissingSubtree when the directory does not exist.
func (c *Checkout) Subtree(subdir string) (string, error) {
	dir := filepath.Join(c.Dir, filepath.FromSlash(subdir))
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", &FetchError{
			Kind: KindMissingSubtree,
			Msg:  fmt.Sprintf("data directory %q not found in repository; the repository structure may have changed", subdir),
			Err:  err,
		}
	}
	return dir, nil
}

// Verify checks that every tracked manifest item exists in dir
func Verify(fs afero.Fs, dir string, m manifest.Manifest) error {
	missing := m.Missing(fs, dir)
	if len(missing) == 0 {
		return nil
	}
	return &FetchError{
		Kind: KindMissingSubtree,
		Msg:  fmt.Sprintf("repository is missing expected entries: %s", strings.Join(missing, ", ")),
	}
}

// Cleanup removes the temporary clone. It is safe to call more than once
// and only ever removes directories created by this package.
func (c *Checkout) Cleanup() error {
	if c == nil || c.Root == "" {
		return nil
	}
	if !strings.HasPrefix(filepath.Base(c.Root), tempPrefix) {
		return fmt.Errorf("refusing to remove %s: not a wfsync checkout", c.Root)
	}
	return os.RemoveAll(c.Root)
}
