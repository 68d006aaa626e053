package reconcile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// maxLinkHops bounds symlink resolution of a copy destination
const maxLinkHops = 40

// copyFile replaces dst with the content, permissions and modification time
// of src. Bytes are written to a temp file beside dst and renamed into place.
// When dst is a symlink the file it points to is replaced and the link kept.
func (e *Engine) copyFile(src, dst string) error {
	dst, err := e.resolveLink(dst)
	if err != nil {
		return err
	}

	// Ensure parent directory exists
	if err := e.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	srcFile, err := e.fs.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	tmpFile, err := afero.TempFile(e.fs, filepath.Dir(dst), ".wfsync-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = e.fs.Remove(tmpPath)
	}() // cleanup on error

	if _, err := io.Copy(tmpFile, srcFile); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := e.fs.Chmod(tmpPath, srcInfo.Mode().Perm()); err != nil {
		return err
	}
	if err := e.fs.Rename(tmpPath, dst); err != nil {
		return err
	}

	mtime := srcInfo.ModTime()
	return e.fs.Chtimes(dst, mtime, mtime)
}

// resolveLink follows symlinks at path and returns the final destination.
// Paths that do not exist, or filesystems without symlinks, resolve to
// themselves.
func (e *Engine) resolveLink(path string) (string, error) {
	lstater, ok := e.fs.(afero.Lstater)
	if !ok {
		return path, nil
	}
	reader, ok := e.fs.(afero.LinkReader)
	if !ok {
		return path, nil
	}

	for i := 0; i < maxLinkHops; i++ {
		info, lstatCalled, err := lstater.LstatIfPossible(path)
		if err != nil || !lstatCalled || info.Mode()&os.ModeSymlink == 0 {
			return path, nil
		}
		link, err := reader.ReadlinkIfPossible(path)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(link) {
			link = filepath.Join(filepath.Dir(path), link)
		}
		path = link
	}
	return "", fmt.Errorf("too many levels of symbolic links: %s", path)
}
