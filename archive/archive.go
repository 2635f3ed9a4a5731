// Package archive relocates processed source files into a date-partitioned
// tree under the archive root.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pithecene-io/hopper/iox"
)

// Move relocates sourcePath to {root}/{YYYY}/{MM}/{DD}/{basename} and
// returns the destination path.
//
// The date components come from the file's last-modified timestamp, not
// the current time, so the archive layout stays stable if a file is ever
// replayed. Intermediate directories are created on demand.
func Move(sourcePath, root string) (string, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", sourcePath, err)
	}

	mtime := info.ModTime()
	dir := filepath.Join(root, mtime.Format("2006"), mtime.Format("01"), mtime.Format("02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive directory %s: %w", dir, err)
	}

	dest := filepath.Join(dir, filepath.Base(sourcePath))
	if err := os.Rename(sourcePath, dest); err != nil {
		// Rename fails across filesystem boundaries (EXDEV); fall back
		// to copy+remove so archive roots on other mounts still work.
		if copyErr := copyFile(sourcePath, dest); copyErr != nil {
			return "", fmt.Errorf("archive %s: %w", sourcePath, err)
		}
		if err := os.Remove(sourcePath); err != nil {
			return "", fmt.Errorf("remove source after copy %s: %w", sourcePath, err)
		}
	}

	return dest, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(in)

	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		iox.DiscardClose(out)
		return err
	}
	return out.Close()
}
