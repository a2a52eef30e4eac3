// Package trash moves files into the user's trash instead of deleting them.
// On Linux and other XDG platforms it follows the freedesktop.org trash
// layout under $XDG_DATA_HOME/Trash; on macOS it uses ~/.Trash.
package trash

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Dir returns the trash directory for the current platform.
func Dir() string {
	if runtime.GOOS == "darwin" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".Trash")
		}
	}
	return filepath.Join(xdg.DataHome, "Trash")
}

// MoveToTrash moves path into the trash. When the trash lives on another
// filesystem the rename fails and the error is returned; nothing is deleted.
func MoveToTrash(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("cannot resolve absolute path for %q: %w", path, err)
	}
	if _, err := os.Lstat(abs); err != nil {
		return fmt.Errorf("cannot trash %q: %w", path, err)
	}
	return moveInto(Dir(), abs, runtime.GOOS != "darwin", time.Now())
}

func moveInto(trashDir, abs string, withInfo bool, now time.Time) error {
	filesDir := trashDir
	infoDir := ""
	if withInfo {
		filesDir = filepath.Join(trashDir, "files")
		infoDir = filepath.Join(trashDir, "info")
		if err := os.MkdirAll(infoDir, 0o700); err != nil {
			return fmt.Errorf("creating trash info dir: %w", err)
		}
	}
	if err := os.MkdirAll(filesDir, 0o700); err != nil {
		return fmt.Errorf("creating trash dir: %w", err)
	}

	name := uniqueName(filesDir, filepath.Base(abs))

	if withInfo {
		info := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
			escapePath(abs), now.Format("2006-01-02T15:04:05"))
		infoPath := filepath.Join(infoDir, name+".trashinfo")
		if err := os.WriteFile(infoPath, []byte(info), 0o600); err != nil {
			return fmt.Errorf("writing trash info: %w", err)
		}
		if err := os.Rename(abs, filepath.Join(filesDir, name)); err != nil {
			_ = os.Remove(infoPath)
			return fmt.Errorf("moving %q to trash: %w", abs, err)
		}
		return nil
	}

	if err := os.Rename(abs, filepath.Join(filesDir, name)); err != nil {
		return fmt.Errorf("moving %q to trash: %w", abs, err)
	}
	return nil
}

func uniqueName(dir, base string) string {
	name := base
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 2; ; i++ {
		if _, err := os.Lstat(filepath.Join(dir, name)); os.IsNotExist(err) {
			return name
		}
		name = stem + "." + strconv.Itoa(i) + ext
	}
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}
