// Package archive extracts chart archives (.zip, .rar, .tar.xz) into staging
// folders and installs them into a library.
package archive

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/nwaples/rardecode/v2"
	"github.com/ulikunitz/xz"
	"golang.org/x/text/encoding/japanese"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

// Format is an archive container format.
type Format string

// Supported formats.
const (
	FormatZip   Format = "zip"
	FormatRar   Format = "rar"
	FormatTarXz Format = "tar.xz"
)

var suffixes = []struct {
	suffix string
	format Format
}{
	{".tar.xz", FormatTarXz},
	{".txz", FormatTarXz},
	{".zip", FormatZip},
	{".rar", FormatRar},
}

// ErrUnsafePath is returned for an entry that would land outside the
// extraction directory.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// Detect returns the format of an archive file name.
func Detect(name string) (Format, bool) {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format, true
		}
	}
	return "", false
}

// IsArchive reports whether name has a supported archive extension.
func IsArchive(name string) bool {
	_, ok := Detect(name)
	return ok
}

// Stem returns name without its archive extension.
func Stem(name string) string {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return name[:len(name)-len(s.suffix)]
		}
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Entry is one member of an archive.
type Entry struct {
	Name string
	Size int64
	Dir  bool
}

// visitFunc receives each member in archive order. body is only valid during
// the call.
type visitFunc func(e Entry, body io.Reader) error

// List returns the members of the archive at path with decoded names.
func List(p string) ([]Entry, error) {
	var out []Entry
	err := walk(p, func(e Entry, _ io.Reader) error {
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, types.E(types.KindExternal, "list", p, err)
	}
	return out, nil
}

// TopDir returns the single top-level directory every file of entries lives
// under, or "" when files sit at the top level or under different roots.
func TopDir(entries []Entry) string {
	top := ""
	for _, e := range entries {
		first, rest, nested := strings.Cut(e.Name, "/")
		if e.Dir && !nested {
			continue
		}
		if !nested || rest == "" {
			if e.Dir {
				continue
			}
			return ""
		}
		if first == "" {
			return ""
		}
		if top == "" {
			top = first
		} else if top != first {
			return ""
		}
	}
	return top
}

// Extract unpacks the archive at p into destDir. A top-level directory shared
// by every file is stripped so the files land directly in destDir. Existing
// files are never overwritten: a clashing entry is written under a numbered
// name. It returns the number of files written.
func Extract(p, destDir string) (int, error) {
	entries, err := List(p)
	if err != nil {
		return 0, err
	}
	top := TopDir(entries)

	written := 0
	err = walk(p, func(e Entry, body io.Reader) error {
		if e.Dir {
			return nil
		}
		rel := e.Name
		if top != "" {
			rel = strings.TrimPrefix(rel, top+"/")
		}
		target, err := safeJoin(destDir, rel)
		if err != nil {
			return err
		}
		if err := writeEntry(target, body); err != nil {
			return err
		}
		written++
		return nil
	})
	if err != nil {
		return written, types.E(types.KindExternal, "extract", p, err)
	}
	return written, nil
}

func walk(p string, fn visitFunc) error {
	format, ok := Detect(p)
	if !ok {
		return fmt.Errorf("unsupported archive %s", filepath.Base(p))
	}
	switch format {
	case FormatZip:
		return walkZip(p, fn)
	case FormatRar:
		return walkRar(p, fn)
	default:
		return walkTarXz(p, fn)
	}
}

func walkZip(p string, fn visitFunc) error {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, f := range zr.File {
		e := Entry{
			Name: decodeName(f.Name),
			Size: int64(f.UncompressedSize64),
			Dir:  f.FileInfo().IsDir(),
		}
		if e.Dir {
			if err := fn(e, nil); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening %s: %w", e.Name, err)
		}
		err = fn(e, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func walkRar(p string, fn visitFunc) error {
	rr, err := rardecode.OpenReader(p)
	if err != nil {
		return err
	}
	defer rr.Close()

	for {
		h, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		e := Entry{Name: decodeName(h.Name), Size: h.UnPackedSize, Dir: h.IsDir}
		if err := fn(e, rr); err != nil {
			return err
		}
	}
}

func walkTarXz(p string, fn visitFunc) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		return err
	}
	tr := tar.NewReader(xr)
	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch h.Typeflag {
		case tar.TypeDir:
			if err := fn(Entry{Name: decodeName(h.Name), Dir: true}, nil); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := fn(Entry{Name: decodeName(h.Name), Size: h.Size}, tr); err != nil {
				return err
			}
		}
	}
}

// decodeName normalizes an entry name to forward slashes, decoding it as
// Shift-JIS when it is not valid UTF-8.
func decodeName(name string) string {
	if !utf8.ValidString(name) {
		if s, err := japanese.ShiftJIS.NewDecoder().String(name); err == nil {
			name = s
		}
	}
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	return strings.TrimSuffix(name, "/")
}

func safeJoin(dir, name string) (string, error) {
	if name == "" || path.IsAbs(name) || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
		}
	}
	return filepath.Join(dir, filepath.FromSlash(path.Clean(name))), nil
}

func writeEntry(target string, body io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := createFree(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", target, err)
	}
	return out.Close()
}

// createFree creates target, or the first free "stem~N.ext" beside it.
func createFree(target string) (*os.File, error) {
	ext := filepath.Ext(target)
	stem := strings.TrimSuffix(target, ext)
	candidate := target
	for i := 1; ; i++ {
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrExist) || i > 10000 {
			return nil, err
		}
		candidate = fmt.Sprintf("%s~%d%s", stem, i, ext)
	}
}
