package main

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// ExtractArchive unpacks the archive into dst and returns the source root.
// When the archive holds a single top-level directory, that directory is the
// source root.
func ExtractArchive(archive string, dst string) (string, error) {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	var err error
	switch name := strings.ToLower(archive); {
	case strings.HasSuffix(name, ".zip"):
		err = extractZip(archive, dst)
	default:
		err = extractTarFile(archive, dst)
	}
	if err != nil {
		return "", err
	}

	return sourceRoot(dst)
}

func extractTarFile(archive string, dst string) error {
	in, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	r, closer, err := newDecompressor(in, archive)
	if err != nil {
		return err
	}
	defer closer()

	return extractTar(tar.NewReader(r), dst)
}

func newDecompressor(in io.Reader, name string) (io.Reader, func(), error) {
	noop := func() {}
	name = strings.ToLower(name)
	switch {
	case strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".tgz"):
		r, err := gzip.NewReader(in)
		if err != nil {
			return nil, noop, err
		}
		return r, func() { _ = r.Close() }, nil
	case strings.HasSuffix(name, ".tar.xz") || strings.HasSuffix(name, ".txz"):
		r, err := xz.NewReader(in)
		if err != nil {
			return nil, noop, err
		}
		return r, noop, nil
	case strings.HasSuffix(name, ".tar.zst") || strings.HasSuffix(name, ".tzst"):
		r, err := zstd.NewReader(in)
		if err != nil {
			return nil, noop, err
		}
		return r, r.Close, nil
	case strings.HasSuffix(name, ".tar.bz2") || strings.HasSuffix(name, ".tbz2"):
		return bzip2.NewReader(in), noop, nil
	case strings.HasSuffix(name, ".tar"):
		return in, noop, nil
	}
	return nil, noop, fmt.Errorf("unsupported archive: %s", filepath.Base(name))
}

func extractTar(tr *tar.Reader, dst string) error {
	root, err := filepath.EvalSymlinks(dst)
	if err != nil {
		return err
	}
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := safeJoin(root, header.Name)
		if err != nil {
			return err
		}
		parent, err := resolveInside(root, filepath.Dir(target), header.Name)
		if err != nil {
			return err
		}

		mode := os.FileMode(header.Mode).Perm()
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, mode|0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, mode); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if filepath.IsAbs(header.Linkname) {
				return fmt.Errorf("absolute symlink in archive: %s -> %s", header.Name, header.Linkname)
			}
			if _, err := resolveInside(root, filepath.Join(parent, header.Linkname), header.Name); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}
		case tar.TypeLink:
			source, err := safeJoin(root, header.Linkname)
			if err != nil {
				return err
			}
			if _, err := resolveInside(root, filepath.Dir(source), header.Name); err != nil {
				return err
			}
			if err := os.Link(source, target); err != nil {
				return err
			}
		default:
			// pax headers, devices and fifos carry nothing a build needs
		}
	}
}

func extractZip(archive string, dst string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer func() {
		_ = zr.Close()
	}()

	root, err := filepath.EvalSymlinks(dst)
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		target, err := safeJoin(root, f.Name)
		if err != nil {
			return err
		}
		if _, err := resolveInside(root, filepath.Dir(target), f.Name); err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeFile(target, rc, f.Mode().Perm())
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	// replace whatever is there, a symlink must not be written through
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode|0o600)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()
	if _, err := io.Copy(out, r); err != nil {
		return err
	}
	return out.Close()
}

// safeJoin joins name to dir and rejects entries that would land outside of
// dir.
func safeJoin(dir string, name string) (string, error) {
	target := filepath.Join(dir, name)
	if !isWithin(dir, target) {
		return "", fmt.Errorf("illegal path in archive: %s", name)
	}
	return target, nil
}

// resolveInside resolves the symlinks of the existing part of path and
// fails unless the result stays below root. Links extracted earlier are
// followed, so a chain of relative links cannot lead out of root.
func resolveInside(root string, path string, name string) (string, error) {
	dir := path
	var rest []string
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			full := filepath.Join(append([]string{resolved}, rest...)...)
			if !isWithin(root, full) {
				return "", fmt.Errorf("illegal path in archive: %s", name)
			}
			return full, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", err
		}
		rest = append([]string{filepath.Base(dir)}, rest...)
		dir = parent
	}
}

func isWithin(root string, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func sourceRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}
