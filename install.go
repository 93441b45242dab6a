package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
)

// Receipt records a successful installation.
type Receipt struct {
	Name              string    `yaml:"name"`
	Version           string    `yaml:"version"`
	URL               string    `yaml:"url"`
	SHA256            string    `yaml:"sha256"`
	Prefix            string    `yaml:"prefix"`
	RunID             string    `yaml:"runId"`
	InstalledAt       time.Time `yaml:"installedAt"`
	BuildDependencies []string  `yaml:"buildDependencies,omitempty"`
}

func receiptPath(dir string, name string) string {
	return filepath.Join(dir, name+".yaml")
}

// WriteReceipt stores r in dir, replacing a previous receipt of the same
// formula.
func WriteReceipt(dir string, r Receipt) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return replaceFile(bytes.NewReader(data), receiptPath(dir, r.Name), 0o644)
}

// ReadReceipt loads the receipt of the named formula from dir.
func ReadReceipt(dir string, name string) (Receipt, error) {
	data, err := os.ReadFile(receiptPath(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return Receipt{}, newError(ErrUsage, "%s is not installed", name)
		}
		return Receipt{}, err
	}
	var r Receipt
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Receipt{}, fmt.Errorf("decode receipt: %w", err)
	}
	return r, nil
}

// replaceFile writes the content of src to dst with the given permissions.
// The previous dst, if any, is kept as `.dst.old` until the new file is in
// place.
func replaceFile(src io.Reader, dst string, perm os.FileMode) error {
	dstDir := filepath.Dir(dst)
	dstName := filepath.Base(dst)

	// write src to new temporary dst
	dstNew := filepath.Join(dstDir, fmt.Sprintf(".%s.new", dstName))
	ofile, err := os.OpenFile(dstNew, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() {
		_ = ofile.Close()
	}()

	if _, err := io.Copy(ofile, src); err != nil {
		return err
	}

	// close ofile here, since windows wouldn't let us move the new file
	if err := ofile.Close(); err != nil {
		return err
	}

	dstOld := filepath.Join(dstDir, fmt.Sprintf(".%s.old", dstName))
	if _, err := os.Stat(dst); err == nil { // file exists
		// delete existing old file (for windows' sake)
		_ = os.Remove(dstOld)

		if err := os.Rename(dst, dstOld); err != nil {
			return err
		}
	}

	if err := os.Rename(dstNew, dst); err != nil {
		return err
	}
	_ = os.Remove(dstOld)

	return nil
}
