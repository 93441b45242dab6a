package main

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
)

type LockedFormula struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	URL     string `yaml:"url"`
	SHA256  string `yaml:"sha256"`
	Size    int64  `yaml:"size"`
}

type Lock struct {
	Generated time.Time       `yaml:"generated"`
	Digest    string          `yaml:"digest"`
	Formulae  []LockedFormula `yaml:"formulae"`
}

func readLockFile(name string) (Lock, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return Lock{}, err
	}
	var lock Lock
	if err := yaml.Unmarshal(data, &lock); err != nil {
		return Lock{}, err
	}
	return lock, nil
}

func writeLockFile(name string, lock Lock) error {
	data, err := yaml.Marshal(lock)
	if err != nil {
		return err
	}
	return replaceFile(bytes.NewReader(data), name, 0o644)
}

func replaceFileExt(path string, ext string) string {
	oldExt := filepath.Ext(path)
	return path[:len(path)-len(oldExt)] + ext
}
