package server

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
)

// FSDriver serves a local directory. All access goes through an os.Root,
// so names cannot escape the directory.
type FSDriver struct {
	rootPath   string
	showHidden bool
}

// FSDriverOption is a functional option for configuring an FSDriver.
type FSDriverOption func(*FSDriver)

// WithShowHidden includes dot files in listings.
func WithShowHidden(show bool) FSDriverOption {
	return func(d *FSDriver) {
		d.showHidden = show
	}
}

// NewFSDriver creates a driver for rootPath. It returns an error if
// rootPath does not exist or is not a directory.
//
//	driver, err := server.NewFSDriver("/srv/files")
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewFSDriver(rootPath string, options ...FSDriverOption) (*FSDriver, error) {
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, fmt.Errorf("root path validation failed: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", rootPath)
	}

	rootPath, err = filepath.EvalSymlinks(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}

	d := &FSDriver{rootPath: rootPath}
	for _, opt := range options {
		opt(d)
	}
	return d, nil
}

// RootPath returns the canonical served directory.
func (d *FSDriver) RootPath() string {
	return d.rootPath
}

// ListDir returns the sorted names in the root directory.
func (d *FSDriver) ListDir() ([]string, error) {
	root, err := os.OpenRoot(d.rootPath)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	f, err := root.Open(".")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := f.ReadDir(-1)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !d.showHidden && len(name) > 0 && name[0] == '.' {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Open opens a regular file in the root directory.
func (d *FSDriver) Open(name string) (io.ReadCloser, error) {
	if name == "" || name != filepath.Base(name) {
		return nil, os.ErrNotExist
	}

	root, err := os.OpenRoot(d.rootPath)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	f, err := root.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, errors.New("not a regular file")
	}
	return f, nil
}
