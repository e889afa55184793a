// Package sidecar derives where a source file's derivative artifacts live.
//
// A sidecar directory is <parent>/<dirName>/<file name>, so two files with
// the same name in different directories never share one.
package sidecar

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Layout is the set of paths owned by one source file.
type Layout struct {
	Source  string
	Dir     string
	Marker  string
	Outputs []string
}

// Locate builds the layout for sourcePath. It only manipulates strings.
// marker must be one of names.
func Locate(sourcePath, dirName, marker string, names []string) Layout {
	parent, base := filepath.Split(sourcePath)
	dir := filepath.Join(parent, dirName, base)

	outputs := make([]string, len(names))
	for i, n := range names {
		outputs[i] = filepath.Join(dir, n)
	}

	return Layout{
		Source:  sourcePath,
		Dir:     dir,
		Marker:  filepath.Join(dir, marker),
		Outputs: outputs,
	}
}

// Path returns the full path of a named output inside the sidecar.
func (l Layout) Path(name string) string {
	return filepath.Join(l.Dir, name)
}

// Done reports whether the completion marker is already on disk.
func (l Layout) Done() bool {
	info, err := os.Stat(l.Marker)
	return err == nil && info.Mode().IsRegular()
}

// Ensure creates the sidecar directory. An existing directory is fine; a
// concurrent creator winning the race is fine too.
func (l Layout) Ensure() error {
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			if info, statErr := os.Stat(l.Dir); statErr == nil && info.IsDir() {
				return nil
			}
		}
		return fmt.Errorf("mkdir %s: %w", l.Dir, err)
	}
	return nil
}
