// Package dispatch finds the media files under a root and fans the work out
// to a fixed pool of workers.
package dispatch

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/tendant/synothumb/internal/config"
)

// Discover returns every regular file, or symlink to one, under root whose
// lower-cased extension is in exts, in lexicographic order.
//
// Directories named cfg.SidecarDir are pruned at any depth, so generated
// artifacts are never picked up as sources. A root that itself lies inside
// one yields nothing. Names in cfg.IgnoredNames are skipped. Unreadable
// subdirectories are skipped; an unreadable root is an error.
func Discover(root string, exts map[string]bool, cfg config.Config) ([]string, error) {
	root = filepath.Clean(root)
	if slices.Contains(strings.Split(filepath.ToSlash(root), "/"), cfg.SidecarDir) {
		if _, err := os.Stat(root); err != nil {
			return nil, err
		}
		return nil, nil
	}

	files := make([]string, 0, 128)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if name == cfg.SidecarDir {
				return filepath.SkipDir
			}
			return nil
		}

		if cfg.IgnoredNames[name] || !isRegular(path, d) {
			return nil
		}
		if !exts[strings.ToLower(filepath.Ext(name))] {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// isRegular follows symlinks, so a link to a media file counts as one.
// Links to directories are not descended into.
func isRegular(path string, d fs.DirEntry) bool {
	if d.Type()&fs.ModeSymlink == 0 {
		return d.Type().IsRegular()
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
