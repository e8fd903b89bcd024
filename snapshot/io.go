package snapshot

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/fs"
)

// Write materializes a snapshot onto a filesystem rooted at the working
// copy. Existing element and relation files that are not part of the
// snapshot are removed, so the on-disk layout mirrors the snapshot exactly.
// The manifest and layout directories are the only paths touched; anything
// else in the working copy (version-control metadata included) is left
// alone.
func Write(fsys fs.Filesystem, snap Snapshot) error {
	for _, p := range snap.Paths() {
		dir := path.Dir(p)
		if dir != "." {
			if err := fsys.MkdirAll(dir, 0o755); err != nil {
				return WrapErrorf(err, "mkdir %q", dir)
			}
		}
		if err := fsys.WriteFile(p, snap[p], 0o644); err != nil {
			return WrapErrorf(err, "write %q", p)
		}
	}

	stale, err := stalePaths(fsys, snap)
	if err != nil {
		return err
	}
	for _, p := range stale {
		if err := fsys.Remove(p); err != nil {
			return WrapErrorf(err, "remove stale %q", p)
		}
	}

	return nil
}

// Read loads the snapshot currently present on a filesystem. Only the
// manifest and the element/relation layout are read.
func Read(fsys fs.Filesystem) (Snapshot, error) {
	snap := make(Snapshot)

	if ok, err := fsys.Exists(ManifestPath); err != nil {
		return nil, WrapErrorf(err, "stat %q", ManifestPath)
	} else if ok {
		data, err := fsys.ReadFile(ManifestPath)
		if err != nil {
			return nil, WrapErrorf(err, "read %q", ManifestPath)
		}
		snap[ManifestPath] = data
	}

	for _, dir := range []string{ElementsDir, RelationsDir} {
		ok, err := fsys.Exists(dir)
		if err != nil {
			return nil, WrapErrorf(err, "stat %q", dir)
		}
		if !ok {
			continue
		}

		err = fsys.Walk(dir, func(p string, info os.FileInfo, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if info.IsDir() {
				return nil
			}
			rel := normalize(p)
			if !isObjectPath(rel) {
				return nil
			}
			data, readErr := fsys.ReadFile(p)
			if readErr != nil {
				return readErr
			}
			snap[rel] = data
			return nil
		})
		if err != nil {
			return nil, WrapErrorf(err, "walk %q", dir)
		}
	}

	return snap, nil
}

// stalePaths lists object files present on disk but absent from the
// snapshot.
func stalePaths(fsys fs.Filesystem, snap Snapshot) ([]string, error) {
	var stale []string

	for _, dir := range []string{ElementsDir, RelationsDir} {
		ok, err := fsys.Exists(dir)
		if err != nil {
			return nil, WrapErrorf(err, "stat %q", dir)
		}
		if !ok {
			continue
		}

		err = fsys.Walk(dir, func(p string, info os.FileInfo, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if info.IsDir() {
				return nil
			}
			rel := normalize(p)
			if !isObjectPath(rel) {
				return nil
			}
			if _, ok := snap[rel]; !ok {
				stale = append(stale, p)
			}
			return nil
		})
		if err != nil {
			return nil, WrapErrorf(err, "walk %q", dir)
		}
	}

	return stale, nil
}

// normalize converts a filesystem walk path to the snapshot's
// forward-slash, root-relative form.
func normalize(p string) string {
	return strings.TrimPrefix(filepath.ToSlash(p), "./")
}
