package export

import (
	"os"
	"path/filepath"

	"github.com/evidencerec/core/internal/errs"
)

// atomicWrite writes b to path via a temp-file-then-rename, the same crash
// safety idiom assets.Store uses for blob writes.
func atomicWrite(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.NewIO(err, "export: mkdir for %q", path)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errs.NewIO(err, "export: create temp file %q", tmp)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmp)
		return errs.NewIO(err, "export: write temp file %q", tmp)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errs.NewIO(err, "export: fsync temp file %q", tmp)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errs.NewIO(err, "export: close temp file %q", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.NewIO(err, "export: rename %q to %q", tmp, path)
	}
	return nil
}

// listRelFiles walks dir recursively and returns every regular file's path
// relative to dir, using forward slashes.
func listRelFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errs.NewIO(err, "export: walk %q", dir)
	}
	return out, nil
}
