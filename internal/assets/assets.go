// Package assets implements the content-addressed, immutable blob store
// described by the specification: assets are written to a sharded path on
// disk, keyed by the BLAKE3 hex digest of their bytes, and registered in the
// "assets" table only after the file is durably renamed into place. Insertion
// is idempotent: putting the same bytes twice is a no-op the second time.
package assets

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/evidencerec/core/internal/canon"
	"github.com/evidencerec/core/internal/errs"
)

// Asset is one row of the assets table.
type Asset struct {
	AssetID   string
	RelPath   string
	SizeBytes int64
	CreatedAt time.Time
}

// CrashPoint names a point at which Put can be made to abort for crash-safety
// tests. It is never set outside test code.
type CrashPoint int

const (
	// CrashPointNone means Put runs to completion normally.
	CrashPointNone CrashPoint = iota
	// CrashPointAfterWriteBeforeInsert aborts Put after the file has been
	// renamed into place but before the transaction inserting its row is
	// attempted. This reproduces scenario 4 in the specification: the file
	// is an orphan on disk, but no committed event can reference it yet.
	CrashPointAfterWriteBeforeInsert
)

// Store is the content-addressed asset store. Root is the directory assets
// are sharded under; DB is the shared relational store handle.
type Store struct {
	root string
	db   *sql.DB

	// crashAt, when non-zero, causes Put to return a synthetic error at the
	// named point instead of completing. Test-only.
	crashAt CrashPoint
}

// New constructs a Store rooted at root, using db for the assets table. root
// is created if it does not exist.
func New(root string, db *sql.DB) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errs.NewIO(err, "assets: create root %q", root)
	}
	return &Store{root: root, db: db}, nil
}

// WithCrashPoint returns a copy of s that aborts Put at the given point.
// Intended only for crash-safety tests.
func (s *Store) WithCrashPoint(cp CrashPoint) *Store {
	cpy := *s
	cpy.crashAt = cp
	return &cpy
}

// relPath returns the sharded relative path for assetID: <id[0:2]>/<id[2:4]>/<id>.
func relPath(assetID string) string {
	return filepath.Join(assetID[0:2], assetID[2:4], assetID)
}

// Put stores b under its BLAKE3 content hash and returns the asset id.
// It is idempotent, atomic with respect to crashes, and crash-safe: the file
// is fsynced and renamed into place before the registering row is inserted,
// so a row is never committed pointing at an absent file (I4), while a
// crash after the rename but before the insert can leave a file on disk with
// no assets row. gc.Run works from the assets table, so it neither reports
// nor removes such a file.
func (s *Store) Put(ctx context.Context, b []byte) (string, error) {
	assetID := canon.Hash(b)
	rel := relPath(assetID)
	finalPath := filepath.Join(s.root, rel)

	if _, err := os.Stat(finalPath); err != nil {
		if !os.IsNotExist(err) {
			return "", errs.NewIO(err, "assets: stat %q", finalPath)
		}
		if err := s.writeFile(finalPath, b); err != nil {
			return "", err
		}
	}

	if s.crashAt == CrashPointAfterWriteBeforeInsert {
		return "", errs.NewInternal("assets: injected crash after write, before insert")
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO assets (asset_id, rel_path, size_bytes, created_at)
		VALUES (?, ?, ?, ?)`,
		assetID, rel, int64(len(b)), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", errs.NewDB(err, "assets: insert row for %q", assetID)
	}

	return assetID, nil
}

// writeFile creates parent directories, writes b to a temp file, fsyncs it,
// and renames it into place. The rename is the atomicity boundary: readers
// either see no file or the complete file, never a partial one.
func (s *Store) writeFile(finalPath string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return errs.NewIO(err, "assets: mkdir for %q", finalPath)
	}

	tmpPath := finalPath + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errs.NewIO(err, "assets: create temp file %q", tmpPath)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return errs.NewIO(err, "assets: write temp file %q", tmpPath)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return errs.NewIO(err, "assets: fsync temp file %q", tmpPath)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return errs.NewIO(err, "assets: close temp file %q", tmpPath)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return errs.NewIO(err, "assets: rename %q to %q", tmpPath, finalPath)
	}
	return nil
}

// Stat returns the registered row for assetID. ok is false if no committed
// row exists (the caller should not distinguish "never written" from
// "written but not yet committed": both read as absent).
func (s *Store) Stat(ctx context.Context, assetID string) (Asset, bool, error) {
	var a Asset
	var createdAt string
	row := s.db.QueryRowContext(ctx, `
		SELECT asset_id, rel_path, size_bytes, created_at FROM assets WHERE asset_id = ?`, assetID)
	err := row.Scan(&a.AssetID, &a.RelPath, &a.SizeBytes, &createdAt)
	if err == sql.ErrNoRows {
		return Asset{}, false, nil
	}
	if err != nil {
		return Asset{}, false, errs.NewDB(err, "assets: stat %q", assetID)
	}
	a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Asset{}, false, errs.NewInternal("assets: parse created_at for %q: %v", assetID, err)
	}
	return a, true, nil
}

// Read reads the bytes of a committed asset from disk.
func (s *Store) Read(ctx context.Context, assetID string) ([]byte, error) {
	a, ok, err := s.Stat(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.NewNotFound("assets: %q is not a committed asset", assetID)
	}
	b, err := os.ReadFile(filepath.Join(s.root, a.RelPath))
	if err != nil {
		return nil, errs.NewIO(err, "assets: read %q", assetID)
	}
	return b, nil
}

// All returns every committed asset row, ordered by asset_id.
func (s *Store) All(ctx context.Context) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT asset_id, rel_path, size_bytes, created_at FROM assets ORDER BY asset_id`)
	if err != nil {
		return nil, errs.NewDB(err, "assets: list all")
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		var a Asset
		var createdAt string
		if err := rows.Scan(&a.AssetID, &a.RelPath, &a.SizeBytes, &createdAt); err != nil {
			return nil, errs.NewDB(err, "assets: scan row")
		}
		a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, errs.NewInternal("assets: parse created_at: %v", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes asset rows and their on-disk files. It is used only by GC
// and is not part of the public append/read path.
func (s *Store) Delete(ctx context.Context, assetIDs []string) error {
	for _, id := range assetIDs {
		a, ok, err := s.Stat(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, a.RelPath)); err != nil && !os.IsNotExist(err) {
			return errs.NewIO(err, "assets: delete file for %q", id)
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE asset_id = ?`, id); err != nil {
			return errs.NewDB(err, "assets: delete row for %q", id)
		}
	}
	return nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }
