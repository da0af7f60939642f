package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// AddFile registers a media path in the catalog. Registering a path twice
// returns the existing row.
func (s *Store) AddFile(ctx context.Context, path, label string) (*MediaFile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("media path is required")
	}
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO media_files (path, label, created_at) VALUES (?, ?, ?)
         ON CONFLICT(path) DO NOTHING`,
		path,
		nullableString(strings.TrimSpace(label)),
		timestamp(time.Now()),
	); err != nil {
		return nil, fmt.Errorf("insert media file: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM media_files WHERE path = ?`, path)
	file, err := scanFile(row)
	if err != nil {
		return nil, fmt.Errorf("load media file: %w", err)
	}
	return file, nil
}

// GetFile fetches a catalog entry by identifier. A missing id returns (nil, nil).
func (s *Store) GetFile(ctx context.Context, id int64) (*MediaFile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM media_files WHERE id = ?`, id)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get media file: %w", err)
	}
	return file, nil
}

// ListFiles returns the catalog ordered by id.
func (s *Store) ListFiles(ctx context.Context) ([]*MediaFile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM media_files ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list media files: %w", err)
	}
	defer rows.Close()

	var files []*MediaFile
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// Resolve maps a catalog id to its filesystem path.
func (s *Store) Resolve(ctx context.Context, id int64) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx, `SELECT path FROM media_files WHERE id = ?`, id).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: id %d", ErrFileNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("resolve media file: %w", err)
	}
	return path, nil
}

// SaveProbe caches probe metadata on the catalog row.
func (s *Store) SaveProbe(ctx context.Context, id int64, data ProbeData) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media_files
         SET duration_seconds = ?, width = ?, height = ?, fps = ?, has_audio = ?, probe_json = ?, probed_at = ?
         WHERE id = ?`,
		data.DurationSeconds,
		data.Width,
		data.Height,
		data.FPS,
		boolToInt(data.HasAudio),
		nullableString(data.RawJSON),
		timestamp(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("save probe: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: id %d", ErrFileNotFound, id)
	}
	return nil
}

// InvalidateProbe clears cached probe metadata so the next probe re-runs ffprobe.
func (s *Store) InvalidateProbe(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media_files
         SET duration_seconds = NULL, width = NULL, height = NULL, fps = NULL, has_audio = NULL,
             probe_json = NULL, probed_at = NULL
         WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("invalidate probe: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: id %d", ErrFileNotFound, id)
	}
	return nil
}
