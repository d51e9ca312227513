package replaylib

import (
	"context"
	"database/sql"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// IndexEntry is one downloaded replay recorded in the sqlite index.
type IndexEntry struct {
	ID         string
	Identifier string
	Profile    string
	Matchup    string
	Path       string
	SavedAt    int64
}

// Index is the sqlite-backed dedup index for the replay library.
type Index struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewIndex(db *sql.DB, logger zerolog.Logger) *Index {
	return &Index{
		db:     db,
		logger: logger.With().Str("component", "replay_index").Logger(),
	}
}

// Has reports whether a replay with this identifier was already saved.
func (i *Index) Has(ctx context.Context, identifier string) (bool, error) {
	var count int
	err := i.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM replay_index WHERE identifier = ?`, identifier,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query replay index: %w", err)
	}
	return count > 0, nil
}

// Record inserts a saved replay, generating its row id.
func (i *Index) Record(ctx context.Context, entry IndexEntry) error {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("generate replay id: %w", err)
	}

	_, err = i.db.ExecContext(ctx,
		`INSERT INTO replay_index (id, identifier, profile, matchup, path, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, entry.Identifier, entry.Profile, entry.Matchup, entry.Path, entry.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("insert replay index entry: %w", err)
	}

	i.logger.Debug().
		Str("identifier", entry.Identifier).
		Str("path", entry.Path).
		Msg("replay indexed")
	return nil
}

// RecentPaths returns saved replay paths, newest first.
func (i *Index) RecentPaths(ctx context.Context, limit int) ([]string, error) {
	rows, err := i.db.QueryContext(ctx,
		`SELECT path FROM replay_index ORDER BY saved_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent replays: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan replay path: %w", err)
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replay paths: %w", err)
	}
	return paths, nil
}
