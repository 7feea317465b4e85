package timeline

import (
	"context"
	"database/sql"
	"fmt"
)

// Store persists tracks and placements. The session treats it as the source
// of truth read at startup and written through after every committed mutation.
type Store interface {
	LoadTracks(ctx context.Context) ([]Track, error)
	SaveTrack(ctx context.Context, position int, track Track) error
	DeleteTrack(ctx context.Context, id string) error

	LoadPlayhead(ctx context.Context, previewContext string) (float64, error)
	SavePlayhead(ctx context.Context, previewContext string, position float64) error
}

type SQLiteStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) LoadTracks(ctx context.Context) ([]Track, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, name, gain FROM tracks ORDER BY position ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		var t Track
		var kind string
		var gain sql.NullFloat64
		if err := rows.Scan(&t.ID, &kind, &t.Name, &gain); err != nil {
			return nil, err
		}
		t.Kind = TrackKind(kind)
		if gain.Valid {
			g := gain.Float64
			t.Gain = &g
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tracks {
		placements, err := s.loadPlacements(ctx, tracks[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load placements for track %s: %w", tracks[i].ID, err)
		}
		tracks[i].Placements = placements
	}
	return tracks, nil
}

func (s *SQLiteStore) loadPlacements(ctx context.Context, trackID string) ([]Placement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instance_id, source_clip_id, trim_in, trim_out
		FROM placements WHERE track_id = ? ORDER BY position ASC
	`, trackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var placements []Placement
	for rows.Next() {
		p := Placement{TrackID: trackID}
		if err := rows.Scan(&p.InstanceID, &p.SourceClipID, &p.TrimIn, &p.TrimOut); err != nil {
			return nil, err
		}
		placements = append(placements, p)
	}
	return placements, rows.Err()
}

// SaveTrack upserts the track row and replaces its placement list in one
// transaction.
func (s *SQLiteStore) SaveTrack(ctx context.Context, position int, t Track) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tracks (id, kind, name, gain, position) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			name = excluded.name,
			gain = excluded.gain,
			position = excluded.position
	`, t.ID, string(t.Kind), t.Name, nullFloat(t.Gain), position)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM placements WHERE track_id = ?", t.ID); err != nil {
		return err
	}

	for i, p := range t.Placements {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO placements (instance_id, track_id, source_clip_id, trim_in, trim_out, position)
			VALUES (?, ?, ?, ?, ?, ?)
		`, p.InstanceID, t.ID, p.SourceClipID, p.TrimIn, p.TrimOut, i)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) DeleteTrack(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM tracks WHERE id = ?", id)
	return err
}

func (s *SQLiteStore) LoadPlayhead(ctx context.Context, previewContext string) (float64, error) {
	var position float64
	err := s.db.QueryRowContext(ctx, "SELECT position FROM playhead WHERE context = ?", previewContext).Scan(&position)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return position, err
}

func (s *SQLiteStore) SavePlayhead(ctx context.Context, previewContext string, position float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO playhead (context, position, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(context) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at
	`, previewContext, position)
	return err
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
