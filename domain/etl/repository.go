package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/kinohub/moviesearch/pkg/logger"
)

// Repository reads the normalised film catalogue from the content schema.
// Every change query binds the watermark twice so a nil watermark selects
// everything, orders by updated_at ASC, and reports the greatest timestamp it
// saw. Queries never retry internally; transient failures bubble up to the
// worker loop.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a reader over db, which may be a pool-backed *bun.DB
// or a single pinned bun.Conn.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("etl.source")),
	}
}

type changedIDRow struct {
	ID        uuid.UUID `bun:"id"`
	UpdatedAt time.Time `bun:"updated_at"`
}

type assembledRow struct {
	ID          uuid.UUID       `bun:"id"`
	Title       string          `bun:"title"`
	Rating      *float64        `bun:"rating"`
	Description *string         `bun:"description"`
	UpdatedAt   time.Time       `bun:"updated_at"`
	Genres      json.RawMessage `bun:"genres"`
	Persons     json.RawMessage `bun:"persons"`
}

// ChangedGenres returns genre rows with updated_at strictly after since,
// oldest first, plus the greatest updated_at seen (since itself when no rows).
func (r *Repository) ChangedGenres(ctx context.Context, since *time.Time) ([]GenreRow, *time.Time, error) {
	var rows []GenreRow
	_, err := r.db.NewRaw(`
		SELECT g.id, g.name, g.updated_at
		FROM content.genre g
		WHERE (? IS NULL OR g.updated_at > ?)
		ORDER BY g.updated_at ASC
	`, since, since).Exec(ctx, &rows)
	if err != nil {
		return nil, nil, markSourceError(fmt.Errorf("fetch changed genres: %w", err))
	}

	latest := since
	for _, row := range rows {
		latest = laterOf(latest, row.UpdatedAt)
	}
	r.log.Debug("fetched changed genres", slog.Int("count", len(rows)), watermarkAttr(latest))
	return rows, latest, nil
}

// ChangedPersons returns person rows with updated_at strictly after since,
// oldest first, plus the greatest updated_at seen.
func (r *Repository) ChangedPersons(ctx context.Context, since *time.Time) ([]PersonRow, *time.Time, error) {
	var rows []PersonRow
	_, err := r.db.NewRaw(`
		SELECT p.id, p.full_name, p.updated_at
		FROM content.person p
		WHERE (? IS NULL OR p.updated_at > ?)
		ORDER BY p.updated_at ASC
	`, since, since).Exec(ctx, &rows)
	if err != nil {
		return nil, nil, markSourceError(fmt.Errorf("fetch changed persons: %w", err))
	}

	latest := since
	for _, row := range rows {
		latest = laterOf(latest, row.UpdatedAt)
	}
	r.log.Debug("fetched changed persons", slog.Int("count", len(rows)), watermarkAttr(latest))
	return rows, latest, nil
}

// ChangedFilmWorkIDs returns ids of film_work rows touched after since.
func (r *Repository) ChangedFilmWorkIDs(ctx context.Context, since *time.Time) ([]uuid.UUID, *time.Time, error) {
	return r.changedIDs(ctx, "film_work", `
		SELECT fw.id, fw.updated_at
		FROM content.film_work fw
		WHERE (? IS NULL OR fw.updated_at > ?)
		ORDER BY fw.updated_at ASC
	`, since)
}

// FilmIDsByChangedGenres returns ids of films linked to genres touched after
// since. The reported timestamp tracks genre.updated_at, not the film's.
func (r *Repository) FilmIDsByChangedGenres(ctx context.Context, since *time.Time) ([]uuid.UUID, *time.Time, error) {
	return r.changedIDs(ctx, "genre", `
		SELECT gfw.film_work_id AS id, g.updated_at
		FROM content.genre g
		JOIN content.genre_film_work gfw ON g.id = gfw.genre_id
		WHERE (? IS NULL OR g.updated_at > ?)
		ORDER BY g.updated_at ASC
	`, since)
}

// FilmIDsByChangedPersons returns ids of films linked to persons touched
// after since.
func (r *Repository) FilmIDsByChangedPersons(ctx context.Context, since *time.Time) ([]uuid.UUID, *time.Time, error) {
	return r.changedIDs(ctx, "person", `
		SELECT pfw.film_work_id AS id, p.updated_at
		FROM content.person p
		JOIN content.person_film_work pfw ON p.id = pfw.person_id
		WHERE (? IS NULL OR p.updated_at > ?)
		ORDER BY p.updated_at ASC
	`, since)
}

// FilmIDsByChangedGenreFilmWork returns ids of films whose genre links were
// touched after since.
func (r *Repository) FilmIDsByChangedGenreFilmWork(ctx context.Context, since *time.Time) ([]uuid.UUID, *time.Time, error) {
	return r.changedIDs(ctx, "genre_film_work", `
		SELECT gfw.film_work_id AS id, gfw.updated_at
		FROM content.genre_film_work gfw
		WHERE (? IS NULL OR gfw.updated_at > ?)
		ORDER BY gfw.updated_at ASC
	`, since)
}

// FilmIDsByChangedPersonFilmWork returns ids of films whose person links were
// touched after since.
func (r *Repository) FilmIDsByChangedPersonFilmWork(ctx context.Context, since *time.Time) ([]uuid.UUID, *time.Time, error) {
	return r.changedIDs(ctx, "person_film_work", `
		SELECT pfw.film_work_id AS id, pfw.updated_at
		FROM content.person_film_work pfw
		WHERE (? IS NULL OR pfw.updated_at > ?)
		ORDER BY pfw.updated_at ASC
	`, since)
}

func (r *Repository) changedIDs(ctx context.Context, table, query string, since *time.Time) ([]uuid.UUID, *time.Time, error) {
	var rows []changedIDRow
	if _, err := r.db.NewRaw(query, since, since).Exec(ctx, &rows); err != nil {
		return nil, nil, markSourceError(fmt.Errorf("fetch film ids changed via %s: %w", table, err))
	}

	latest := since
	ids := make([]uuid.UUID, 0, len(rows))
	seen := make(map[uuid.UUID]struct{}, len(rows))
	for _, row := range rows {
		latest = laterOf(latest, row.UpdatedAt)
		if _, ok := seen[row.ID]; ok {
			continue
		}
		seen[row.ID] = struct{}{}
		ids = append(ids, row.ID)
	}

	r.log.Debug("fetched changed film ids",
		slog.String("via", table),
		slog.Int("count", len(ids)),
		watermarkAttr(latest))
	return ids, latest, nil
}

// AssembleFilmWorks returns one denormalised row per film id, with genres and
// persons aggregated source-side. Duplicate join rows are eliminated in SQL;
// the aggregate order is whatever DISTINCT produces and carries no meaning.
func (r *Repository) AssembleFilmWorks(ctx context.Context, ids []uuid.UUID) ([]FilmWorkRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []assembledRow
	_, err := r.db.NewRaw(`
		SELECT fw.id,
		       fw.title,
		       fw.rating,
		       fw.description,
		       fw.updated_at,
		       COALESCE(
		               jsonb_agg(
		                   DISTINCT jsonb_build_object('id', g.id, 'name', g.name)
		               ) FILTER (WHERE g.name IS NOT NULL),
		               '[]'::jsonb
		       ) AS genres,
		       COALESCE(
		               jsonb_agg(
		                   DISTINCT jsonb_build_object('id', p.id, 'full_name', p.full_name, 'role', pfw.role)
		               ) FILTER (WHERE p.full_name IS NOT NULL),
		               '[]'::jsonb
		       ) AS persons
		FROM content.film_work fw
		LEFT JOIN content.person_film_work pfw ON pfw.film_work_id = fw.id
		LEFT JOIN content.genre_film_work gfw ON gfw.film_work_id = fw.id
		LEFT JOIN content.genre g ON g.id = gfw.genre_id
		LEFT JOIN content.person p ON p.id = pfw.person_id
		WHERE fw.id IN (?)
		GROUP BY fw.id
	`, bun.In(ids)).Exec(ctx, &rows)
	if err != nil {
		return nil, markSourceError(fmt.Errorf("assemble film works: %w", err))
	}

	out := make([]FilmWorkRow, 0, len(rows))
	for _, row := range rows {
		assembled := FilmWorkRow{
			ID:          row.ID,
			Title:       row.Title,
			Description: row.Description,
			Rating:      row.Rating,
			UpdatedAt:   row.UpdatedAt,
		}
		if err := json.Unmarshal(row.Genres, &assembled.Genres); err != nil {
			return nil, fmt.Errorf("decode genres for film %s: %w", row.ID, err)
		}
		if err := json.Unmarshal(row.Persons, &assembled.Persons); err != nil {
			return nil, fmt.Errorf("decode persons for film %s: %w", row.ID, err)
		}
		out = append(out, assembled)
	}

	r.log.Debug("assembled film works", slog.Int("count", len(out)))
	return out, nil
}

func laterOf(current *time.Time, candidate time.Time) *time.Time {
	if current == nil || candidate.After(*current) {
		return &candidate
	}
	return current
}

// PgSource opens per-tick reader connections from the shared pool. Pinning a
// tick to one connection keeps its queries on a single consistent backend
// and lets the coordinator release it the moment the tick ends.
type PgSource struct {
	db  *bun.DB
	log *slog.Logger
}

func NewPgSource(db *bun.DB, log *slog.Logger) *PgSource {
	return &PgSource{db: db, log: log}
}

// OpenSource acquires one connection and wraps it in a Repository.
func (s *PgSource) OpenSource(ctx context.Context) (SourceConn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, markSourceError(fmt.Errorf("acquire source connection: %w", err))
	}
	return &pgSourceConn{Repository: NewRepository(conn, s.log), conn: conn}, nil
}

type pgSourceConn struct {
	*Repository
	conn bun.Conn
}

func (c *pgSourceConn) Close() error { return c.conn.Close() }

func watermarkAttr(ts *time.Time) slog.Attr {
	if ts == nil {
		return slog.String("watermark", "none")
	}
	return slog.Time("watermark", *ts)
}
