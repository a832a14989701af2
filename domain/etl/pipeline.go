package etl

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kinohub/moviesearch/internal/config"
	"github.com/kinohub/moviesearch/pkg/logger"
)

// Source is one open reader over the film catalogue.
type Source interface {
	ChangedGenres(ctx context.Context, since *time.Time) ([]GenreRow, *time.Time, error)
	ChangedPersons(ctx context.Context, since *time.Time) ([]PersonRow, *time.Time, error)
	ChangedFilmWorkIDs(ctx context.Context, since *time.Time) ([]uuid.UUID, *time.Time, error)
	FilmIDsByChangedGenres(ctx context.Context, since *time.Time) ([]uuid.UUID, *time.Time, error)
	FilmIDsByChangedPersons(ctx context.Context, since *time.Time) ([]uuid.UUID, *time.Time, error)
	FilmIDsByChangedGenreFilmWork(ctx context.Context, since *time.Time) ([]uuid.UUID, *time.Time, error)
	FilmIDsByChangedPersonFilmWork(ctx context.Context, since *time.Time) ([]uuid.UUID, *time.Time, error)
	AssembleFilmWorks(ctx context.Context, ids []uuid.UUID) ([]FilmWorkRow, error)
}

// SourceConn is a Source pinned to a single connection for the duration of
// one tick.
type SourceConn interface {
	Source
	Close() error
}

// SourceOpener hands out a fresh source connection per tick.
type SourceOpener interface {
	OpenSource(ctx context.Context) (SourceConn, error)
}

// Sink receives transformed documents.
type Sink interface {
	EnsureMoviesIndex(ctx context.Context) error
	EnsureGenresIndex(ctx context.Context) error
	EnsurePersonsIndex(ctx context.Context) error
	BulkLoad(ctx context.Context, index string, docs []Document) error
}

// Watermarks is the coordinator's view of the state store.
type Watermarks interface {
	Get(key string) *time.Time
	Set(key string, ts *time.Time) error
}

// sourceError marks a failure while talking to the catalogue database, as
// opposed to sink or transform failures. The worker loop treats connectivity
// flavours of it as survivable.
type sourceError struct {
	err error
}

func (e *sourceError) Error() string { return e.err.Error() }
func (e *sourceError) Unwrap() error { return e.err }

func markSourceError(err error) error {
	if err == nil {
		return nil
	}
	return &sourceError{err: err}
}

// IsSourceUnavailable reports whether err means the catalogue database could
// not be reached. SQL-level errors from a healthy server (bad schema, bad
// grammar) are not connectivity problems and stay fatal, with the exception
// of SQLSTATE class 08, which the server itself files under connection
// exceptions.
func IsSourceUnavailable(err error) bool {
	var se *sourceError
	if !errors.As(err, &se) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return true
}

// movieWatermarks carries the five timestamps the movies fan-in reads and
// commits together.
type movieWatermarks struct {
	filmWork   *time.Time
	genre      *time.Time
	person     *time.Time
	genreLink  *time.Time
	personLink *time.Time
}

// Coordinator drives one tick over the three pipelines: genres, persons,
// movies, in that order, so the dictionary indices are refreshed before the
// movie documents that embed them.
type Coordinator struct {
	sources SourceOpener
	sink    Sink
	state   Watermarks
	log     *slog.Logger

	moviesIndex  string
	genresIndex  string
	personsIndex string
}

func NewCoordinator(sources SourceOpener, sink Sink, state Watermarks, cfg *config.Config, log *slog.Logger) *Coordinator {
	return &Coordinator{
		sources:      sources,
		sink:         sink,
		state:        state,
		log:          log.With(logger.Scope("etl.coordinator")),
		moviesIndex:  cfg.Elastic.MoviesIndex,
		genresIndex:  cfg.Elastic.GenresIndex,
		personsIndex: cfg.Elastic.PersonsIndex,
	}
}

// RunTick opens a source connection, runs the three pipelines against the
// watermarks as they stood when the tick began, and closes the connection.
// Watermarks are committed per pipeline, never rolled back: a failure in a
// later pipeline leaves earlier commits standing, and the next tick simply
// re-detects whatever was not written.
func (c *Coordinator) RunTick(ctx context.Context) error {
	started := time.Now()

	src, err := c.sources.OpenSource(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			c.log.Warn("closing source connection", logger.Error(closeErr))
		}
	}()

	// The movies fan-in must query with the values from before the
	// dictionary pipelines advanced them, otherwise a genre rename would
	// never reach the films embedding that genre.
	wm := movieWatermarks{
		filmWork:   c.state.Get(KeyFilmWorkTS),
		genre:      c.state.Get(KeyGenreTS),
		person:     c.state.Get(KeyPersonTS),
		genreLink:  c.state.Get(KeyGenreFilmWorkTS),
		personLink: c.state.Get(KeyPersonFilmWorkTS),
	}

	if err := c.syncGenres(ctx, src, wm.genre); err != nil {
		return err
	}
	if err := c.syncPersons(ctx, src, wm.person); err != nil {
		return err
	}
	if err := c.syncMovies(ctx, src, wm); err != nil {
		return err
	}

	c.log.Info("tick complete", slog.Duration("duration", time.Since(started)))
	return nil
}

func (c *Coordinator) syncGenres(ctx context.Context, src Source, since *time.Time) error {
	rows, latest, err := src.ChangedGenres(ctx, since)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		c.log.Debug("no genre changes")
		return nil
	}

	docs := make([]Document, len(rows))
	for i, row := range rows {
		docs[i] = TransformGenre(row)
	}

	if err := c.sink.EnsureGenresIndex(ctx); err != nil {
		return err
	}
	if err := c.sink.BulkLoad(ctx, c.genresIndex, docs); err != nil {
		return err
	}
	if err := c.commitWatermark(KeyGenreTS, latest); err != nil {
		return err
	}

	c.log.Info("genres synced", slog.Int("documents", len(docs)))
	return nil
}

func (c *Coordinator) syncPersons(ctx context.Context, src Source, since *time.Time) error {
	rows, latest, err := src.ChangedPersons(ctx, since)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		c.log.Debug("no person changes")
		return nil
	}

	docs := make([]Document, len(rows))
	for i, row := range rows {
		docs[i] = TransformPerson(row)
	}

	if err := c.sink.EnsurePersonsIndex(ctx); err != nil {
		return err
	}
	if err := c.sink.BulkLoad(ctx, c.personsIndex, docs); err != nil {
		return err
	}
	if err := c.commitWatermark(KeyPersonTS, latest); err != nil {
		return err
	}

	c.log.Info("persons synced", slog.Int("documents", len(docs)))
	return nil
}

// syncMovies unions the ids from all five change queries, reassembles and
// reindexes the affected films, then commits all five movie watermarks. The
// watermarks are committed even when no film changed: the queries came back
// empty for the tick-start timestamps, which is knowledge worth persisting.
func (c *Coordinator) syncMovies(ctx context.Context, src Source, wm movieWatermarks) error {
	var affected []uuid.UUID
	seen := make(map[uuid.UUID]struct{})
	collect := func(ids []uuid.UUID) {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			affected = append(affected, id)
		}
	}

	var next movieWatermarks
	var ids []uuid.UUID
	var err error

	if ids, next.filmWork, err = src.ChangedFilmWorkIDs(ctx, wm.filmWork); err != nil {
		return err
	}
	collect(ids)
	if ids, next.genre, err = src.FilmIDsByChangedGenres(ctx, wm.genre); err != nil {
		return err
	}
	collect(ids)
	if ids, next.person, err = src.FilmIDsByChangedPersons(ctx, wm.person); err != nil {
		return err
	}
	collect(ids)
	if ids, next.genreLink, err = src.FilmIDsByChangedGenreFilmWork(ctx, wm.genreLink); err != nil {
		return err
	}
	collect(ids)
	if ids, next.personLink, err = src.FilmIDsByChangedPersonFilmWork(ctx, wm.personLink); err != nil {
		return err
	}
	collect(ids)

	if len(affected) == 0 {
		c.log.Debug("no movie changes")
		return c.commitMovieWatermarks(next)
	}

	rows, err := src.AssembleFilmWorks(ctx, affected)
	if err != nil {
		return err
	}

	docs := make([]Document, len(rows))
	for i, row := range rows {
		docs[i] = TransformFilmWork(row)
	}

	if err := c.sink.EnsureMoviesIndex(ctx); err != nil {
		return err
	}
	if err := c.sink.BulkLoad(ctx, c.moviesIndex, docs); err != nil {
		return err
	}
	if err := c.commitMovieWatermarks(next); err != nil {
		return err
	}

	c.log.Info("movies synced",
		slog.Int("affected", len(affected)),
		slog.Int("documents", len(docs)))
	return nil
}

func (c *Coordinator) commitMovieWatermarks(next movieWatermarks) error {
	commits := []struct {
		key string
		ts  *time.Time
	}{
		{KeyFilmWorkTS, next.filmWork},
		{KeyGenreTS, next.genre},
		{KeyPersonTS, next.person},
		{KeyGenreFilmWorkTS, next.genreLink},
		{KeyPersonFilmWorkTS, next.personLink},
	}
	for _, commit := range commits {
		if err := c.commitWatermark(commit.key, commit.ts); err != nil {
			return err
		}
	}
	return nil
}

// commitWatermark persists ts under key unless that would move the watermark
// backwards. The movies fan-in recomputes genre_ts and person_ts from join
// subsets, which can trail what the dictionary pipelines committed moments
// earlier in the same tick; those commits must stand.
func (c *Coordinator) commitWatermark(key string, ts *time.Time) error {
	current := c.state.Get(key)
	if ts == nil {
		if current != nil {
			return nil
		}
		return c.state.Set(key, nil)
	}
	if current != nil && ts.Before(*current) {
		return nil
	}
	return c.state.Set(key, ts)
}
