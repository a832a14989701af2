package etl

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinohub/moviesearch/internal/config"
)

var (
	filmID   = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	genreID  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	personID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func ts(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}

func tsp(value string) *time.Time {
	t := ts(value)
	return &t
}

type idResult struct {
	ids    []uuid.UUID
	latest *time.Time
	err    error
}

// fakeSource records every call and the watermark it was given, so tests can
// assert which values the coordinator passed where.
type fakeSource struct {
	genres       []GenreRow
	genresLatest *time.Time
	genresErr    error

	persons       []PersonRow
	personsLatest *time.Time
	personsErr    error

	filmWorks   idResult
	byGenres    idResult
	byPersons   idResult
	byGenreLink idResult
	byPersonLnk idResult

	assembled     []FilmWorkRow
	assembleErr   error
	assembledWith []uuid.UUID

	calls []string
	since map[string]*time.Time

	closed bool
}

func (s *fakeSource) record(call string, since *time.Time) {
	if s.since == nil {
		s.since = make(map[string]*time.Time)
	}
	s.calls = append(s.calls, call)
	s.since[call] = since
}

func orSince(latest, since *time.Time) *time.Time {
	if latest != nil {
		return latest
	}
	return since
}

func (s *fakeSource) ChangedGenres(_ context.Context, since *time.Time) ([]GenreRow, *time.Time, error) {
	s.record("ChangedGenres", since)
	if s.genresErr != nil {
		return nil, nil, s.genresErr
	}
	return s.genres, orSince(s.genresLatest, since), nil
}

func (s *fakeSource) ChangedPersons(_ context.Context, since *time.Time) ([]PersonRow, *time.Time, error) {
	s.record("ChangedPersons", since)
	if s.personsErr != nil {
		return nil, nil, s.personsErr
	}
	return s.persons, orSince(s.personsLatest, since), nil
}

func (s *fakeSource) ChangedFilmWorkIDs(_ context.Context, since *time.Time) ([]uuid.UUID, *time.Time, error) {
	s.record("ChangedFilmWorkIDs", since)
	return s.filmWorks.ids, orSince(s.filmWorks.latest, since), s.filmWorks.err
}

func (s *fakeSource) FilmIDsByChangedGenres(_ context.Context, since *time.Time) ([]uuid.UUID, *time.Time, error) {
	s.record("FilmIDsByChangedGenres", since)
	return s.byGenres.ids, orSince(s.byGenres.latest, since), s.byGenres.err
}

func (s *fakeSource) FilmIDsByChangedPersons(_ context.Context, since *time.Time) ([]uuid.UUID, *time.Time, error) {
	s.record("FilmIDsByChangedPersons", since)
	return s.byPersons.ids, orSince(s.byPersons.latest, since), s.byPersons.err
}

func (s *fakeSource) FilmIDsByChangedGenreFilmWork(_ context.Context, since *time.Time) ([]uuid.UUID, *time.Time, error) {
	s.record("FilmIDsByChangedGenreFilmWork", since)
	return s.byGenreLink.ids, orSince(s.byGenreLink.latest, since), s.byGenreLink.err
}

func (s *fakeSource) FilmIDsByChangedPersonFilmWork(_ context.Context, since *time.Time) ([]uuid.UUID, *time.Time, error) {
	s.record("FilmIDsByChangedPersonFilmWork", since)
	return s.byPersonLnk.ids, orSince(s.byPersonLnk.latest, since), s.byPersonLnk.err
}

func (s *fakeSource) AssembleFilmWorks(_ context.Context, ids []uuid.UUID) ([]FilmWorkRow, error) {
	s.assembledWith = ids
	return s.assembled, s.assembleErr
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakeOpener struct {
	src   *fakeSource
	err   error
	opens int
}

func (o *fakeOpener) OpenSource(context.Context) (SourceConn, error) {
	if o.err != nil {
		return nil, o.err
	}
	o.opens++
	return o.src, nil
}

type bulkCall struct {
	index string
	docs  []Document
}

type fakeSink struct {
	ensured   []string
	bulks     []bulkCall
	ensureErr map[string]error
	bulkErr   map[string]error
}

func (s *fakeSink) ensure(index string) error {
	s.ensured = append(s.ensured, index)
	return s.ensureErr[index]
}

func (s *fakeSink) EnsureMoviesIndex(context.Context) error  { return s.ensure("movies") }
func (s *fakeSink) EnsureGenresIndex(context.Context) error  { return s.ensure("genres") }
func (s *fakeSink) EnsurePersonsIndex(context.Context) error { return s.ensure("persons") }

func (s *fakeSink) BulkLoad(_ context.Context, index string, docs []Document) error {
	if err := s.bulkErr[index]; err != nil {
		return err
	}
	s.bulks = append(s.bulks, bulkCall{index: index, docs: docs})
	return nil
}

func (s *fakeSink) bulkFor(index string) *bulkCall {
	for i := range s.bulks {
		if s.bulks[i].index == index {
			return &s.bulks[i]
		}
	}
	return nil
}

type memState struct {
	values map[string]time.Time
	sets   []string
}

func newMemState(values map[string]time.Time) *memState {
	if values == nil {
		values = make(map[string]time.Time)
	}
	return &memState{values: values}
}

func (m *memState) Get(key string) *time.Time {
	if v, ok := m.values[key]; ok {
		c := v
		return &c
	}
	return nil
}

func (m *memState) Set(key string, ts *time.Time) error {
	m.sets = append(m.sets, key)
	if ts == nil {
		delete(m.values, key)
		return nil
	}
	m.values[key] = *ts
	return nil
}

func newTestCoordinator(src *fakeSource, sink *fakeSink, state *memState) (*Coordinator, *fakeOpener) {
	cfg := &config.Config{}
	cfg.Elastic.MoviesIndex = "movies"
	cfg.Elastic.GenresIndex = "genres"
	cfg.Elastic.PersonsIndex = "persons"

	opener := &fakeOpener{src: src}
	return NewCoordinator(opener, sink, state, cfg, testLogger()), opener
}

func TestCoordinatorFreshStartIndexesEverything(t *testing.T) {
	t0 := ts("2024-01-01T00:00:00Z")
	src := &fakeSource{
		genres:        []GenreRow{{ID: genreID, Name: "Drama", UpdatedAt: t0}},
		genresLatest:  &t0,
		persons:       []PersonRow{{ID: personID, FullName: "Jane Doe", UpdatedAt: t0}},
		personsLatest: &t0,
		filmWorks:     idResult{ids: []uuid.UUID{filmID}, latest: &t0},
		byGenres:      idResult{ids: []uuid.UUID{filmID}, latest: &t0},
		byPersons:     idResult{ids: []uuid.UUID{filmID}, latest: &t0},
		byGenreLink:   idResult{ids: []uuid.UUID{filmID}, latest: &t0},
		byPersonLnk:   idResult{ids: []uuid.UUID{filmID}, latest: &t0},
		assembled: []FilmWorkRow{{
			ID:        filmID,
			Title:     "A",
			UpdatedAt: t0,
			Genres:    []FilmGenre{{ID: genreID, Name: "Drama"}},
			Persons:   []FilmPerson{{ID: personID, FullName: "Jane Doe", Role: RoleActor}},
		}},
	}
	sink := &fakeSink{}
	state := newMemState(nil)
	coordinator, opener := newTestCoordinator(src, sink, state)

	require.NoError(t, coordinator.RunTick(context.Background()))

	// Dictionary pipelines before movies, ensure before bulk.
	assert.Equal(t, []string{"genres", "persons", "movies"}, sink.ensured)

	genreBulk := sink.bulkFor("genres")
	require.NotNil(t, genreBulk)
	assert.Equal(t, GenreDocument{ID: genreID, Name: "Drama"}, genreBulk.docs[0])

	personBulk := sink.bulkFor("persons")
	require.NotNil(t, personBulk)
	assert.Equal(t, PersonDocument{ID: personID, Name: "Jane Doe"}, personBulk.docs[0])

	movieBulk := sink.bulkFor("movies")
	require.NotNil(t, movieBulk)
	require.Len(t, movieBulk.docs, 1)
	movie := movieBulk.docs[0].(MovieDocument)
	assert.Equal(t, filmID, movie.ID)
	assert.Equal(t, []PersonRef{{ID: personID, Name: "Jane Doe"}}, movie.Actors)
	assert.Equal(t, []GenreRef{{ID: genreID, Name: "Drama"}}, movie.Genres)
	assert.Empty(t, movie.Directors)

	for _, key := range []string{KeyGenreTS, KeyPersonTS, KeyFilmWorkTS, KeyGenreFilmWorkTS, KeyPersonFilmWorkTS} {
		got := state.Get(key)
		require.NotNil(t, got, "key %s", key)
		assert.True(t, got.Equal(t0), "key %s", key)
	}

	assert.Equal(t, 1, opener.opens)
	assert.True(t, src.closed)
}

func TestCoordinatorMoviesFanInUsesTickStartWatermarks(t *testing.T) {
	t0 := ts("2024-01-01T00:00:00Z")
	t1 := ts("2024-01-02T00:00:00Z")

	// A genre renamed at t1: the dictionary pipeline advances genre_ts to t1
	// before the movies pipeline runs its fan-in queries.
	src := &fakeSource{
		genres:       []GenreRow{{ID: genreID, Name: "Драма", UpdatedAt: t1}},
		genresLatest: &t1,
		byGenres:     idResult{ids: []uuid.UUID{filmID}, latest: &t1},
		assembled: []FilmWorkRow{{
			ID:     filmID,
			Title:  "A",
			Genres: []FilmGenre{{ID: genreID, Name: "Драма"}},
		}},
	}
	sink := &fakeSink{}
	state := newMemState(map[string]time.Time{
		KeyGenreTS:          t0,
		KeyPersonTS:         t0,
		KeyFilmWorkTS:       t0,
		KeyGenreFilmWorkTS:  t0,
		KeyPersonFilmWorkTS: t0,
	})
	coordinator, _ := newTestCoordinator(src, sink, state)

	require.NoError(t, coordinator.RunTick(context.Background()))

	// The fan-in query saw the watermark from before the rename was
	// committed, so it returned the affected film.
	require.NotNil(t, src.since["FilmIDsByChangedGenres"])
	assert.True(t, src.since["FilmIDsByChangedGenres"].Equal(t0))

	movieBulk := sink.bulkFor("movies")
	require.NotNil(t, movieBulk)
	movie := movieBulk.docs[0].(MovieDocument)
	assert.Equal(t, "Драма", movie.Genres[0].Name)

	// genre_ts advanced, the untouched join watermark did not.
	assert.True(t, state.Get(KeyGenreTS).Equal(t1))
	assert.True(t, state.Get(KeyGenreFilmWorkTS).Equal(t0))
	assert.True(t, state.Get(KeyFilmWorkTS).Equal(t0))
}

func TestCoordinatorEmptyFanInStillCommitsWatermarks(t *testing.T) {
	t0 := ts("2024-01-01T00:00:00Z")
	src := &fakeSource{}
	sink := &fakeSink{}
	state := newMemState(map[string]time.Time{
		KeyGenreTS:          t0,
		KeyPersonTS:         t0,
		KeyFilmWorkTS:       t0,
		KeyGenreFilmWorkTS:  t0,
		KeyPersonFilmWorkTS: t0,
	})
	coordinator, _ := newTestCoordinator(src, sink, state)

	require.NoError(t, coordinator.RunTick(context.Background()))

	// Nothing to write, nothing ensured.
	assert.Empty(t, sink.ensured)
	assert.Empty(t, sink.bulks)

	// The five movie watermarks are still rewritten with identical values.
	assert.Equal(t, []string{
		KeyFilmWorkTS, KeyGenreTS, KeyPersonTS, KeyGenreFilmWorkTS, KeyPersonFilmWorkTS,
	}, state.sets)
	for _, key := range state.sets {
		assert.True(t, state.Get(key).Equal(t0))
	}
}

func TestCoordinatorNeverRegressesDictionaryWatermarks(t *testing.T) {
	t0 := ts("2024-01-01T00:00:00Z")
	t2 := ts("2024-01-03T00:00:00Z")

	// A genre without any film links changes at t2: the dictionary pipeline
	// commits t2, but the movies fan-in joins through genre_film_work and
	// sees nothing, so its genre watermark stays at t0.
	src := &fakeSource{
		genres:       []GenreRow{{ID: genreID, Name: "Opera", UpdatedAt: t2}},
		genresLatest: &t2,
	}
	sink := &fakeSink{}
	state := newMemState(map[string]time.Time{
		KeyGenreTS:          t0,
		KeyPersonTS:         t0,
		KeyFilmWorkTS:       t0,
		KeyGenreFilmWorkTS:  t0,
		KeyPersonFilmWorkTS: t0,
	})
	coordinator, _ := newTestCoordinator(src, sink, state)

	require.NoError(t, coordinator.RunTick(context.Background()))

	got := state.Get(KeyGenreTS)
	require.NotNil(t, got)
	assert.True(t, got.Equal(t2), "movies commit must not roll genre_ts back to %s", t0)
}

func TestCoordinatorDeduplicatesFanIn(t *testing.T) {
	otherID := uuid.MustParse("99999999-9999-9999-9999-999999999999")
	t0 := ts("2024-01-01T00:00:00Z")
	src := &fakeSource{
		filmWorks: idResult{ids: []uuid.UUID{filmID, otherID}, latest: &t0},
		byGenres:  idResult{ids: []uuid.UUID{otherID, filmID}, latest: &t0},
		byPersons: idResult{ids: []uuid.UUID{filmID}, latest: &t0},
		assembled: []FilmWorkRow{
			{ID: filmID, Title: "A"},
			{ID: otherID, Title: "B"},
		},
	}
	sink := &fakeSink{}
	coordinator, _ := newTestCoordinator(src, sink, newMemState(nil))

	require.NoError(t, coordinator.RunTick(context.Background()))

	assert.Equal(t, []uuid.UUID{filmID, otherID}, src.assembledWith)
}

func TestCoordinatorSinkFailureAbortsTick(t *testing.T) {
	t0 := ts("2024-01-01T00:00:00Z")
	src := &fakeSource{
		genres:       []GenreRow{{ID: genreID, Name: "Drama", UpdatedAt: t0}},
		genresLatest: &t0,
	}
	sinkErr := errors.New("sink down")
	sink := &fakeSink{bulkErr: map[string]error{"genres": sinkErr}}
	state := newMemState(nil)
	coordinator, _ := newTestCoordinator(src, sink, state)

	err := coordinator.RunTick(context.Background())
	require.ErrorIs(t, err, sinkErr)

	// Watermark untouched, later pipelines never ran, connection closed.
	assert.Nil(t, state.Get(KeyGenreTS))
	assert.NotContains(t, src.calls, "ChangedPersons")
	assert.True(t, src.closed)
}

func TestCoordinatorSourceOpenFailure(t *testing.T) {
	openErr := markSourceError(errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"))
	opener := &fakeOpener{err: openErr}
	cfg := &config.Config{}
	cfg.Elastic.MoviesIndex = "movies"
	cfg.Elastic.GenresIndex = "genres"
	cfg.Elastic.PersonsIndex = "persons"
	coordinator := NewCoordinator(opener, &fakeSink{}, newMemState(nil), cfg, testLogger())

	err := coordinator.RunTick(context.Background())
	require.Error(t, err)
	assert.True(t, IsSourceUnavailable(err))
}

func TestIsSourceUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "marked dial failure",
			err:  markSourceError(&net.OpError{Op: "dial", Err: errors.New("connection refused")}),
			want: true,
		},
		{
			name: "marked server connection exception",
			err:  markSourceError(&pgconn.PgError{Code: "08006", Message: "connection failure"}),
			want: true,
		},
		{
			name: "marked sql error",
			err:  markSourceError(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"}),
			want: false,
		},
		{
			name: "unmarked error",
			err:  errors.New("bulk load movies: 500"),
			want: false,
		},
		{
			name: "nil",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSourceUnavailable(tt.err))
		})
	}
}
