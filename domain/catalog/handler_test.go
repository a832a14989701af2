package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinohub/moviesearch/pkg/apperror"
)

// noStore disables caching so handler tests always reach the backend.
type noStore struct{}

func (noStore) Get(context.Context, string, any) bool { return false }
func (noStore) Set(context.Context, string, any)      {}
func (noStore) SetList(context.Context, string, any)  {}

func newTestAPI(backend Backend) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(testLogger())

	svc := &Service{backend: backend, cache: noStore{}, log: testLogger()}
	RegisterRoutes(e, NewHandler(svc))
	return e
}

func perform(e *echo.Echo, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestGetFilmEndpoint(t *testing.T) {
	rating := 8.5
	backend := &fakeBackend{film: &Film{ID: filmID, Title: "The Grand Heist", IMDBRating: &rating}}
	e := newTestAPI(backend)

	rec := perform(e, "/api/v1/films/"+filmID.String())
	require.Equal(t, http.StatusOK, rec.Code)

	var film Film
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &film))
	assert.Equal(t, filmID, film.ID)
	assert.Equal(t, "The Grand Heist", film.Title)
}

func TestGetFilmEndpointRejectsBadID(t *testing.T) {
	e := newTestAPI(&fakeBackend{})

	rec := perform(e, "/api/v1/films/not-a-uuid")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", errorCode(t, rec))
}

func TestGetFilmEndpointNotFound(t *testing.T) {
	e := newTestAPI(&fakeBackend{})

	rec := perform(e, "/api/v1/films/"+uuid.NewString())
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "film_not_found", errorCode(t, rec))
}

func TestListFilmsPaginationValidation(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{name: "zero page", target: "/api/v1/films?page=0"},
		{name: "negative page", target: "/api/v1/films?page=-3"},
		{name: "non-integer page", target: "/api/v1/films?page=abc"},
		{name: "zero size", target: "/api/v1/films?size=0"},
		{name: "oversized page", target: "/api/v1/films?size=101"},
		{name: "non-integer size", target: "/api/v1/films?size=ten"},
		{name: "unknown sort", target: "/api/v1/films?sort=title"},
		{name: "malformed genre", target: "/api/v1/films?genre=42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{}
			e := newTestAPI(backend)

			rec := perform(e, tt.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "bad_request", errorCode(t, rec))
			assert.Empty(t, backend.calls)
		})
	}
}

func TestListFilmsDefaults(t *testing.T) {
	backend := &fakeBackend{total: 0}
	e := newTestAPI(backend)

	rec := perform(e, "/api/v1/films")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1, backend.filmParams.Page)
	assert.Equal(t, 50, backend.filmParams.Size)
	assert.Nil(t, backend.filmParams.GenreID)

	var list FilmList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 50, list.Size)
	assert.NotNil(t, list.Results)
}

func TestListFilmsGenreFilterReachesBackend(t *testing.T) {
	backend := &fakeBackend{total: 0}
	e := newTestAPI(backend)

	rec := perform(e, "/api/v1/films?genre="+genreID.String()+"&page=2&size=10")
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, backend.filmParams.GenreID)
	assert.Equal(t, genreID, *backend.filmParams.GenreID)
	assert.Equal(t, 2, backend.filmParams.Page)
	assert.Equal(t, 10, backend.filmParams.Size)
}

func TestSearchFilmsEndpointRequiresQuery(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestAPI(backend)

	rec := perform(e, "/api/v1/films/search")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", errorCode(t, rec))
	assert.Empty(t, backend.calls)
}

// The static /films/search segment must win over the /films/:id parameter.
func TestSearchFilmsEndpointRouting(t *testing.T) {
	backend := &fakeBackend{total: 1, films: []Film{{ID: filmID, Title: "Star Runner"}}}
	e := newTestAPI(backend)

	rec := perform(e, "/api/v1/films/search?query=star")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"SearchFilms"}, backend.calls)
	assert.Equal(t, "star", backend.lastQuery)

	var list FilmList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	require.Len(t, list.Results, 1)
	assert.Equal(t, "Star Runner", list.Results[0].Title)
}

func TestGenreEndpoints(t *testing.T) {
	backend := &fakeBackend{
		genre:  &Genre{ID: genreID, Name: "Drama"},
		genres: []Genre{{ID: genreID, Name: "Drama"}},
		total:  1,
	}
	e := newTestAPI(backend)

	rec := perform(e, "/api/v1/genres/"+genreID.String())
	require.Equal(t, http.StatusOK, rec.Code)

	var genre Genre
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &genre))
	assert.Equal(t, "Drama", genre.Name)

	rec = perform(e, "/api/v1/genres?search=dra")
	require.Equal(t, http.StatusOK, rec.Code)

	var list GenreList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "dra", backend.listParams.Search)
}

func TestGenreEndpointNotFound(t *testing.T) {
	e := newTestAPI(&fakeBackend{})

	rec := perform(e, "/api/v1/genres/"+uuid.NewString())
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "genre_not_found", errorCode(t, rec))
}

func TestPersonEndpoints(t *testing.T) {
	backend := &fakeBackend{
		person:  &Person{ID: personID, Name: "Pat Lee"},
		persons: []Person{{ID: personID, Name: "Pat Lee"}},
		films:   []Film{{ID: filmID, Title: "The Grand Heist"}},
		total:   1,
	}
	e := newTestAPI(backend)

	rec := perform(e, "/api/v1/persons/"+personID.String())
	require.Equal(t, http.StatusOK, rec.Code)

	var person Person
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &person))
	assert.Equal(t, "Pat Lee", person.Name)

	rec = perform(e, "/api/v1/persons")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = perform(e, "/api/v1/persons/"+personID.String()+"/film")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, backend.calls, "FilmsByActor")

	var list FilmList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Results, 1)
	assert.Equal(t, "The Grand Heist", list.Results[0].Title)
}

func TestPersonEndpointNotFound(t *testing.T) {
	e := newTestAPI(&fakeBackend{})

	rec := perform(e, "/api/v1/persons/"+uuid.NewString())
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "person_not_found", errorCode(t, rec))
}
