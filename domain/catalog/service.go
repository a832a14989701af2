package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kinohub/moviesearch/pkg/apperror"
	"github.com/kinohub/moviesearch/pkg/logger"
)

// Backend is the slice of the search repository the service consumes.
type Backend interface {
	GetFilm(ctx context.Context, id uuid.UUID) (*Film, error)
	ListFilms(ctx context.Context, p ListFilmsParams) (int, []Film, error)
	SearchFilms(ctx context.Context, query string, page, size int) (int, []Film, error)
	FilmsByActor(ctx context.Context, personID uuid.UUID, page, size int) (int, []Film, error)
	GetGenre(ctx context.Context, id uuid.UUID) (*Genre, error)
	ListGenres(ctx context.Context, p ListParams) (int, []Genre, error)
	GetPerson(ctx context.Context, id uuid.UUID) (*Person, error)
	ListPersons(ctx context.Context, p ListParams) (int, []Person, error)
}

// Store is the cache surface the service consumes.
type Store interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any)
	SetList(ctx context.Context, key string, value any)
}

// Sortable fields for the genre and person lists; anything else falls back
// to the keyword subfield of name.
var listSortFields = map[string]string{
	"name": "name.raw",
}

// Service answers catalog reads, checking the cache before Elasticsearch.
// A nil result with a nil error means the document does not exist.
type Service struct {
	backend Backend
	cache   Store
	log     *slog.Logger
}

// NewService creates the catalog service.
func NewService(repo *Repository, cache *Cache, log *slog.Logger) *Service {
	return &Service{
		backend: repo,
		cache:   cache,
		log:     log.With(logger.Scope("catalog.svc")),
	}
}

// FilmByID returns one film, from cache when possible.
func (s *Service) FilmByID(ctx context.Context, id uuid.UUID) (*Film, error) {
	key := "film:" + id.String()

	var cached Film
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	film, err := s.backend.GetFilm(ctx, id)
	if err != nil || film == nil {
		return nil, err
	}

	s.cache.Set(ctx, key, film)
	return film, nil
}

// Films returns a page of films. The sort parameter is a strict whitelist:
// imdb_rating ascending, -imdb_rating (the default) descending.
func (s *Service) Films(ctx context.Context, q FilmsQuery) (*FilmList, error) {
	var field, order string
	switch q.Sort {
	case "", "-imdb_rating":
		field, order = "imdb_rating", "desc"
	case "imdb_rating":
		field, order = "imdb_rating", "asc"
	default:
		return nil, apperror.NewBadRequest("sort must be one of: imdb_rating, -imdb_rating")
	}

	genre := "all"
	if q.GenreID != nil {
		genre = q.GenreID.String()
	}
	key := fmt.Sprintf("film:list:sort=%s:genre=%s:page=%d:size=%d",
		orDefault(q.Sort), genre, q.Page, q.Size)

	var cached FilmList
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	total, films, err := s.backend.ListFilms(ctx, ListFilmsParams{
		SortField: field,
		SortOrder: order,
		GenreID:   q.GenreID,
		Page:      q.Page,
		Size:      q.Size,
	})
	if err != nil {
		return nil, err
	}

	list := &FilmList{Count: total, Page: q.Page, Size: q.Size, Results: shortFilms(films)}
	s.cache.SetList(ctx, key, list)
	return list, nil
}

// SearchFilms runs a full-text film search. Results are not cached: query
// text is too variable for the hit rate to matter.
func (s *Service) SearchFilms(ctx context.Context, query string, page, size int) (*FilmList, error) {
	total, films, err := s.backend.SearchFilms(ctx, query, page, size)
	if err != nil {
		return nil, err
	}
	return &FilmList{Count: total, Page: page, Size: size, Results: shortFilms(films)}, nil
}

// GenreByID returns one genre, from cache when possible.
func (s *Service) GenreByID(ctx context.Context, id uuid.UUID) (*Genre, error) {
	key := "genre:" + id.String()

	var cached Genre
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	genre, err := s.backend.GetGenre(ctx, id)
	if err != nil || genre == nil {
		return nil, err
	}

	s.cache.Set(ctx, key, genre)
	return genre, nil
}

// Genres returns a page of genres.
func (s *Service) Genres(ctx context.Context, q ListQuery) (*GenreList, error) {
	key := fmt.Sprintf("genre:list:sort=%s:search=%s:page=%d:size=%d",
		orDefault(q.Sort), orAll(q.Search), q.Page, q.Size)

	var cached GenreList
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	field, order := resolveListSort(q.Sort)
	total, genres, err := s.backend.ListGenres(ctx, ListParams{
		SortField: field,
		SortOrder: order,
		Search:    q.Search,
		Page:      q.Page,
		Size:      q.Size,
	})
	if err != nil {
		return nil, err
	}

	list := &GenreList{Count: total, Page: q.Page, Size: q.Size, Results: genres}
	s.cache.SetList(ctx, key, list)
	return list, nil
}

// PersonByID returns one person, from cache when possible.
func (s *Service) PersonByID(ctx context.Context, id uuid.UUID) (*Person, error) {
	key := "person:" + id.String()

	var cached Person
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	person, err := s.backend.GetPerson(ctx, id)
	if err != nil || person == nil {
		return nil, err
	}

	s.cache.Set(ctx, key, person)
	return person, nil
}

// Persons returns a page of persons.
func (s *Service) Persons(ctx context.Context, q ListQuery) (*PersonList, error) {
	key := fmt.Sprintf("person:list:sort=%s:search=%s:page=%d:size=%d",
		orDefault(q.Sort), orAll(q.Search), q.Page, q.Size)

	var cached PersonList
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	field, order := resolveListSort(q.Sort)
	total, persons, err := s.backend.ListPersons(ctx, ListParams{
		SortField: field,
		SortOrder: order,
		Search:    q.Search,
		Page:      q.Page,
		Size:      q.Size,
	})
	if err != nil {
		return nil, err
	}

	list := &PersonList{Count: total, Page: q.Page, Size: q.Size, Results: persons}
	s.cache.SetList(ctx, key, list)
	return list, nil
}

// PersonFilms returns the films a person acted in. Not cached: the by-person
// view is rare compared to the main list.
func (s *Service) PersonFilms(ctx context.Context, personID uuid.UUID, page, size int) (*FilmList, error) {
	total, films, err := s.backend.FilmsByActor(ctx, personID, page, size)
	if err != nil {
		return nil, err
	}
	return &FilmList{Count: total, Page: page, Size: size, Results: shortFilms(films)}, nil
}

// resolveListSort maps the genre/person sort parameter onto an index field
// and order. The default is name.raw descending; a leading dash selects
// descending explicitly, and unknown fields fall back to name.raw.
func resolveListSort(sort string) (string, string) {
	field, order := "name.raw", "desc"
	if sort == "" {
		return field, order
	}

	order = "asc"
	raw := sort
	if strings.HasPrefix(raw, "-") {
		order = "desc"
		raw = strings.TrimPrefix(raw, "-")
	}
	if f, ok := listSortFields[raw]; ok {
		field = f
	}
	return field, order
}

func orDefault(sort string) string {
	if sort == "" {
		return "default"
	}
	return sort
}

func orAll(search string) string {
	if search == "" {
		return "all"
	}
	return search
}
