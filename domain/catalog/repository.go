package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"

	"github.com/kinohub/moviesearch/internal/config"
	"github.com/kinohub/moviesearch/pkg/logger"
)

// Repository reads catalog documents from Elasticsearch. All list queries
// page with from/size and sort with missing values last, so films without a
// rating sink to the bottom regardless of sort direction.
type Repository struct {
	es  *elasticsearch.Client
	log *slog.Logger

	moviesIndex  string
	genresIndex  string
	personsIndex string
}

// NewRepository creates a catalog repository over the shared Elasticsearch client.
func NewRepository(client *elasticsearch.Client, cfg *config.Config, log *slog.Logger) *Repository {
	return &Repository{
		es:           client,
		log:          log.With(logger.Scope("catalog.repo")),
		moviesIndex:  cfg.Elastic.MoviesIndex,
		genresIndex:  cfg.Elastic.GenresIndex,
		personsIndex: cfg.Elastic.PersonsIndex,
	}
}

// GetFilm fetches a single movie document by id. A missing document returns
// (nil, nil): absence is not an error at this layer.
func (r *Repository) GetFilm(ctx context.Context, id uuid.UUID) (*Film, error) {
	var film Film
	found, err := r.getDoc(ctx, r.moviesIndex, id, &film)
	if err != nil || !found {
		return nil, err
	}
	return &film, nil
}

// ListFilms returns a page of movies, optionally filtered to one genre via a
// nested term on genres.id.
func (r *Repository) ListFilms(ctx context.Context, p ListFilmsParams) (int, []Film, error) {
	query := map[string]any{"match_all": map[string]any{}}
	if p.GenreID != nil {
		query = map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					nestedTerm("genres", "genres.id", p.GenreID.String()),
				},
			},
		}
	}

	body := map[string]any{
		"from":  fromOffset(p.Page, p.Size),
		"size":  p.Size,
		"query": query,
		"sort":  sortClause(p.SortField, p.SortOrder),
	}

	total, sources, err := r.search(ctx, r.moviesIndex, body)
	if err != nil {
		return 0, nil, err
	}
	films, err := decodeHits[Film](sources)
	return total, films, err
}

// SearchFilms runs a full-text multi-match over the movie fields, with the
// title weighted three times as heavily as the rest.
func (r *Repository) SearchFilms(ctx context.Context, query string, page, size int) (int, []Film, error) {
	body := map[string]any{
		"from": fromOffset(page, size),
		"size": size,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query": query,
				"fields": []string{
					"title^3",
					"description",
					"actors_names",
					"directors_names",
					"writers_names",
				},
			},
		},
	}

	total, sources, err := r.search(ctx, r.moviesIndex, body)
	if err != nil {
		return 0, nil, err
	}
	films, err := decodeHits[Film](sources)
	return total, films, err
}

// FilmsByActor returns the movies a person acted in, via a nested term on
// actors.id.
func (r *Repository) FilmsByActor(ctx context.Context, personID uuid.UUID, page, size int) (int, []Film, error) {
	body := map[string]any{
		"from": fromOffset(page, size),
		"size": size,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					nestedTerm("actors", "actors.id", personID.String()),
				},
			},
		},
	}

	total, sources, err := r.search(ctx, r.moviesIndex, body)
	if err != nil {
		return 0, nil, err
	}
	films, err := decodeHits[Film](sources)
	return total, films, err
}

// GetGenre fetches a single genre document by id; (nil, nil) when missing.
func (r *Repository) GetGenre(ctx context.Context, id uuid.UUID) (*Genre, error) {
	var genre Genre
	found, err := r.getDoc(ctx, r.genresIndex, id, &genre)
	if err != nil || !found {
		return nil, err
	}
	return &genre, nil
}

// ListGenres returns a page of genres, optionally narrowed by a name match.
func (r *Repository) ListGenres(ctx context.Context, p ListParams) (int, []Genre, error) {
	total, sources, err := r.search(ctx, r.genresIndex, dictionaryListBody(p))
	if err != nil {
		return 0, nil, err
	}
	genres, err := decodeHits[Genre](sources)
	return total, genres, err
}

// GetPerson fetches a single person document by id; (nil, nil) when missing.
func (r *Repository) GetPerson(ctx context.Context, id uuid.UUID) (*Person, error) {
	var person Person
	found, err := r.getDoc(ctx, r.personsIndex, id, &person)
	if err != nil || !found {
		return nil, err
	}
	return &person, nil
}

// ListPersons returns a page of persons, optionally narrowed by a name match.
func (r *Repository) ListPersons(ctx context.Context, p ListParams) (int, []Person, error) {
	total, sources, err := r.search(ctx, r.personsIndex, dictionaryListBody(p))
	if err != nil {
		return 0, nil, err
	}
	persons, err := decodeHits[Person](sources)
	return total, persons, err
}

// getDoc performs a document GET and decodes _source into dest. Returns
// found=false on 404 without an error.
func (r *Repository) getDoc(ctx context.Context, index string, id uuid.UUID, dest any) (bool, error) {
	res, err := r.es.Get(index, id.String(), r.es.Get.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("get %s/%s: %w", index, id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.IsError() {
		return false, fmt.Errorf("get %s/%s: %s", index, id, res.String())
	}

	var doc struct {
		Source json.RawMessage `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", index, id, err)
	}
	if err := json.Unmarshal(doc.Source, dest); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", index, id, err)
	}
	return true, nil
}

// search submits a query body to one index and returns the total hit count
// and the raw _source of each hit.
func (r *Repository) search(ctx context.Context, index string, body map[string]any) (int, []json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("encode query for %s: %w", index, err)
	}

	res, err := r.es.Search(
		r.es.Search.WithContext(ctx),
		r.es.Search.WithIndex(index),
		r.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("search %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, nil, fmt.Errorf("search %s: %s", index, res.String())
	}

	var sr struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return 0, nil, fmt.Errorf("decode search response from %s: %w", index, err)
	}

	sources := make([]json.RawMessage, 0, len(sr.Hits.Hits))
	for _, hit := range sr.Hits.Hits {
		sources = append(sources, hit.Source)
	}
	return sr.Hits.Total.Value, sources, nil
}

// dictionaryListBody builds the shared genre/person list query: a name match
// with AND semantics when searching, match_all otherwise.
func dictionaryListBody(p ListParams) map[string]any {
	query := map[string]any{"match_all": map[string]any{}}
	if p.Search != "" {
		query = map[string]any{
			"match": map[string]any{
				"name": map[string]any{"query": p.Search, "operator": "and"},
			},
		}
	}

	return map[string]any{
		"from":  fromOffset(p.Page, p.Size),
		"size":  p.Size,
		"query": query,
		"sort":  sortClause(p.SortField, p.SortOrder),
	}
}

func nestedTerm(path, field, value string) map[string]any {
	return map[string]any{
		"nested": map[string]any{
			"path":  path,
			"query": map[string]any{"term": map[string]any{field: value}},
		},
	}
}

func sortClause(field, order string) []map[string]any {
	return []map[string]any{
		{field: map[string]any{"order": order, "missing": "_last"}},
	}
}

func fromOffset(page, size int) int {
	return (page - 1) * size
}

func decodeHits[T any](sources []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(sources))
	for _, src := range sources {
		var v T
		if err := json.Unmarshal(src, &v); err != nil {
			return nil, fmt.Errorf("decode hit: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}
