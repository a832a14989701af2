package catalog

import (
	"github.com/google/uuid"
)

// =============================================================================
// Response DTOs
// =============================================================================

// FilmGenre is a genre reference embedded in a film document.
type FilmGenre struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// FilmPerson is a person reference embedded in a film document.
type FilmPerson struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Film is the full movie representation served by GET /films/:id. It decodes
// straight from the movies index _source; the denormalised *_names fields are
// not part of the API shape and are dropped on decode.
type Film struct {
	ID          uuid.UUID    `json:"id"`
	IMDBRating  *float64     `json:"imdb_rating"`
	Genres      []FilmGenre  `json:"genres"`
	Title       string       `json:"title"`
	Description *string      `json:"description"`
	Directors   []FilmPerson `json:"directors"`
	Actors      []FilmPerson `json:"actors"`
	Writers     []FilmPerson `json:"writers"`
}

// FilmShort is the list-view projection of a film.
type FilmShort struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	IMDBRating *float64  `json:"imdb_rating"`
}

// FilmList is a page of films.
type FilmList struct {
	Count   int         `json:"count"`
	Page    int         `json:"page"`
	Size    int         `json:"size"`
	Results []FilmShort `json:"results"`
}

// Genre is a genre document.
type Genre struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// GenreList is a page of genres.
type GenreList struct {
	Count   int     `json:"count"`
	Page    int     `json:"page"`
	Size    int     `json:"size"`
	Results []Genre `json:"results"`
}

// Person is a person document.
type Person struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// PersonList is a page of persons.
type PersonList struct {
	Count   int      `json:"count"`
	Page    int      `json:"page"`
	Size    int      `json:"size"`
	Results []Person `json:"results"`
}

// =============================================================================
// Query parameters
// =============================================================================

// FilmsQuery carries the raw query parameters of GET /films.
type FilmsQuery struct {
	Sort    string
	GenreID *uuid.UUID
	Page    int
	Size    int
}

// ListQuery carries the raw query parameters of the genre and person lists.
type ListQuery struct {
	Sort   string
	Search string
	Page   int
	Size   int
}

// ListFilmsParams is the resolved film list request passed to the search
// backend: the sort field and order are already validated.
type ListFilmsParams struct {
	SortField string
	SortOrder string
	GenreID   *uuid.UUID
	Page      int
	Size      int
}

// ListParams is the resolved genre or person list request.
type ListParams struct {
	SortField string
	SortOrder string
	Search    string
	Page      int
	Size      int
}

func shortFilms(films []Film) []FilmShort {
	shorts := make([]FilmShort, 0, len(films))
	for _, f := range films {
		shorts = append(shorts, FilmShort{
			ID:         f.ID,
			Title:      f.Title,
			IMDBRating: f.IMDBRating,
		})
	}
	return shorts
}
