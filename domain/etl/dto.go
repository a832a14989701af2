package etl

import (
	"time"

	"github.com/google/uuid"
)

// Watermark keys persisted in the state file. Each source table owns one key;
// an absent key means "never synced, read from the beginning".
const (
	KeyFilmWorkTS       = "film_work_ts"
	KeyGenreTS          = "genre_ts"
	KeyPersonTS         = "person_ts"
	KeyGenreFilmWorkTS  = "genre_film_work_ts"
	KeyPersonFilmWorkTS = "person_film_work_ts"
)

// Person roles recognised by the transformer. Rows carrying any other role are
// dropped without error.
const (
	RoleActor    = "actor"
	RoleDirector = "director"
	RoleWriter   = "writer"
)

// GenreRow is a changed row from content.genre.
type GenreRow struct {
	ID        uuid.UUID `bun:"id"`
	Name      string    `bun:"name"`
	UpdatedAt time.Time `bun:"updated_at"`
}

// PersonRow is a changed row from content.person.
type PersonRow struct {
	ID        uuid.UUID `bun:"id"`
	FullName  string    `bun:"full_name"`
	UpdatedAt time.Time `bun:"updated_at"`
}

// FilmGenre is one element of the genre aggregate embedded in an assembled
// film work.
type FilmGenre struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// FilmPerson is one element of the person aggregate embedded in an assembled
// film work. Role comes from the person_film_work join row.
type FilmPerson struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
}

// FilmWorkRow is a fully assembled film work: the film_work row plus its
// genres and persons aggregated source-side into embedded arrays.
type FilmWorkRow struct {
	ID          uuid.UUID
	Title       string
	Description *string
	Rating      *float64
	UpdatedAt   time.Time
	Genres      []FilmGenre
	Persons     []FilmPerson
}

// Document is anything the sink can index. DocID is the Elasticsearch _id,
// the entity uuid in canonical lower-case hyphenated form.
type Document interface {
	DocID() string
}

// GenreRef is a nested genre entry inside a movie document.
type GenreRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// PersonRef is a nested person entry inside a movie document.
type PersonRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// MovieDocument is the denormalised film document indexed into movies.
// List fields are always present, never null.
type MovieDocument struct {
	ID             uuid.UUID   `json:"id"`
	IMDBRating     *float64    `json:"imdb_rating"`
	Genres         []GenreRef  `json:"genres"`
	Title          string      `json:"title"`
	Description    *string     `json:"description"`
	DirectorsNames []string    `json:"directors_names"`
	ActorsNames    []string    `json:"actors_names"`
	WritersNames   []string    `json:"writers_names"`
	Directors      []PersonRef `json:"directors"`
	Actors         []PersonRef `json:"actors"`
	Writers        []PersonRef `json:"writers"`
}

func (d MovieDocument) DocID() string { return d.ID.String() }

// GenreDocument is a genre dictionary entry indexed into genres.
type GenreDocument struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func (d GenreDocument) DocID() string { return d.ID.String() }

// PersonDocument is a person dictionary entry indexed into persons.
type PersonDocument struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func (d PersonDocument) DocID() string { return d.ID.String() }
