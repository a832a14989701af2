package catalog

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/kinohub/moviesearch/pkg/apperror"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// Handler handles HTTP requests for the movie catalog
type Handler struct {
	svc *Service
}

// NewHandler creates a new catalog handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// GetFilm handles GET /films/:id
// @Summary Film details
// @Tags films
// @Produce json
// @Success 200 {object} Film
// @Failure 404 {object} apperror.Error
// @Router /api/v1/films/{id} [get]
func (h *Handler) GetFilm(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.NewBadRequest("invalid film ID")
	}

	film, err := h.svc.FilmByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if film == nil {
		return apperror.ErrFilmNotFound
	}

	return c.JSON(http.StatusOK, film)
}

// ListFilms handles GET /films
// @Summary List films
// @Description Paginated film list, sortable by rating and filterable by genre
// @Tags films
// @Produce json
// @Param sort query string false "imdb_rating or -imdb_rating"
// @Param genre query string false "Genre UUID"
// @Param page query int false "Page number, from 1"
// @Param size query int false "Page size, 1-100"
// @Success 200 {object} FilmList
// @Failure 400 {object} apperror.Error
// @Router /api/v1/films [get]
func (h *Handler) ListFilms(c echo.Context) error {
	page, size, err := pageParams(c)
	if err != nil {
		return err
	}

	var genreID *uuid.UUID
	if raw := c.QueryParam("genre"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperror.NewBadRequest("invalid genre ID")
		}
		genreID = &id
	}

	list, err := h.svc.Films(c.Request().Context(), FilmsQuery{
		Sort:    c.QueryParam("sort"),
		GenreID: genreID,
		Page:    page,
		Size:    size,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, list)
}

// SearchFilms handles GET /films/search
// @Summary Full-text film search
// @Tags films
// @Produce json
// @Param query query string true "Search text"
// @Success 200 {object} FilmList
// @Failure 400 {object} apperror.Error
// @Router /api/v1/films/search [get]
func (h *Handler) SearchFilms(c echo.Context) error {
	query := c.QueryParam("query")
	if query == "" {
		return apperror.NewBadRequest("query is required")
	}

	page, size, err := pageParams(c)
	if err != nil {
		return err
	}

	list, err := h.svc.SearchFilms(c.Request().Context(), query, page, size)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, list)
}

// GetGenre handles GET /genres/:id
// @Summary Genre details
// @Tags genres
// @Produce json
// @Success 200 {object} Genre
// @Failure 404 {object} apperror.Error
// @Router /api/v1/genres/{id} [get]
func (h *Handler) GetGenre(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.NewBadRequest("invalid genre ID")
	}

	genre, err := h.svc.GenreByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if genre == nil {
		return apperror.ErrGenreNotFound
	}

	return c.JSON(http.StatusOK, genre)
}

// ListGenres handles GET /genres
// @Summary List genres
// @Tags genres
// @Produce json
// @Param sort query string false "name or -name"
// @Param search query string false "Name filter"
// @Param page query int false "Page number, from 1"
// @Param size query int false "Page size, 1-100"
// @Success 200 {object} GenreList
// @Failure 400 {object} apperror.Error
// @Router /api/v1/genres [get]
func (h *Handler) ListGenres(c echo.Context) error {
	page, size, err := pageParams(c)
	if err != nil {
		return err
	}

	list, err := h.svc.Genres(c.Request().Context(), ListQuery{
		Sort:   c.QueryParam("sort"),
		Search: c.QueryParam("search"),
		Page:   page,
		Size:   size,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, list)
}

// GetPerson handles GET /persons/:id
// @Summary Person details
// @Tags persons
// @Produce json
// @Success 200 {object} Person
// @Failure 404 {object} apperror.Error
// @Router /api/v1/persons/{id} [get]
func (h *Handler) GetPerson(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.NewBadRequest("invalid person ID")
	}

	person, err := h.svc.PersonByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if person == nil {
		return apperror.ErrPersonNotFound
	}

	return c.JSON(http.StatusOK, person)
}

// ListPersons handles GET /persons
// @Summary List persons
// @Tags persons
// @Produce json
// @Param sort query string false "name or -name"
// @Param search query string false "Name filter"
// @Param page query int false "Page number, from 1"
// @Param size query int false "Page size, 1-100"
// @Success 200 {object} PersonList
// @Failure 400 {object} apperror.Error
// @Router /api/v1/persons [get]
func (h *Handler) ListPersons(c echo.Context) error {
	page, size, err := pageParams(c)
	if err != nil {
		return err
	}

	list, err := h.svc.Persons(c.Request().Context(), ListQuery{
		Sort:   c.QueryParam("sort"),
		Search: c.QueryParam("search"),
		Page:   page,
		Size:   size,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, list)
}

// PersonFilms handles GET /persons/:id/film
// @Summary Films a person acted in
// @Tags persons
// @Produce json
// @Success 200 {object} FilmList
// @Failure 404 {object} apperror.Error
// @Router /api/v1/persons/{id}/film [get]
func (h *Handler) PersonFilms(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.NewBadRequest("invalid person ID")
	}

	page, size, err := pageParams(c)
	if err != nil {
		return err
	}

	list, err := h.svc.PersonFilms(c.Request().Context(), id, page, size)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, list)
}

// pageParams parses and validates the page/size query parameters shared by
// every list endpoint.
func pageParams(c echo.Context) (int, int, error) {
	page := 1
	if raw := c.QueryParam("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, apperror.NewBadRequest("page must be an integer")
		}
		page = v
	}
	if page < 1 {
		return 0, 0, apperror.NewBadRequest("page must be at least 1")
	}

	size := defaultPageSize
	if raw := c.QueryParam("size"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, apperror.NewBadRequest("size must be an integer")
		}
		size = v
	}
	if size < 1 || size > maxPageSize {
		return 0, 0, apperror.NewBadRequest("size must be between 1 and 100")
	}

	return page, size, nil
}
