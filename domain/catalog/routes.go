package catalog

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the catalog routes
func RegisterRoutes(e *echo.Echo, handler *Handler) {
	api := e.Group("/api/v1")

	films := api.Group("/films")
	films.GET("", handler.ListFilms)
	films.GET("/search", handler.SearchFilms)
	films.GET("/:id", handler.GetFilm)

	genres := api.Group("/genres")
	genres.GET("", handler.ListGenres)
	genres.GET("/:id", handler.GetGenre)

	persons := api.Group("/persons")
	persons.GET("", handler.ListPersons)
	persons.GET("/:id", handler.GetPerson)
	persons.GET("/:id/film", handler.PersonFilms)
}
