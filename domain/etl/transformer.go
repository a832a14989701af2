package etl

// Transformations from assembled source rows to sink documents. All of them
// are pure: no I/O, no clock, safe to re-run on the same input.

// TransformGenre maps a genre row to its dictionary document.
func TransformGenre(row GenreRow) GenreDocument {
	return GenreDocument{ID: row.ID, Name: row.Name}
}

// TransformPerson maps a person row to its dictionary document.
func TransformPerson(row PersonRow) PersonDocument {
	return PersonDocument{ID: row.ID, Name: row.FullName}
}

// TransformFilmWork maps an assembled film work to its movie document.
// Persons are partitioned by role; roles other than actor, director and
// writer are dropped. All list fields preserve the input order and are never
// nil, so re-indexing an unchanged film produces a byte-identical document.
func TransformFilmWork(row FilmWorkRow) MovieDocument {
	directors := personsWithRole(row.Persons, RoleDirector)
	actors := personsWithRole(row.Persons, RoleActor)
	writers := personsWithRole(row.Persons, RoleWriter)

	genres := make([]GenreRef, len(row.Genres))
	for i, g := range row.Genres {
		genres[i] = GenreRef{ID: g.ID, Name: g.Name}
	}

	return MovieDocument{
		ID:             row.ID,
		IMDBRating:     row.Rating,
		Genres:         genres,
		Title:          row.Title,
		Description:    row.Description,
		DirectorsNames: uniqueNames(directors),
		ActorsNames:    uniqueNames(actors),
		WritersNames:   uniqueNames(writers),
		Directors:      personRefs(directors),
		Actors:         personRefs(actors),
		Writers:        personRefs(writers),
	}
}

func personsWithRole(persons []FilmPerson, role string) []FilmPerson {
	out := make([]FilmPerson, 0, len(persons))
	for _, p := range persons {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out
}

// uniqueNames keeps the first occurrence of each full name.
func uniqueNames(persons []FilmPerson) []string {
	names := make([]string, 0, len(persons))
	seen := make(map[string]struct{}, len(persons))
	for _, p := range persons {
		if _, ok := seen[p.FullName]; ok {
			continue
		}
		seen[p.FullName] = struct{}{}
		names = append(names, p.FullName)
	}
	return names
}

func personRefs(persons []FilmPerson) []PersonRef {
	refs := make([]PersonRef, len(persons))
	for i, p := range persons {
		refs[i] = PersonRef{ID: p.ID, Name: p.FullName}
	}
	return refs
}
