package apperror

import (
	"errors"
	"net/http"
	"testing"
)

func TestErrorError(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "without internal error",
			err:      New(http.StatusNotFound, "film_not_found", "Film not found"),
			expected: "film_not_found: Film not found",
		},
		{
			name:     "with internal error",
			err:      ErrSearch.WithInternal(errors.New("dial tcp: connection refused")),
			expected: "search_error: Search backend operation failed (dial tcp: connection refused)",
		},
		{
			name:     "empty message",
			err:      New(http.StatusBadRequest, "bad_request", ""),
			expected: "bad_request: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("index missing")

	if got := ErrNotFound.Unwrap(); got != nil {
		t.Errorf("Unwrap() = %v, want nil", got)
	}

	wrapped := ErrSearch.WithInternal(cause)
	if !errors.Is(wrapped, cause) {
		t.Errorf("errors.Is(wrapped, cause) = false, want true")
	}
}

func TestWithMessageKeepsStatus(t *testing.T) {
	err := ErrFilmNotFound.WithMessage("film '42' not found")
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusNotFound)
	}
	if err.Code != "film_not_found" {
		t.Errorf("Code = %q, want film_not_found", err.Code)
	}
	if err.Message != "film '42' not found" {
		t.Errorf("Message = %q", err.Message)
	}
	// The shared value must stay untouched.
	if ErrFilmNotFound.Message != "Film not found" {
		t.Errorf("ErrFilmNotFound mutated: %q", ErrFilmNotFound.Message)
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("genre", "6c162475-c7ed-4461-9184-001ef3d9f26e")
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d, want 404", err.HTTPStatus)
	}
	want := "genre '6c162475-c7ed-4461-9184-001ef3d9f26e' not found"
	if err.Message != want {
		t.Errorf("Message = %q, want %q", err.Message, want)
	}
}

func TestNewInternal(t *testing.T) {
	cause := errors.New("boom")
	err := NewInternal("cache write failed", cause)
	if err.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d, want 500", err.HTTPStatus)
	}
	if !errors.Is(err, cause) {
		t.Error("NewInternal should wrap the cause")
	}
}
