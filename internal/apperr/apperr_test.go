package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cause := errors.New("connection reset")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", New(ErrNotFound, "tts", "No text found"), http.StatusNotFound},
		{"range", New(ErrInvalidRange, "tts", "Snippet out of range"), http.StatusBadRequest},
		{"forbidden", New(ErrForbidden, "tts", "Voice mode disabled"), http.StatusForbidden},
		{"upstream", Wrap(ErrUpstream, "elevenlabs", cause), http.StatusBadGateway},
		{"io", Wrap(ErrIO, "store", cause), http.StatusInternalServerError},
		{"plain", cause, http.StatusInternalServerError},
		{"wrapped kind", fmt.Errorf("outer: %w", New(ErrNotFound, "x", "gone")), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestError_UnwrapCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(ErrIO, "store: update message", cause)
	if !errors.Is(err, ErrIO) {
		t.Error("errors.Is(err, ErrIO) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if got, want := err.Error(), "store: update message: store failure: disk full"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestDetail(t *testing.T) {
	if got := Detail(New(ErrForbidden, "tts", "Voice mode disabled")); got != "Voice mode disabled" {
		t.Errorf("Detail = %q", got)
	}
	if got := Detail(errors.New("raw")); got != "raw" {
		t.Errorf("Detail = %q, want raw", got)
	}
}
