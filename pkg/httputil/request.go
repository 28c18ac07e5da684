package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// ErrBodyTooLarge is returned when the body exceeds the MaxBytesMiddleware limit
var ErrBodyTooLarge = errors.New("request body too large")

// ParseJSON decodes exactly one JSON document from the request body into
// dest. Unknown fields and trailing documents are rejected. Errors name the
// offending field or byte offset but never echo the body.
func ParseJSON(r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dest); err != nil {
		return describeDecodeError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON: trailing data after document")
	}
	return nil
}

func describeDecodeError(err error) error {
	var (
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
		tooLargeErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLargeErr):
		return ErrBodyTooLarge
	case errors.Is(err, io.EOF):
		return errors.New("invalid JSON: empty body")
	case errors.Is(err, io.ErrUnexpectedEOF):
		return errors.New("invalid JSON: truncated body")
	case errors.As(err, &syntaxErr):
		return fmt.Errorf("invalid JSON at offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		return fmt.Errorf("invalid JSON: %s must be a %s", typeErr.Field, typeErr.Type)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return fmt.Errorf("invalid JSON: unknown field %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
	}
	return errors.New("invalid JSON")
}

// ParseJSONOrError decodes JSON and writes 400, or 413 for an oversized
// body, on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	err := ParseJSON(r, dest)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrBodyTooLarge):
		WriteErrorMessage(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		WriteBadRequest(w, err.Error())
	}
	return false
}

// ParsePathStringOrError returns the mux path variable key, writing 400 when
// it is missing or blank
func ParsePathStringOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	val := strings.TrimSpace(mux.Vars(r)[key])
	if val == "" {
		WriteBadRequest(w, "missing path parameter: "+key)
		return "", false
	}
	return val, true
}

// Validator reports whether a value is acceptable and, if not, why
type Validator func() (bool, string)

// RequireNonEmpty rejects a blank value
func RequireNonEmpty(value, fieldName string) Validator {
	return func() (bool, string) {
		if strings.TrimSpace(value) == "" {
			return false, fieldName + " is required"
		}
		return true, ""
	}
}

// ValidateAll writes 400 with the first failing validator's message
func ValidateAll(w http.ResponseWriter, validators ...Validator) bool {
	for _, validate := range validators {
		if ok, msg := validate(); !ok {
			WriteBadRequest(w, msg)
			return false
		}
	}
	return true
}
