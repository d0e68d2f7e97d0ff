package handler

// RESPONSE HELPERS:
//
//	writeJSON(w, http.StatusOK, data)
//	writeError(w, logger, err)
//
// Every error response has the same shape:
//
//	{"error": "not_found", "message": "recipe not found with id 7"}
//
// plus "field" and "ids" when the error is bound to a request field, e.g.
//
//	{"error": "validation_error", "message": "duplicate ingredients: 3",
//	 "field": "ingredients", "ids": [3]}

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/auth"
	"github.com/sakif/foodgram/internal/repository"
	"github.com/sakif/foodgram/internal/service"
)

// maxBodyBytes bounds JSON request bodies. Base64 images dominate, so it
// sits above the default image limit.
const maxBodyBytes = 8 << 20

type ErrorResponse struct {
	Error   string  `json:"error"`
	Message string  `json:"message"`
	Field   string  `json:"field,omitempty"`
	IDs     []int64 `json:"ids,omitempty"`
}

// Page is the envelope of paginated listings.
type Page[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}

func newPage[T any](items []T, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Count: total, Results: items}
}

// writeJSON sets headers and status before the body: once the body is
// written, header changes are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// status maps an error kind to its HTTP status and machine-readable type.
//
// A NotFound bound to a request field (an unknown ingredient id, a
// favorite that was never added) is the client's input being wrong, so it
// is a 400; a NotFound for the addressed resource is a 404.
func status(err error, appErr *apperror.AppError) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		if appErr.Field != "" {
			return http.StatusBadRequest, "not_found"
		}
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrSchema):
		return http.StatusBadRequest, "schema_error"
	case errors.Is(err, apperror.ErrType):
		return http.StatusBadRequest, "type_error"
	case errors.Is(err, apperror.ErrValue):
		return http.StatusBadRequest, "value_error"
	case errors.Is(err, apperror.ErrDuplicate):
		return http.StatusBadRequest, "duplicate_error"
	case errors.Is(err, apperror.ErrAlreadyExists):
		return http.StatusBadRequest, "already_exists"
	case errors.Is(err, apperror.ErrSelfReference):
		return http.StatusBadRequest, "self_reference"
	case errors.Is(err, apperror.ErrEmptyCart):
		return http.StatusBadRequest, "empty_cart"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError translates a domain error into an HTTP response. The service
// layer knows nothing about status codes; this is the only place that does.
//
// Unknown errors become a generic 500. Their text may contain SQL or file
// paths, so it is logged and never sent.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		code, kind := status(err, appErr)
		if code < http.StatusInternalServerError {
			writeJSON(w, code, ErrorResponse{
				Error:   kind,
				Message: appErr.Message,
				Field:   appErr.Field,
				IDs:     appErr.IDs,
			})
			return
		}
	}

	logger.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a JSON body into dst. Numbers decode as json.Number so
// the ingredient validator can tell 2 from 2.5 from "2".
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &tooLarge):
			return apperror.Value("", "request body is too large")
		case errors.As(err, &typeErr):
			field := jsonFieldName(dst, typeErr.Field)
			if field == "" {
				return apperror.Type("", "request body has the wrong type")
			}
			return apperror.Type(field, fmt.Sprintf("%s has the wrong type", field))
		case errors.Is(err, io.EOF):
			return apperror.Schema("", "request body is empty")
		default:
			return apperror.Schema("", "request body is not valid JSON")
		}
	}
	return nil
}

// jsonFieldName maps the struct field named in a decode error to its JSON
// key on dst. Unknown names are returned as given.
func jsonFieldName(dst any, name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	t := reflect.TypeOf(dst)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return name
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if key == "" {
			key = f.Name
		}
		if f.Name == name || key == name {
			return key
		}
	}
	return name
}

// pathID parses a positive integer URL parameter. A malformed id can never
// match a row, so it is reported as not found.
func pathID(r *http.Request, name, resource string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.NotFoundMessage(resource + " not found")
	}
	return id, nil
}

// listOptions reads ?limit=&page= with page numbers starting at 1.
func listOptions(r *http.Request) repository.ListOptions {
	q := r.URL.Query()
	limit := service.DefaultListLimit
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = min(n, service.MaxListLimit)
	}
	page := 1
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		page = n
	}
	return repository.ListOptions{Limit: limit, Offset: (page - 1) * limit}
}

// optionalInt reads a non-negative integer query parameter; a missing or
// malformed value yields def.
func optionalInt(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 0 {
		return def
	}
	return n
}

// viewerID is the authenticated user or 0 for anonymous requests.
func viewerID(r *http.Request) int64 {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

// requireUser returns the authenticated user id. Routes behind RequireAuth
// always have one; the error guards handlers mounted without it.
func requireUser(r *http.Request) (int64, error) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return 0, apperror.Unauthorized("valid authentication required")
	}
	return id, nil
}
