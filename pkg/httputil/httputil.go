package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rentora/rentora-backend/pkg/errors"
	"github.com/rentora/rentora-backend/pkg/i18n"
)

// Response is the envelope every inventory endpoint answers with
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorBody carries the error code, a localized message and per-field details
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Meta is list pagination
type Meta struct {
	Page       int   `json:"page,omitempty"`
	PerPage    int   `json:"per_page,omitempty"`
	Total      int64 `json:"total,omitempty"`
	TotalPages int   `json:"total_pages,omitempty"`
}

const (
	defaultPerPage = 50
	maxPerPage     = 200
)

func write(w http.ResponseWriter, statusCode int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func success(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// JSON sends data in the envelope
func JSON(w http.ResponseWriter, statusCode int, data any) {
	write(w, statusCode, Response{Success: success(statusCode), Data: data})
}

// JSONWithMeta sends a page of data with its pagination
func JSONWithMeta(w http.ResponseWriter, statusCode int, data any, meta *Meta) {
	write(w, statusCode, Response{Success: success(statusCode), Data: data, Meta: meta})
}

// ErrorLocalized sends err with its message in the request's locale.
// Anything that is not an AppError becomes INTERNAL_ERROR; its text stays
// in the access log and never reaches the client.
func ErrorLocalized(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		noteError(r.Context(), "INTERNAL_ERROR", err)
		write(w, http.StatusInternalServerError, Response{Error: &ErrorBody{
			Code:    "INTERNAL_ERROR",
			Message: i18n.LocalizerFromContext(r.Context()).T("errors.internal"),
		}})
		return
	}

	noteError(r.Context(), appErr.Code, err)
	write(w, appErr.StatusCode, Response{Error: &ErrorBody{
		Code:    appErr.Code,
		Message: appErr.Localize(r.Context()),
		Details: appErr.Details,
	}})
}

// NoContent sends a 204 No Content response
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Created sends a 201 Created response
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// DecodeJSONLocalized decodes the request body, answering BAD_REQUEST on malformed JSON
func DecodeJSONLocalized(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errors.BadRequest(i18n.LocalizerFromContext(r.Context()).T("errors.invalid_json"))
	}
	return nil
}

// PathUUID reads a chi URL parameter and checks that it is a UUID
func PathUUID(r *http.Request, name string) (string, error) {
	raw := chi.URLParam(r, name)
	if _, err := uuid.Parse(raw); err != nil {
		return "", errors.FieldValidation(name, "must be a valid UUID")
	}
	return raw, nil
}

// Pagination reads page and per_page query parameters with bounds
func Pagination(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}
	return page, perPage
}

// NewMeta builds pagination metadata
func NewMeta(page, perPage int, total int64) *Meta {
	pages := int((total + int64(perPage) - 1) / int64(perPage))
	return &Meta{Page: page, PerPage: perPage, Total: total, TotalPages: pages}
}
