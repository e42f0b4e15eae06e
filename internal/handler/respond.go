package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/gezin/internal/model"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error  string             `json:"error"`
	Status int                `json:"status"`
	Fields []model.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Status: status})
}

func writeValidation(w http.ResponseWriter, verr *model.ValidationError) {
	writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
		Error:  "validation failed",
		Status: http.StatusUnprocessableEntity,
		Fields: verr.Fields,
	})
}

// writeDecodeError maps a JSON decoding failure: a value of the wrong type
// for a known field is a validation failure, anything else is malformed.
func writeDecodeError(w http.ResponseWriter, err error) {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		writeValidation(w, &model.ValidationError{Fields: []model.FieldError{{
			Field:   typeErr.Field,
			Message: fmt.Sprintf("must be of type %s", jsonType(typeErr.Type.Kind().String())),
		}}})
		return
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if errors.As(err, &typeErr) {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}
	if errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "request body required")
		return
	}
	writeError(w, http.StatusBadRequest, "invalid JSON")
}

func jsonType(kind string) string {
	switch kind {
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64", "float32", "float64":
		return "number"
	case "bool":
		return "boolean"
	case "slice", "array":
		return "array"
	case "struct", "map":
		return "object"
	default:
		return kind
	}
}

// decodeJSON reads one JSON value from the request body into v and rejects
// trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

// internalError logs err and answers with a generic 500.
func internalError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(r.Context(), msg, "error", err, "path", r.URL.Path)
	writeError(w, http.StatusInternalServerError, msg)
}
