package api

import (
	"encoding/json"
	"net/http"
)

// envelope wraps every response body. Exactly one of Data and Error is set.
type envelope struct {
	Data  any       `json:"data,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

func fail(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{Error: &apiError{Code: code, Message: message}})
}

func badRequest(w http.ResponseWriter, code, message string) {
	fail(w, http.StatusBadRequest, code, message)
}

func internalError(w http.ResponseWriter, message string) {
	fail(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}
