package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/boardstack/boardstack/database"
)

// respondData writes the success envelope.
func respondData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "success",
		"data":   data,
	})
}

// respondError maps service errors onto HTTP status codes. Unknown errors are
// logged and reported as a plain server error.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, database.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, database.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, database.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Printf("Handler error: %v", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
	}
}
