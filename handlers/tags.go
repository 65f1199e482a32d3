package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/boardstack/boardstack/database"
)

// ListTags returns the user's tags.
func (h *DataHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	tags, err := h.dataService.ListTags(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, tags)
}

// CreateTag returns the user's existing tag with the same name and color, or
// creates one.
func (h *DataHandler) CreateTag(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	tag, err := h.dataService.FindOrCreateTag(r.Context(), userID, req.Name, req.Color)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, tag)
}

// DeleteTag removes a tag from the user's library. Card joins go with it via
// the schema's cascade.
func (h *DataHandler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	if err := h.dataService.DeleteTag(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, map[string]string{"id": mux.Vars(r)["id"]})
}

// AddTagToCard attaches a tag to a card. Attaching an already attached tag is
// a no-op.
func (h *DataHandler) AddTagToCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	if err := h.backend.AddTagToCard(r.Context(), userID, vars["id"], vars["tagID"]); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, map[string]string{"cardId": vars["id"], "tagId": vars["tagID"]})
}

// RemoveTagFromCard detaches a tag from a card.
func (h *DataHandler) RemoveTagFromCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	if err := h.dataService.RemoveTagFromCard(r.Context(), userID, vars["id"], vars["tagID"]); err != nil {
		respondError(w, err)
		return
	}
	if boardID, err := h.dataService.CardBoardID(r.Context(), vars["id"]); err == nil {
		h.backend.NotifyChange(r.Context(), database.EntityCard, database.EventUpdate, boardID)
	}
	respondData(w, map[string]string{"cardId": vars["id"], "tagId": vars["tagID"]})
}
