package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/boardstack/boardstack/database"
)

// CreateColumn appends a column to a board.
func (h *DataHandler) CreateColumn(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	col, err := h.backend.CreateColumn(r.Context(), userID, mux.Vars(r)["id"], req.Title)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, col)
}

// UpdateColumn applies a partial update to a column.
func (h *DataHandler) UpdateColumn(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	var patch database.ColumnPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	col, err := h.backend.UpdateColumn(r.Context(), userID, mux.Vars(r)["id"], patch)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, col)
}

// DeleteColumn removes a column and its cards.
func (h *DataHandler) DeleteColumn(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	if err := h.backend.DeleteColumn(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, map[string]string{"id": mux.Vars(r)["id"]})
}

// ReorderColumns applies explicit positions to a board's columns after a drag.
func (h *DataHandler) ReorderColumns(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	var req struct {
		Orders map[string]int `json:"orders"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	boardID := mux.Vars(r)["id"]
	if err := h.dataService.ReorderColumns(r.Context(), userID, boardID, req.Orders); err != nil {
		respondError(w, err)
		return
	}
	h.backend.NotifyChange(r.Context(), database.EntityColumn, database.EventUpdate, boardID)
	respondData(w, map[string]string{"boardId": boardID})
}

// CreateCard appends a card to a column.
func (h *DataHandler) CreateCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	var nc database.NewCard
	if err := json.NewDecoder(r.Body).Decode(&nc); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	nc.ColumnID = mux.Vars(r)["id"]

	card, err := h.backend.CreateCard(r.Context(), userID, nc)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, card)
}

// UpdateCard applies a partial update to a card.
func (h *DataHandler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	var patch database.CardPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	card, err := h.backend.UpdateCard(r.Context(), userID, mux.Vars(r)["id"], patch)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, card)
}

// MoveCard moves a card to a target column, appending it unless an explicit
// order is given.
func (h *DataHandler) MoveCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	var req struct {
		ColumnID string `json:"columnId"`
		Order    *int   `json:"order,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	card, err := h.backend.MoveCard(r.Context(), userID, mux.Vars(r)["id"], req.ColumnID, req.Order)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, card)
}

// DeleteCard removes a card.
func (h *DataHandler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	if err := h.backend.DeleteCard(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, map[string]string{"id": mux.Vars(r)["id"]})
}

// ReorderCards applies explicit positions to cards after a drag, possibly
// across several columns.
func (h *DataHandler) ReorderCards(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	var req struct {
		Orders map[string]int `json:"orders"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if err := h.dataService.ReorderCards(r.Context(), userID, req.Orders); err != nil {
		respondError(w, err)
		return
	}
	notified := make(map[string]bool)
	for cardID := range req.Orders {
		boardID, err := h.dataService.CardBoardID(r.Context(), cardID)
		if err != nil || notified[boardID] {
			continue
		}
		notified[boardID] = true
		h.backend.NotifyChange(r.Context(), database.EntityCard, database.EventUpdate, boardID)
	}
	respondData(w, map[string]int{"count": len(req.Orders)})
}
