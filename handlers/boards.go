package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/boardstack/boardstack/database"
	"github.com/boardstack/boardstack/services"
	"github.com/boardstack/boardstack/store"
)

// DataHandler handles board data endpoints. Mutations that the store backend
// covers go through it so committed changes reach the realtime hub on exactly
// one path.
type DataHandler struct {
	dataService *database.DataService
	backend     *store.ServiceBackend
	hub         *services.Hub
}

func NewDataHandler(dataService *database.DataService, backend *store.ServiceBackend, hub *services.Hub) *DataHandler {
	return &DataHandler{
		dataService: dataService,
		backend:     backend,
		hub:         hub,
	}
}

// ListBoards returns the user's full aggregated board tree.
func (h *DataHandler) ListBoards(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	boards, err := h.dataService.ListBoardTrees(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, boards)
}

// CreateBoard creates a board seeded with the default columns.
func (h *DataHandler) CreateBoard(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	board, err := h.backend.CreateBoard(r.Context(), userID, req.Title, req.Description)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, board)
}

// UpdateBoard applies a partial update to a board.
func (h *DataHandler) UpdateBoard(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	var patch database.BoardPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	board, err := h.backend.UpdateBoard(r.Context(), userID, mux.Vars(r)["id"], patch)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, board)
}

// ArchiveBoard soft-deletes a board. Its contents stay in place server-side.
func (h *DataHandler) ArchiveBoard(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	if err := h.backend.ArchiveBoard(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, map[string]string{"id": mux.Vars(r)["id"]})
}

// InviteMember adds a user to a board, reactivating a previously removed
// membership when one exists.
func (h *DataHandler) InviteMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	var req struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	boardID := mux.Vars(r)["id"]
	if err := h.dataService.InviteMember(r.Context(), userID, boardID, req.UserID, req.Role); err != nil {
		respondError(w, err)
		return
	}
	h.backend.NotifyChange(r.Context(), database.EntityBoard, database.EventUpdate, boardID)
	respondData(w, map[string]string{"boardId": boardID, "userId": req.UserID})
}

// RemoveMember deactivates a board membership.
func (h *DataHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	boardID := vars["id"]
	if err := h.dataService.RemoveMember(r.Context(), userID, boardID, vars["userID"]); err != nil {
		respondError(w, err)
		return
	}
	h.backend.NotifyChange(r.Context(), database.EntityBoard, database.EventUpdate, boardID)
	respondData(w, map[string]string{"boardId": boardID})
}

// ListActivities returns a board's audit log, newest first.
func (h *DataHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	activities, err := h.dataService.ListActivities(r.Context(), userID, mux.Vars(r)["id"], limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, activities)
}
