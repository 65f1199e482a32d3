package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boardstack/boardstack/database"
)

// ExportPayload is the portable snapshot format.
type ExportPayload struct {
	Boards     []database.Board `json:"boards"`
	ExportDate time.Time        `json:"exportDate"`
	Version    string           `json:"version"`
}

const exportVersion = "1.0"

// Export serializes the session's full board tree.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	if err := s.Refetch(ctx); err != nil {
		return nil, err
	}
	payload := ExportPayload{
		Boards:     s.Boards(),
		ExportDate: time.Now().UTC(),
		Version:    exportVersion,
	}
	return json.MarshalIndent(payload, "", "  ")
}

// Import recreates boards from an export under the session's user. Every
// entity gets a fresh id; tags are de-duplicated against the user's existing
// tags by name and color, so importing the same snapshot twice does not
// multiply tags.
func (s *Store) Import(ctx context.Context, data []byte) error {
	var payload ExportPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("invalid import payload: %w", err)
	}

	for _, board := range payload.Boards {
		created, err := s.backend.CreateBoard(ctx, s.userID, board.Title, board.Description)
		if err != nil {
			return fmt.Errorf("failed to import board %q: %w", board.Title, err)
		}
		// The board comes seeded with the default columns; the import
		// carries its own.
		for _, col := range created.Columns {
			if err := s.backend.DeleteColumn(ctx, s.userID, col.ID); err != nil {
				return fmt.Errorf("failed to reset imported board %q: %w", board.Title, err)
			}
		}

		for _, col := range board.Columns {
			newCol, err := s.backend.CreateColumn(ctx, s.userID, created.ID, col.Title)
			if err != nil {
				return fmt.Errorf("failed to import column %q: %w", col.Title, err)
			}
			if col.Color != "" || col.IsCollapsed || col.CardLimit != nil {
				patch := database.ColumnPatch{}
				if col.Color != "" {
					color := col.Color
					patch.Color = &color
				}
				if col.IsCollapsed {
					collapsed := true
					patch.IsCollapsed = &collapsed
				}
				if col.CardLimit != nil {
					limit := *col.CardLimit
					patch.CardLimit = &limit
				}
				if _, err := s.backend.UpdateColumn(ctx, s.userID, newCol.ID, patch); err != nil {
					return fmt.Errorf("failed to import column %q: %w", col.Title, err)
				}
			}

			for _, card := range col.Cards {
				if err := s.importCard(ctx, newCol.ID, card); err != nil {
					return err
				}
			}
		}
	}
	return s.Refetch(ctx)
}

func (s *Store) importCard(ctx context.Context, columnID string, card database.Card) error {
	nc := database.NewCard{
		ColumnID:       columnID,
		Title:          card.Title,
		Description:    card.Description,
		DueDate:        card.DueDate,
		Priority:       card.Priority,
		EstimatedHours: card.EstimatedHours,
	}
	newCard, err := s.backend.CreateCard(ctx, s.userID, nc)
	if err != nil {
		return fmt.Errorf("failed to import card %q: %w", card.Title, err)
	}

	if card.IsCompleted {
		completed := true
		if _, err := s.backend.UpdateCard(ctx, s.userID, newCard.ID, database.CardPatch{IsCompleted: &completed}); err != nil {
			return fmt.Errorf("failed to import card %q: %w", card.Title, err)
		}
	}

	for _, tag := range card.Tags {
		found, err := s.backend.FindOrCreateTag(ctx, s.userID, tag.Name, tag.Color)
		if err != nil {
			return fmt.Errorf("failed to import tag %q: %w", tag.Name, err)
		}
		if err := s.backend.AddTagToCard(ctx, s.userID, newCard.ID, found.ID); err != nil {
			return fmt.Errorf("failed to attach tag %q: %w", tag.Name, err)
		}
	}
	return nil
}
