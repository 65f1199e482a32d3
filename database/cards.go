package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewCard carries the fields accepted when creating a card.
type NewCard struct {
	ColumnID       string   `json:"columnId"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	DueDate        *string  `json:"dueDate,omitempty"`
	AssignedUserID *string  `json:"assignedUserId,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	EstimatedHours *float64 `json:"estimatedHours,omitempty"`
}

// CreateCard inserts a card at the end of its column: order is the current
// sibling maximum plus one, with an empty column treated as max -1.
func (s *DataService) CreateCard(ctx context.Context, userID string, nc NewCard) (*Card, error) {
	if strings.TrimSpace(nc.Title) == "" {
		return nil, fmt.Errorf("card title required: %w", ErrValidation)
	}
	if nc.Priority == "" {
		nc.Priority = PriorityMedium
	}
	if !ValidPriority(nc.Priority) {
		return nil, fmt.Errorf("invalid priority %q: %w", nc.Priority, ErrValidation)
	}

	boardID, err := s.boardIDForColumn(ctx, nc.ColumnID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEditor(ctx, boardID, userID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not start transaction: %w", err)
	}
	defer tx.Rollback()

	var maxOrder sql.NullInt64
	if err := tx.GetContext(ctx, &maxOrder,
		"SELECT MAX(position) FROM cards WHERE column_id = ?", nc.ColumnID); err != nil {
		return nil, fmt.Errorf("failed to compute card order: %w", err)
	}
	order := 0
	if maxOrder.Valid {
		order = int(maxOrder.Int64) + 1
	}

	now := time.Now().UTC()
	card := &Card{
		ID:             uuid.New().String(),
		Title:          strings.TrimSpace(nc.Title),
		Description:    nc.Description,
		ColumnID:       nc.ColumnID,
		Order:          order,
		DueDate:        nc.DueDate,
		AssignedUserID: nc.AssignedUserID,
		Priority:       nc.Priority,
		EstimatedHours: nc.EstimatedHours,
		CreatedAt:      now,
		UpdatedAt:      now,
		Tags:           []Tag{},
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cards (id, title, description, column_id, position, due_date,
			assigned_user_id, priority, estimated_hours, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		card.ID, card.Title, card.Description, card.ColumnID, card.Order, card.DueDate,
		card.AssignedUserID, card.Priority, card.EstimatedHours, card.CreatedAt, card.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create card: %w", err)
	}

	if err := logActivity(ctx, tx, boardID, userID, "created", "card", card.ID,
		map[string]any{"title": card.Title}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("transaction commit failed: %w", err)
	}
	return card, nil
}

// UpdateCard applies a partial update. Completing a card stamps completedAt;
// un-completing clears it.
func (s *DataService) UpdateCard(ctx context.Context, userID, cardID string, patch CardPatch) (*Card, error) {
	card, err := s.getCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	boardID, err := s.boardIDForColumn(ctx, card.ColumnID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEditor(ctx, boardID, userID); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return card, nil
	}

	now := time.Now().UTC()
	sets := []string{"updated_at = ?"}
	args := []any{now}
	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return nil, fmt.Errorf("card title required: %w", ErrValidation)
		}
		sets = append(sets, "title = ?")
		args = append(args, strings.TrimSpace(*patch.Title))
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, *patch.DueDate)
	}
	if patch.AssignedUserID != nil {
		sets = append(sets, "assigned_user_id = ?")
		if *patch.AssignedUserID == "" {
			args = append(args, nil)
		} else {
			args = append(args, *patch.AssignedUserID)
		}
	}
	if patch.Priority != nil {
		if !ValidPriority(*patch.Priority) {
			return nil, fmt.Errorf("invalid priority %q: %w", *patch.Priority, ErrValidation)
		}
		sets = append(sets, "priority = ?")
		args = append(args, *patch.Priority)
	}
	if patch.EstimatedHours != nil {
		sets = append(sets, "estimated_hours = ?")
		args = append(args, *patch.EstimatedHours)
	}
	if patch.ActualHours != nil {
		sets = append(sets, "actual_hours = ?")
		args = append(args, *patch.ActualHours)
	}
	if patch.IsCompleted != nil && *patch.IsCompleted != card.IsCompleted {
		sets = append(sets, "is_completed = ?", "completed_at = ?")
		if *patch.IsCompleted {
			args = append(args, true, now)
		} else {
			args = append(args, false, nil)
		}
	}
	args = append(args, cardID)

	_, err = s.db.ExecContext(ctx,
		"UPDATE cards SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update card: %w", err)
	}

	s.logActivityStandalone(ctx, boardID, userID, "updated", "card", cardID, nil)
	return s.getCard(ctx, cardID)
}

// MoveCard moves a card to a column. Without an explicit order the card goes
// to the end of the target column. Moving a card onto its own column is safe:
// the row is patched in place, never duplicated.
func (s *DataService) MoveCard(ctx context.Context, userID, cardID, targetColumnID string, explicitOrder *int) (*Card, error) {
	card, err := s.getCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	fromBoardID, err := s.boardIDForColumn(ctx, card.ColumnID)
	if err != nil {
		return nil, err
	}
	toBoardID, err := s.boardIDForColumn(ctx, targetColumnID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEditor(ctx, fromBoardID, userID); err != nil {
		return nil, err
	}
	if toBoardID != fromBoardID {
		if err := s.requireEditor(ctx, toBoardID, userID); err != nil {
			return nil, err
		}
	}

	order := 0
	if explicitOrder != nil {
		order = *explicitOrder
	} else if targetColumnID == card.ColumnID {
		// No-op move: keep the card where it sits.
		order = card.Order
	} else {
		var maxOrder sql.NullInt64
		if err := s.db.GetContext(ctx, &maxOrder,
			"SELECT MAX(position) FROM cards WHERE column_id = ?", targetColumnID); err != nil {
			return nil, fmt.Errorf("failed to compute card order: %w", err)
		}
		if maxOrder.Valid {
			order = int(maxOrder.Int64) + 1
		}
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE cards SET column_id = ?, position = ?, updated_at = ? WHERE id = ?",
		targetColumnID, order, time.Now().UTC(), cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to move card: %w", err)
	}

	s.logActivityStandalone(ctx, toBoardID, userID, "moved", "card", cardID,
		map[string]any{"from": card.ColumnID, "to": targetColumnID})
	return s.getCard(ctx, cardID)
}

// DeleteCard removes a card. Tag joins go with it via the schema's cascade.
func (s *DataService) DeleteCard(ctx context.Context, userID, cardID string) error {
	card, err := s.getCard(ctx, cardID)
	if err != nil {
		return err
	}
	boardID, err := s.boardIDForColumn(ctx, card.ColumnID)
	if err != nil {
		return err
	}
	if err := s.requireEditor(ctx, boardID, userID); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM cards WHERE id = ?", cardID); err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}
	s.logActivityStandalone(ctx, boardID, userID, "deleted", "card", cardID,
		map[string]any{"title": card.Title})
	return nil
}

// ReorderCards applies explicit orders to a set of cards after a drag. All
// affected boards must be editable by the user.
func (s *DataService) ReorderCards(ctx context.Context, userID string, orders map[string]int) error {
	boards := make(map[string]bool)
	for cardID := range orders {
		card, err := s.getCard(ctx, cardID)
		if err != nil {
			return err
		}
		boardID, err := s.boardIDForColumn(ctx, card.ColumnID)
		if err != nil {
			return err
		}
		boards[boardID] = true
	}
	for boardID := range boards {
		if err := s.requireEditor(ctx, boardID, userID); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not start transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for cardID, order := range orders {
		_, err := tx.ExecContext(ctx,
			"UPDATE cards SET position = ?, updated_at = ? WHERE id = ?", order, now, cardID)
		if err != nil {
			return fmt.Errorf("failed to reorder card %s: %w", cardID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transaction commit failed: %w", err)
	}
	return nil
}

func (s *DataService) getCard(ctx context.Context, cardID string) (*Card, error) {
	var card Card
	err := s.db.GetContext(ctx, &card, "SELECT * FROM cards WHERE id = ?", cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("card %s: %w", cardID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	card.Tags = []Tag{}
	return &card, nil
}
