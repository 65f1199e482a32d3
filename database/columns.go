package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CreateColumn appends a column to a board. Without an explicit position the
// new column goes after the current maximum (first column gets 0).
func (s *DataService) CreateColumn(ctx context.Context, userID, boardID, title string) (*Column, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("column title required: %w", ErrValidation)
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
		"SELECT MAX(position) FROM columns WHERE board_id = ?", boardID); err != nil {
		return nil, fmt.Errorf("failed to compute column order: %w", err)
	}
	order := 0
	if maxOrder.Valid {
		order = int(maxOrder.Int64) + 1
	}

	col := &Column{
		ID:      uuid.New().String(),
		Title:   strings.TrimSpace(title),
		BoardID: boardID,
		Order:   order,
		Cards:   []Card{},
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO columns (id, title, board_id, position) VALUES (?, ?, ?, ?)",
		col.ID, col.Title, col.BoardID, col.Order)
	if err != nil {
		return nil, fmt.Errorf("failed to create column: %w", err)
	}

	if err := logActivity(ctx, tx, boardID, userID, "created", "column", col.ID,
		map[string]any{"title": col.Title}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("transaction commit failed: %w", err)
	}
	return col, nil
}

// UpdateColumn applies a partial update to a column.
func (s *DataService) UpdateColumn(ctx context.Context, userID, columnID string, patch ColumnPatch) (*Column, error) {
	boardID, err := s.boardIDForColumn(ctx, columnID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEditor(ctx, boardID, userID); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return s.getColumn(ctx, columnID)
	}

	sets := []string{}
	args := []any{}
	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return nil, fmt.Errorf("column title required: %w", ErrValidation)
		}
		sets = append(sets, "title = ?")
		args = append(args, strings.TrimSpace(*patch.Title))
	}
	if patch.Color != nil {
		sets = append(sets, "color = ?")
		args = append(args, *patch.Color)
	}
	if patch.IsCollapsed != nil {
		sets = append(sets, "is_collapsed = ?")
		args = append(args, *patch.IsCollapsed)
	}
	if patch.CardLimit != nil {
		sets = append(sets, "card_limit = ?")
		args = append(args, *patch.CardLimit)
	}
	if patch.Order != nil {
		sets = append(sets, "position = ?")
		args = append(args, *patch.Order)
	}
	args = append(args, columnID)

	_, err = s.db.ExecContext(ctx,
		"UPDATE columns SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update column: %w", err)
	}

	s.logActivityStandalone(ctx, boardID, userID, "updated", "column", columnID, nil)
	return s.getColumn(ctx, columnID)
}

// DeleteColumn removes a column. Its cards and their tag joins go with it
// via the schema's cascades.
func (s *DataService) DeleteColumn(ctx context.Context, userID, columnID string) error {
	boardID, err := s.boardIDForColumn(ctx, columnID)
	if err != nil {
		return err
	}
	if err := s.requireEditor(ctx, boardID, userID); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM columns WHERE id = ?", columnID)
	if err != nil {
		return fmt.Errorf("failed to delete column: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("column %s: %w", columnID, ErrNotFound)
	}
	s.logActivityStandalone(ctx, boardID, userID, "deleted", "column", columnID, nil)
	return nil
}

// ReorderColumns applies an explicit order to a set of columns after a drag.
func (s *DataService) ReorderColumns(ctx context.Context, userID, boardID string, orders map[string]int) error {
	if err := s.requireEditor(ctx, boardID, userID); err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not start transaction: %w", err)
	}
	defer tx.Rollback()

	for columnID, order := range orders {
		_, err := tx.ExecContext(ctx,
			"UPDATE columns SET position = ? WHERE id = ? AND board_id = ?",
			order, columnID, boardID)
		if err != nil {
			return fmt.Errorf("failed to reorder column %s: %w", columnID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transaction commit failed: %w", err)
	}
	return nil
}

func (s *DataService) getColumn(ctx context.Context, columnID string) (*Column, error) {
	var col Column
	err := s.db.GetContext(ctx, &col, "SELECT * FROM columns WHERE id = ?", columnID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("column %s: %w", columnID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get column: %w", err)
	}
	col.Cards = []Card{}
	return &col, nil
}

// ColumnBoardID resolves the board a column belongs to.
func (s *DataService) ColumnBoardID(ctx context.Context, columnID string) (string, error) {
	return s.boardIDForColumn(ctx, columnID)
}

// CardBoardID resolves the board a card belongs to.
func (s *DataService) CardBoardID(ctx context.Context, cardID string) (string, error) {
	card, err := s.getCard(ctx, cardID)
	if err != nil {
		return "", err
	}
	return s.boardIDForColumn(ctx, card.ColumnID)
}

func (s *DataService) boardIDForColumn(ctx context.Context, columnID string) (string, error) {
	var boardID string
	err := s.db.GetContext(ctx, &boardID, "SELECT board_id FROM columns WHERE id = ?", columnID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("column %s: %w", columnID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve column board: %w", err)
	}
	return boardID, nil
}
