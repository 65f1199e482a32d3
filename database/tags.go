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

// NormalizeColor canonicalizes a color string for tag equality. "#EF4444"
// and " #ef4444 " compare equal; nothing beyond case and whitespace is
// normalized.
func NormalizeColor(color string) string {
	return strings.ToLower(strings.TrimSpace(color))
}

// ListTags returns the user's tags ordered by name.
func (s *DataService) ListTags(ctx context.Context, userID string) ([]Tag, error) {
	var tags []Tag
	err := s.db.SelectContext(ctx, &tags,
		"SELECT * FROM tags WHERE user_id = ? ORDER BY name, created_at", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

// FindOrCreateTag returns the user's tag matching name and color, creating it
// if absent. Matching is case-insensitive on name and normalized on color, so
// repeated imports of the same tag reuse one row.
func (s *DataService) FindOrCreateTag(ctx context.Context, userID, name, color string) (*Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tag name required: %w", ErrValidation)
	}
	color = NormalizeColor(color)

	var tag Tag
	err := s.db.GetContext(ctx, &tag, `
		SELECT * FROM tags
		WHERE user_id = ? AND LOWER(name) = LOWER(?) AND LOWER(TRIM(color)) = ?`,
		userID, name, color)
	if err == nil {
		return &tag, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up tag: %w", err)
	}

	tag = Tag{
		ID:        uuid.New().String(),
		Name:      name,
		Color:     color,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO tags (id, name, color, user_id, created_at) VALUES (?, ?, ?, ?, ?)",
		tag.ID, tag.Name, tag.Color, tag.UserID, tag.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}
	return &tag, nil
}

// DeleteTag removes a tag and all its card associations.
func (s *DataService) DeleteTag(ctx context.Context, userID, tagID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM tags WHERE id = ? AND user_id = ?", tagID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tag %s: %w", tagID, ErrNotFound)
	}
	return nil
}

// AddTagToCard associates a tag with a card. Adding an existing association
// is a no-op.
func (s *DataService) AddTagToCard(ctx context.Context, userID, cardID, tagID string) error {
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

	var n int
	if err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM tags WHERE id = ? AND user_id = ?", tagID, userID); err != nil {
		return fmt.Errorf("failed to check tag: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("tag %s: %w", tagID, ErrNotFound)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO card_tags (card_id, tag_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(card_id, tag_id) DO NOTHING`,
		cardID, tagID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to tag card: %w", err)
	}
	return nil
}

// RemoveTagFromCard drops a card-tag association if present.
func (s *DataService) RemoveTagFromCard(ctx context.Context, userID, cardID, tagID string) error {
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

	_, err = s.db.ExecContext(ctx,
		"DELETE FROM card_tags WHERE card_id = ? AND tag_id = ?", cardID, tagID)
	if err != nil {
		return fmt.Errorf("failed to untag card: %w", err)
	}
	return nil
}
