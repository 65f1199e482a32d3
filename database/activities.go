package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// logActivity appends an audit record inside the caller's transaction.
func logActivity(ctx context.Context, ext sqlx.ExtContext, boardID, userID, action, entityType, entityID string, details map[string]any) error {
	detailsJSON := ""
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("failed to marshal activity details: %w", err)
		}
		detailsJSON = string(b)
	}

	_, err := ext.ExecContext(ctx, `
		INSERT INTO activities (id, board_id, user_id, action, entity_type, entity_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), boardID, userID, action, entityType, entityID, detailsJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}
	return nil
}

// logActivityStandalone records an audit row after a mutation that already
// committed. The audit trail is best-effort there; a failure must not undo
// the mutation, so it is logged and dropped.
func (s *DataService) logActivityStandalone(ctx context.Context, boardID, userID, action, entityType, entityID string, details map[string]any) {
	if err := logActivity(ctx, s.db, boardID, userID, action, entityType, entityID, details); err != nil {
		log.Printf("Activity log write failed for board %s: %v", boardID, err)
	}
}

// ListActivities returns a board's audit records, newest first.
func (s *DataService) ListActivities(ctx context.Context, userID, boardID string, limit int) ([]Activity, error) {
	if err := s.requireViewer(ctx, boardID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var activities []Activity
	err := s.db.SelectContext(ctx, &activities,
		"SELECT * FROM activities WHERE board_id = ? ORDER BY created_at DESC, id LIMIT ?",
		boardID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	return activities, nil
}
