package database

import (
	"context"
	"encoding/json"
	"fmt"
)

// Change event types emitted after committed mutations.
const (
	EventInsert = "insert"
	EventUpdate = "update"
	EventDelete = "delete"
)

// Entities that emit change events.
const (
	EntityBoard  = "boards"
	EntityColumn = "columns"
	EntityCard   = "cards"
)

// ChangeEvent is a push notification that a row changed. Listeners treat it
// as a trigger to re-aggregate, not as a patch: Row is informational.
type ChangeEvent struct {
	Entity    string          `json:"entity"`
	EventType string          `json:"eventType"`
	BoardID   string          `json:"boardId"`
	Row       json.RawMessage `json:"row,omitempty"`
}

// BoardAudience returns the user ids that should receive change events for a
// board: the owner plus its active members. The second result reports
// whether the board is public, in which case events fan out to every
// connected session.
func (s *DataService) BoardAudience(ctx context.Context, boardID string) ([]string, bool, error) {
	var board Board
	if err := s.db.GetContext(ctx, &board, "SELECT * FROM boards WHERE id = ?", boardID); err != nil {
		return nil, false, fmt.Errorf("failed to resolve board audience: %w", err)
	}

	var memberIDs []string
	err := s.db.SelectContext(ctx, &memberIDs,
		"SELECT user_id FROM board_members WHERE board_id = ? AND is_active = 1", boardID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve board audience: %w", err)
	}

	seen := map[string]bool{board.UserID: true}
	audience := []string{board.UserID}
	for _, id := range memberIDs {
		if !seen[id] {
			seen[id] = true
			audience = append(audience, id)
		}
	}
	return audience, board.IsPublic, nil
}
