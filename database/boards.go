package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// DefaultColumns are created with every new board.
var DefaultColumns = []struct {
	Title string
	Color string
}{
	{Title: "To Do", Color: "#e2e8f0"},
	{Title: "In Progress", Color: "#fef3c7"},
	{Title: "Done", Color: "#d1fae5"},
}

// visibleBoardsQuery selects non-archived boards the user owns, is an active
// member of, or that are public.
const visibleBoardsQuery = `
	SELECT DISTINCT b.*
	FROM boards b
	LEFT JOIN board_members m ON m.board_id = b.id AND m.user_id = ? AND m.is_active = 1
	WHERE b.is_archived = 0 AND (b.user_id = ? OR m.user_id IS NOT NULL OR b.is_public = 1)
	ORDER BY b.created_at`

// VisibleBoards returns the flat list of boards the user may see, ordered by
// creation time.
func (s *DataService) VisibleBoards(ctx context.Context, userID string) ([]Board, error) {
	var boards []Board
	if err := s.db.SelectContext(ctx, &boards, visibleBoardsQuery, userID, userID); err != nil {
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}
	return boards, nil
}

// ListBoardTrees returns the full nested Board -> Column -> Card view for a
// user, cards carrying resolved tags and assignee profiles. Each level is
// fetched with one batched query instead of per-row fan-out. Any failure
// aborts the whole aggregation; no partial tree is returned.
func (s *DataService) ListBoardTrees(ctx context.Context, userID string) ([]Board, error) {
	boards, err := s.VisibleBoards(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(boards) == 0 {
		return []Board{}, nil
	}

	boardIDs := make([]string, len(boards))
	boardIndex := make(map[string]*Board, len(boards))
	for i := range boards {
		boards[i].Columns = []Column{}
		boardIDs[i] = boards[i].ID
		boardIndex[boards[i].ID] = &boards[i]
	}

	if err := s.attachMembers(ctx, boardIDs, boardIndex); err != nil {
		return nil, err
	}

	columns, err := s.ColumnsForBoards(ctx, boardIDs)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return boards, nil
	}

	columnIDs := make([]string, len(columns))
	columnIndex := make(map[string]*Column, len(columns))
	for i := range columns {
		columns[i].Cards = []Card{}
		columnIDs[i] = columns[i].ID
		columnIndex[columns[i].ID] = &columns[i]
	}

	cards, err := s.CardsForColumns(ctx, columnIDs)
	if err != nil {
		return nil, err
	}
	if err := s.resolveCards(ctx, cards); err != nil {
		return nil, err
	}

	// cards arrive ordered by (column_id, position); append preserves that.
	for i := range cards {
		if col, ok := columnIndex[cards[i].ColumnID]; ok {
			col.Cards = append(col.Cards, cards[i])
		}
	}
	for i := range columns {
		if b, ok := boardIndex[columns[i].BoardID]; ok {
			b.Columns = append(b.Columns, columns[i])
		}
	}

	return boards, nil
}

// ColumnsForBoards fetches the columns of the given boards in one query,
// ordered by board then position.
func (s *DataService) ColumnsForBoards(ctx context.Context, boardIDs []string) ([]Column, error) {
	if len(boardIDs) == 0 {
		return []Column{}, nil
	}
	query, args, err := sqlx.In(
		"SELECT * FROM columns WHERE board_id IN (?) ORDER BY board_id, position", boardIDs)
	if err != nil {
		return nil, err
	}
	var columns []Column
	if err := s.db.SelectContext(ctx, &columns, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	return columns, nil
}

// CardsForColumns fetches the cards of the given columns in one query,
// ordered by column then position.
func (s *DataService) CardsForColumns(ctx context.Context, columnIDs []string) ([]Card, error) {
	if len(columnIDs) == 0 {
		return []Card{}, nil
	}
	query, args, err := sqlx.In(
		"SELECT * FROM cards WHERE column_id IN (?) ORDER BY column_id, position", columnIDs)
	if err != nil {
		return nil, err
	}
	var cards []Card
	if err := s.db.SelectContext(ctx, &cards, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, nil
}

// TagsForCards resolves the tags of the given cards, keyed by card id. Tags
// keep the order their joins were created in.
func (s *DataService) TagsForCards(ctx context.Context, cardIDs []string) (map[string][]Tag, error) {
	result := make(map[string][]Tag)
	if len(cardIDs) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(
		"SELECT * FROM card_tags WHERE card_id IN (?) ORDER BY created_at, tag_id", cardIDs)
	if err != nil {
		return nil, err
	}
	var joins []CardTag
	if err := s.db.SelectContext(ctx, &joins, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list card tags: %w", err)
	}
	if len(joins) == 0 {
		return result, nil
	}

	tagIDs := make([]string, 0, len(joins))
	seen := make(map[string]bool)
	for _, j := range joins {
		if !seen[j.TagID] {
			seen[j.TagID] = true
			tagIDs = append(tagIDs, j.TagID)
		}
	}
	query, args, err = sqlx.In("SELECT * FROM tags WHERE id IN (?)", tagIDs)
	if err != nil {
		return nil, err
	}
	var tags []Tag
	if err := s.db.SelectContext(ctx, &tags, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	tagsByID := make(map[string]Tag, len(tags))
	for _, t := range tags {
		tagsByID[t.ID] = t
	}

	for _, j := range joins {
		if tag, ok := tagsByID[j.TagID]; ok {
			result[j.CardID] = append(result[j.CardID], tag)
		}
	}
	return result, nil
}

// ProfilesByIDs fetches profiles in one query, keyed by id.
func (s *DataService) ProfilesByIDs(ctx context.Context, ids []string) (map[string]Profile, error) {
	result := make(map[string]Profile)
	if len(ids) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In("SELECT * FROM profiles WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	var profiles []Profile
	if err := s.db.SelectContext(ctx, &profiles, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	for _, p := range profiles {
		result[p.ID] = p
	}
	return result, nil
}

// resolveCards attaches tags and assignee profiles to cards in place.
func (s *DataService) resolveCards(ctx context.Context, cards []Card) error {
	if len(cards) == 0 {
		return nil
	}

	cardIDs := make([]string, len(cards))
	assigneeIDs := make([]string, 0)
	seenAssignee := make(map[string]bool)
	for i := range cards {
		cards[i].Tags = []Tag{}
		cardIDs[i] = cards[i].ID
		if id := cards[i].AssignedUserID; id != nil && !seenAssignee[*id] {
			seenAssignee[*id] = true
			assigneeIDs = append(assigneeIDs, *id)
		}
	}

	tagsByCard, err := s.TagsForCards(ctx, cardIDs)
	if err != nil {
		return err
	}
	profilesByID, err := s.ProfilesByIDs(ctx, assigneeIDs)
	if err != nil {
		return err
	}

	for i := range cards {
		if tags, ok := tagsByCard[cards[i].ID]; ok {
			cards[i].Tags = tags
		}
		if id := cards[i].AssignedUserID; id != nil {
			if p, ok := profilesByID[*id]; ok {
				prof := p
				cards[i].AssignedUser = &prof
			}
		}
	}
	return nil
}

func (s *DataService) attachMembers(ctx context.Context, boardIDs []string, boardIndex map[string]*Board) error {
	query, args, err := sqlx.In(
		"SELECT * FROM board_members WHERE board_id IN (?) AND is_active = 1 ORDER BY joined_at", boardIDs)
	if err != nil {
		return err
	}
	var members []BoardMember
	if err := s.db.SelectContext(ctx, &members, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to list board members: %w", err)
	}
	for _, m := range members {
		if b, ok := boardIndex[m.BoardID]; ok {
			b.Members = append(b.Members, m)
		}
	}
	return nil
}

// GetBoard fetches a board by id regardless of its archived flag. Archived
// boards stay reachable this way for a potential un-archive.
func (s *DataService) GetBoard(ctx context.Context, boardID string) (*Board, error) {
	var board Board
	err := s.db.GetContext(ctx, &board, "SELECT * FROM boards WHERE id = ?", boardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("board %s: %w", boardID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get board: %w", err)
	}

	board.Columns, err = s.ColumnsForBoards(ctx, []string{board.ID})
	if err != nil {
		return nil, err
	}
	for i := range board.Columns {
		board.Columns[i].Cards = []Card{}
	}
	if len(board.Columns) > 0 {
		columnIDs := make([]string, len(board.Columns))
		columnIndex := make(map[string]*Column, len(board.Columns))
		for i := range board.Columns {
			columnIDs[i] = board.Columns[i].ID
			columnIndex[board.Columns[i].ID] = &board.Columns[i]
		}
		cards, err := s.CardsForColumns(ctx, columnIDs)
		if err != nil {
			return nil, err
		}
		if err := s.resolveCards(ctx, cards); err != nil {
			return nil, err
		}
		for i := range cards {
			if col, ok := columnIndex[cards[i].ColumnID]; ok {
				col.Cards = append(col.Cards, cards[i])
			}
		}
	}
	return &board, nil
}

// CreateBoard inserts a board with the three default columns and an owner
// member row, and logs the creation.
func (s *DataService) CreateBoard(ctx context.Context, userID, title, description string) (*Board, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("board title required: %w", ErrValidation)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not start transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	board := &Board{
		ID:          uuid.New().String(),
		Title:       strings.TrimSpace(title),
		Description: description,
		UserID:      userID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Columns:     []Column{},
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO boards (id, title, description, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		board.ID, board.Title, board.Description, board.UserID, board.CreatedAt, board.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create board: %w", err)
	}

	for i, def := range DefaultColumns {
		col := Column{
			ID:      uuid.New().String(),
			Title:   def.Title,
			BoardID: board.ID,
			Order:   i,
			Color:   def.Color,
			Cards:   []Card{},
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO columns (id, title, board_id, position, color)
			VALUES (?, ?, ?, ?, ?)`,
			col.ID, col.Title, col.BoardID, col.Order, col.Color)
		if err != nil {
			return nil, fmt.Errorf("failed to create default column: %w", err)
		}
		board.Columns = append(board.Columns, col)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO board_members (board_id, user_id, role, invited_by, joined_at, is_active)
		VALUES (?, ?, ?, ?, ?, 1)`,
		board.ID, userID, RoleOwner, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	if err := logActivity(ctx, tx, board.ID, userID, "created", "board", board.ID,
		map[string]any{"title": board.Title}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("transaction commit failed: %w", err)
	}
	return board, nil
}

// UpdateBoard applies a partial update. Only editors (owner, admin, member)
// may write.
func (s *DataService) UpdateBoard(ctx context.Context, userID, boardID string, patch BoardPatch) (*Board, error) {
	if err := s.requireEditor(ctx, boardID, userID); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return s.GetBoard(ctx, boardID)
	}

	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return nil, fmt.Errorf("board title required: %w", ErrValidation)
		}
		sets = append(sets, "title = ?")
		args = append(args, strings.TrimSpace(*patch.Title))
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.BackgroundColor != nil {
		sets = append(sets, "background_color = ?")
		args = append(args, *patch.BackgroundColor)
	}
	if patch.IsPublic != nil {
		sets = append(sets, "is_public = ?")
		args = append(args, *patch.IsPublic)
	}
	args = append(args, boardID)

	res, err := s.db.ExecContext(ctx,
		"UPDATE boards SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update board: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("board %s: %w", boardID, ErrNotFound)
	}

	s.logActivityStandalone(ctx, boardID, userID, "updated", "board", boardID, nil)
	return s.GetBoard(ctx, boardID)
}

// ArchiveBoard soft-deletes a board. Columns and cards are left untouched so
// the board stays reachable by direct lookup.
func (s *DataService) ArchiveBoard(ctx context.Context, userID, boardID string) error {
	if err := s.requireOwner(ctx, boardID, userID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE boards SET is_archived = 1, updated_at = ? WHERE id = ?",
		time.Now().UTC(), boardID)
	if err != nil {
		return fmt.Errorf("failed to archive board: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("board %s: %w", boardID, ErrNotFound)
	}
	s.logActivityStandalone(ctx, boardID, userID, "archived", "board", boardID, nil)
	return nil
}

// requireViewer checks that the user may read the board: owner, active
// member, or public.
func (s *DataService) requireViewer(ctx context.Context, boardID, userID string) error {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM boards b
		LEFT JOIN board_members m ON m.board_id = b.id AND m.user_id = ? AND m.is_active = 1
		WHERE b.id = ? AND (b.user_id = ? OR m.user_id IS NOT NULL OR b.is_public = 1)`,
		userID, boardID, userID)
	if err != nil {
		return fmt.Errorf("failed to check board access: %w", err)
	}
	if n == 0 {
		return s.notFoundOrForbidden(ctx, boardID)
	}
	return nil
}

// requireEditor checks that the user may mutate the board's contents: owner
// or active member with a role above viewer.
func (s *DataService) requireEditor(ctx context.Context, boardID, userID string) error {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM boards b
		LEFT JOIN board_members m ON m.board_id = b.id AND m.user_id = ?
			AND m.is_active = 1 AND m.role != ?
		WHERE b.id = ? AND (b.user_id = ? OR m.user_id IS NOT NULL)`,
		userID, RoleViewer, boardID, userID)
	if err != nil {
		return fmt.Errorf("failed to check board access: %w", err)
	}
	if n == 0 {
		return s.notFoundOrForbidden(ctx, boardID)
	}
	return nil
}

// requireOwner restricts an operation to the board owner.
func (s *DataService) requireOwner(ctx context.Context, boardID, userID string) error {
	var ownerID string
	err := s.db.GetContext(ctx, &ownerID, "SELECT user_id FROM boards WHERE id = ?", boardID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("board %s: %w", boardID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check board owner: %w", err)
	}
	if ownerID != userID {
		return fmt.Errorf("board %s: %w", boardID, ErrForbidden)
	}
	return nil
}

func (s *DataService) notFoundOrForbidden(ctx context.Context, boardID string) error {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM boards WHERE id = ?", boardID); err != nil {
		return fmt.Errorf("failed to check board: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("board %s: %w", boardID, ErrNotFound)
	}
	return fmt.Errorf("board %s: %w", boardID, ErrForbidden)
}

// InviteMember adds a user to a board or reactivates a previously removed
// membership.
func (s *DataService) InviteMember(ctx context.Context, userID, boardID, invitedUserID, role string) error {
	switch role {
	case RoleAdmin, RoleMember, RoleViewer:
	default:
		return fmt.Errorf("invalid role %q: %w", role, ErrValidation)
	}
	if err := s.requireOwner(ctx, boardID, userID); err != nil {
		return err
	}

	var existing BoardMember
	err := s.db.GetContext(ctx, &existing,
		"SELECT * FROM board_members WHERE board_id = ? AND user_id = ?", boardID, invitedUserID)
	if err == nil {
		if existing.IsActive {
			return fmt.Errorf("user is already a member: %w", ErrConflict)
		}
		_, err = s.db.ExecContext(ctx, `
			UPDATE board_members SET is_active = 1, role = ?, joined_at = ?
			WHERE board_id = ? AND user_id = ?`,
			role, time.Now().UTC(), boardID, invitedUserID)
		if err != nil {
			return fmt.Errorf("failed to reactivate member: %w", err)
		}
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check membership: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO board_members (board_id, user_id, role, invited_by, joined_at, is_active)
		VALUES (?, ?, ?, ?, ?, 1)`,
		boardID, invitedUserID, role, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	s.logActivityStandalone(ctx, boardID, userID, "invited", "board", boardID,
		map[string]any{"userId": invitedUserID, "role": role})
	return nil
}

// RemoveMember deactivates a membership. The row is kept for history.
func (s *DataService) RemoveMember(ctx context.Context, userID, boardID, memberUserID string) error {
	if err := s.requireOwner(ctx, boardID, userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE board_members SET is_active = 0 WHERE board_id = ? AND user_id = ?",
		boardID, memberUserID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}
