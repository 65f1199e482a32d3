package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boardstack/boardstack/database"
)

// MutationState tracks the two-phase lifecycle of the most recent mutation.
type MutationState int

const (
	StateClean MutationState = iota
	StatePending
	StateCommitted
	StateRolledBack
)

func (s MutationState) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StatePending:
		return "pending"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled back"
	}
	return "unknown"
}

// Store owns one user session's board tree. Every mutation is applied to the
// tree synchronously (optimistic phase), then persisted through the backend;
// on failure the optimistic change is discarded and the tree resynchronized
// by a fresh aggregation. The tree has a single logical owner, but the
// listener and UI goroutines may both touch it, so a mutex guards access.
type Store struct {
	backend Backend
	agg     *Aggregator
	userID  string

	mu      sync.RWMutex
	boards  []database.Board
	loading bool
	lastErr error
	state   MutationState
}

// NewStore builds a store for one user session. Call Load before reading
// Boards.
func NewStore(backend Backend, userID string) *Store {
	return &Store{
		backend: backend,
		agg:     NewAggregator(backend),
		userID:  userID,
		boards:  []database.Board{},
	}
}

// UserID returns the session's user id.
func (s *Store) UserID() string { return s.userID }

// Boards returns a deep copy of the current tree.
func (s *Store) Boards() []database.Board {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneBoards(s.boards)
}

// Err returns the last read error, cleared by a successful refetch.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// IsLoading reports whether an aggregation is in flight.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// LastMutation reports the state of the most recent mutation.
func (s *Store) LastMutation() MutationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Load runs the initial aggregation.
func (s *Store) Load(ctx context.Context) error {
	return s.Refetch(ctx)
}

// Refetch replaces the tree with a fresh aggregation. The canonical server
// state always supersedes whatever optimistic state was present.
func (s *Store) Refetch(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	boards, err := s.agg.Aggregate(ctx, s.userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.lastErr = err
		return err
	}
	s.boards = boards
	s.lastErr = nil
	return nil
}

// beginMutation snapshots the tree and applies the optimistic change.
func (s *Store) beginMutation(apply func(boards []database.Board) []database.Board) []database.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := cloneBoards(s.boards)
	s.state = StatePending
	s.boards = apply(s.boards)
	return snapshot
}

// commitMutation reconciles the optimistic tree with the server's canonical
// row (swapping temp ids for real ones on creates).
func (s *Store) commitMutation(reconcile func(boards []database.Board)) {
	s.mu.Lock()
	if reconcile != nil {
		reconcile(s.boards)
	}
	s.state = StateCommitted
	s.mu.Unlock()
}

// rollbackMutation restores the snapshot, then resynchronizes with a full
// refetch. If the refetch itself fails the snapshot stands and the error is
// recorded for the caller.
func (s *Store) rollbackMutation(ctx context.Context, snapshot []database.Board) {
	s.mu.Lock()
	s.boards = snapshot
	s.state = StateRolledBack
	s.mu.Unlock()
	// Rollback-by-refetch: canonical state wins over the snapshot.
	_ = s.Refetch(ctx)
}

func tempID() string {
	return "tmp-" + uuid.New().String()
}

// CreateBoard creates a board with the three default columns.
func (s *Store) CreateBoard(ctx context.Context, title, description string) (*database.Board, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("board title required: %w", database.ErrValidation)
	}

	now := time.Now().UTC()
	temp := database.Board{
		ID:          tempID(),
		Title:       strings.TrimSpace(title),
		Description: description,
		UserID:      s.userID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Columns:     []database.Column{},
	}
	for i, def := range database.DefaultColumns {
		temp.Columns = append(temp.Columns, database.Column{
			ID:      tempID(),
			Title:   def.Title,
			BoardID: temp.ID,
			Order:   i,
			Color:   def.Color,
			Cards:   []database.Card{},
		})
	}

	snapshot := s.beginMutation(func(boards []database.Board) []database.Board {
		return append(boards, temp)
	})

	board, err := s.backend.CreateBoard(ctx, s.userID, title, description)
	if err != nil {
		s.rollbackMutation(ctx, snapshot)
		return nil, err
	}

	s.commitMutation(func(boards []database.Board) {
		// Install a clone: the caller holds the returned struct and must
		// not be able to reach into the tree through shared slices.
		if b := findBoard(boards, temp.ID); b != nil {
			*b = cloneBoard(*board)
		}
	})
	return board, nil
}

// UpdateBoard applies a partial update to a board.
func (s *Store) UpdateBoard(ctx context.Context, boardID string, patch database.BoardPatch) error {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return fmt.Errorf("board title required: %w", database.ErrValidation)
	}

	snapshot := s.beginMutation(func(boards []database.Board) []database.Board {
		if b := findBoard(boards, boardID); b != nil {
			applyBoardPatch(b, patch)
		}
		return boards
	})

	if _, err := s.backend.UpdateBoard(ctx, s.userID, boardID, patch); err != nil {
		s.rollbackMutation(ctx, snapshot)
		return err
	}
	s.commitMutation(nil)
	return nil
}

// ArchiveBoard soft-deletes a board: it leaves the visible list but its
// contents survive server-side for a potential un-archive.
func (s *Store) ArchiveBoard(ctx context.Context, boardID string) error {
	snapshot := s.beginMutation(func(boards []database.Board) []database.Board {
		out := boards[:0]
		for i := range boards {
			if boards[i].ID != boardID {
				out = append(out, boards[i])
			}
		}
		return out
	})

	if err := s.backend.ArchiveBoard(ctx, s.userID, boardID); err != nil {
		s.rollbackMutation(ctx, snapshot)
		return err
	}
	s.commitMutation(nil)
	return nil
}

// CreateColumn appends a column to a board.
func (s *Store) CreateColumn(ctx context.Context, boardID, title string) (*database.Column, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("column title required: %w", database.ErrValidation)
	}

	temp := database.Column{
		ID:      tempID(),
		Title:   strings.TrimSpace(title),
		BoardID: boardID,
		Cards:   []database.Card{},
	}
	snapshot := s.beginMutation(func(boards []database.Board) []database.Board {
		if b := findBoard(boards, boardID); b != nil {
			temp.Order = nextColumnOrder(b)
			b.Columns = append(b.Columns, temp)
		}
		return boards
	})

	col, err := s.backend.CreateColumn(ctx, s.userID, boardID, title)
	if err != nil {
		s.rollbackMutation(ctx, snapshot)
		return nil, err
	}

	s.commitMutation(func(boards []database.Board) {
		if _, c := findColumn(boards, temp.ID); c != nil {
			cards := c.Cards
			*c = cloneColumn(*col)
			c.Cards = cards
		}
	})
	return col, nil
}

// UpdateColumn applies a partial update to a column.
func (s *Store) UpdateColumn(ctx context.Context, columnID string, patch database.ColumnPatch) error {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return fmt.Errorf("column title required: %w", database.ErrValidation)
	}

	snapshot := s.beginMutation(func(boards []database.Board) []database.Board {
		if _, c := findColumn(boards, columnID); c != nil {
			applyColumnPatch(c, patch)
		}
		return boards
	})

	if _, err := s.backend.UpdateColumn(ctx, s.userID, columnID, patch); err != nil {
		s.rollbackMutation(ctx, snapshot)
		return err
	}
	s.commitMutation(nil)
	return nil
}

// DeleteColumn removes a column and, with it, its cards.
func (s *Store) DeleteColumn(ctx context.Context, columnID string) error {
	snapshot := s.beginMutation(func(boards []database.Board) []database.Board {
		for i := range boards {
			cols := boards[i].Columns[:0]
			for j := range boards[i].Columns {
				if boards[i].Columns[j].ID != columnID {
					cols = append(cols, boards[i].Columns[j])
				}
			}
			boards[i].Columns = cols
		}
		return boards
	})

	if err := s.backend.DeleteColumn(ctx, s.userID, columnID); err != nil {
		s.rollbackMutation(ctx, snapshot)
		return err
	}
	s.commitMutation(nil)
	return nil
}

// CreateCard appends a card to a column with order max(siblings)+1.
func (s *Store) CreateCard(ctx context.Context, columnID, title string) (*database.Card, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("card title required: %w", database.ErrValidation)
	}

	now := time.Now().UTC()
	temp := database.Card{
		ID:        tempID(),
		Title:     strings.TrimSpace(title),
		ColumnID:  columnID,
		Priority:  database.PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
		Tags:      []database.Tag{},
	}
	snapshot := s.beginMutation(func(boards []database.Board) []database.Board {
		if _, c := findColumn(boards, columnID); c != nil {
			temp.Order = nextCardOrder(c)
			c.Cards = append(c.Cards, temp)
		}
		return boards
	})

	card, err := s.backend.CreateCard(ctx, s.userID, database.NewCard{ColumnID: columnID, Title: title})
	if err != nil {
		s.rollbackMutation(ctx, snapshot)
		return nil, err
	}

	s.commitMutation(func(boards []database.Board) {
		if col, idx := findCard(boards, temp.ID); col != nil {
			col.Cards[idx] = cloneCard(*card)
		}
	})
	return card, nil
}

// UpdateCard applies a partial update to a card.
func (s *Store) UpdateCard(ctx context.Context, cardID string, patch database.CardPatch) error {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return fmt.Errorf("card title required: %w", database.ErrValidation)
	}
	if patch.Priority != nil && !database.ValidPriority(*patch.Priority) {
		return fmt.Errorf("invalid priority %q: %w", *patch.Priority, database.ErrValidation)
	}

	snapshot := s.beginMutation(func(boards []database.Board) []database.Board {
		if col, idx := findCard(boards, cardID); col != nil {
			applyCardPatch(&col.Cards[idx], patch)
		}
		return boards
	})

	if _, err := s.backend.UpdateCard(ctx, s.userID, cardID, patch); err != nil {
		s.rollbackMutation(ctx, snapshot)
		return err
	}
	s.commitMutation(nil)
	return nil
}

// DeleteCard removes a card from the tree. Server-side cascades take its tag
// joins with it.
func (s *Store) DeleteCard(ctx context.Context, cardID string) error {
	snapshot := s.beginMutation(func(boards []database.Board) []database.Board {
		if col, idx := findCard(boards, cardID); col != nil {
			removeCardAt(col, idx)
		}
		return boards
	})

	if err := s.backend.DeleteCard(ctx, s.userID, cardID); err != nil {
		s.rollbackMutation(ctx, snapshot)
		return err
	}
	s.commitMutation(nil)
	return nil
}

// MoveCard moves a card to a column, appending it unless an explicit order
// is given. Moving a card onto the column it already occupies with no
// explicit order neither duplicates nor drops it.
func (s *Store) MoveCard(ctx context.Context, cardID, targetColumnID string, explicitOrder *int) error {
	snapshot := s.beginMutation(func(boards []database.Board) []database.Board {
		col, idx := findCard(boards, cardID)
		if col == nil {
			return boards
		}
		if col.ID == targetColumnID && explicitOrder == nil {
			return boards
		}
		card := removeCardAt(col, idx)
		_, target := findColumn(boards, targetColumnID)
		if target == nil {
			// Target vanished locally; put the card back and let the
			// remote call surface the error.
			col.Cards = append(col.Cards, card)
			sortColumnCards(col)
			return boards
		}
		card.ColumnID = targetColumnID
		if explicitOrder != nil {
			card.Order = *explicitOrder
		} else {
			card.Order = nextCardOrder(target)
		}
		target.Cards = append(target.Cards, card)
		sortColumnCards(target)
		return boards
	})

	if _, err := s.backend.MoveCard(ctx, s.userID, cardID, targetColumnID, explicitOrder); err != nil {
		s.rollbackMutation(ctx, snapshot)
		return err
	}
	s.commitMutation(nil)
	return nil
}

// AddTag attaches a tag to a card, reusing the user's existing tag when one
// with the same name and color already exists.
func (s *Store) AddTag(ctx context.Context, cardID, name, color string) (*database.Tag, error) {
	tag, err := s.backend.FindOrCreateTag(ctx, s.userID, name, color)
	if err != nil {
		return nil, err
	}

	snapshot := s.beginMutation(func(boards []database.Board) []database.Board {
		if col, idx := findCard(boards, cardID); col != nil {
			card := &col.Cards[idx]
			for _, t := range card.Tags {
				if t.ID == tag.ID {
					return boards
				}
			}
			card.Tags = append(card.Tags, *tag)
		}
		return boards
	})

	if err := s.backend.AddTagToCard(ctx, s.userID, cardID, tag.ID); err != nil {
		s.rollbackMutation(ctx, snapshot)
		return nil, err
	}
	s.commitMutation(nil)
	return tag, nil
}

func applyBoardPatch(b *database.Board, patch database.BoardPatch) {
	if patch.Title != nil {
		b.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		b.Description = *patch.Description
	}
	if patch.BackgroundColor != nil {
		b.BackgroundColor = *patch.BackgroundColor
	}
	if patch.IsPublic != nil {
		b.IsPublic = *patch.IsPublic
	}
	b.UpdatedAt = time.Now().UTC()
}

func applyColumnPatch(c *database.Column, patch database.ColumnPatch) {
	if patch.Title != nil {
		c.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Color != nil {
		c.Color = *patch.Color
	}
	if patch.IsCollapsed != nil {
		c.IsCollapsed = *patch.IsCollapsed
	}
	if patch.CardLimit != nil {
		v := *patch.CardLimit
		c.CardLimit = &v
	}
	if patch.Order != nil {
		c.Order = *patch.Order
	}
}

func applyCardPatch(card *database.Card, patch database.CardPatch) {
	now := time.Now().UTC()
	if patch.Title != nil {
		card.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		card.Description = *patch.Description
	}
	if patch.DueDate != nil {
		v := *patch.DueDate
		card.DueDate = &v
	}
	if patch.AssignedUserID != nil {
		if *patch.AssignedUserID == "" {
			card.AssignedUserID = nil
			card.AssignedUser = nil
		} else {
			v := *patch.AssignedUserID
			card.AssignedUserID = &v
		}
	}
	if patch.Priority != nil {
		card.Priority = *patch.Priority
	}
	if patch.EstimatedHours != nil {
		v := *patch.EstimatedHours
		card.EstimatedHours = &v
	}
	if patch.ActualHours != nil {
		v := *patch.ActualHours
		card.ActualHours = &v
	}
	if patch.IsCompleted != nil && *patch.IsCompleted != card.IsCompleted {
		card.IsCompleted = *patch.IsCompleted
		if card.IsCompleted {
			card.CompletedAt = &now
		} else {
			card.CompletedAt = nil
		}
	}
	card.UpdatedAt = now
}
