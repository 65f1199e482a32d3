package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boardstack/boardstack/database"
)

type memSub struct {
	userID string
	events chan database.ChangeEvent
}

// MemoryBackend is the mock-backed Backend: plain maps behind a mutex. It
// mirrors the service's semantics (visibility, order computation, cascades,
// tag de-duplication) and supports failure injection for rollback tests.
type MemoryBackend struct {
	mu sync.RWMutex

	seq      int
	boardSeq map[string]int
	boards   map[string]database.Board
	columns  map[string]database.Column
	cards    map[string]database.Card
	tags     map[string]database.Tag
	cardTags []database.CardTag
	members  map[string][]database.BoardMember
	profiles map[string]database.Profile

	subs map[*memSub]bool

	failNext error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		boardSeq: make(map[string]int),
		boards:   make(map[string]database.Board),
		columns:  make(map[string]database.Column),
		cards:    make(map[string]database.Card),
		tags:     make(map[string]database.Tag),
		members:  make(map[string][]database.BoardMember),
		profiles: make(map[string]database.Profile),
		subs:     make(map[*memSub]bool),
	}
}

// FailNext makes the next mutation fail with err, simulating a rejected or
// unreachable remote.
func (m *MemoryBackend) FailNext(err error) {
	m.mu.Lock()
	m.failNext = err
	m.mu.Unlock()
}

func (m *MemoryBackend) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

// AddProfile seeds a profile row.
func (m *MemoryBackend) AddProfile(p database.Profile) {
	m.mu.Lock()
	m.profiles[p.ID] = p
	m.mu.Unlock()
}

// AddMember seeds a board membership.
func (m *MemoryBackend) AddMember(member database.BoardMember) {
	m.mu.Lock()
	m.members[member.BoardID] = append(m.members[member.BoardID], member)
	m.mu.Unlock()
}

func (m *MemoryBackend) visible(board database.Board, userID string) bool {
	if board.IsArchived {
		return false
	}
	if board.UserID == userID || board.IsPublic {
		return true
	}
	for _, member := range m.members[board.ID] {
		if member.UserID == userID && member.IsActive {
			return true
		}
	}
	return false
}

func (m *MemoryBackend) VisibleBoards(_ context.Context, userID string) ([]database.Board, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var boards []database.Board
	for _, b := range m.boards {
		if m.visible(b, userID) {
			b.Columns = nil
			boards = append(boards, b)
		}
	}
	sort.Slice(boards, func(i, j int) bool {
		return m.boardSeq[boards[i].ID] < m.boardSeq[boards[j].ID]
	})
	return boards, nil
}

func (m *MemoryBackend) ColumnsForBoards(_ context.Context, boardIDs []string) ([]database.Column, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[string]bool, len(boardIDs))
	for _, id := range boardIDs {
		wanted[id] = true
	}
	var columns []database.Column
	for _, c := range m.columns {
		if wanted[c.BoardID] {
			c.Cards = nil
			columns = append(columns, c)
		}
	}
	sort.Slice(columns, func(i, j int) bool {
		if columns[i].BoardID != columns[j].BoardID {
			return columns[i].BoardID < columns[j].BoardID
		}
		if columns[i].Order != columns[j].Order {
			return columns[i].Order < columns[j].Order
		}
		return columns[i].ID < columns[j].ID
	})
	return columns, nil
}

func (m *MemoryBackend) CardsForColumns(_ context.Context, columnIDs []string) ([]database.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[string]bool, len(columnIDs))
	for _, id := range columnIDs {
		wanted[id] = true
	}
	var cards []database.Card
	for _, c := range m.cards {
		if wanted[c.ColumnID] {
			cards = append(cards, c)
		}
	}
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].ColumnID != cards[j].ColumnID {
			return cards[i].ColumnID < cards[j].ColumnID
		}
		if cards[i].Order != cards[j].Order {
			return cards[i].Order < cards[j].Order
		}
		return cards[i].ID < cards[j].ID
	})
	return cards, nil
}

func (m *MemoryBackend) TagsForCards(_ context.Context, cardIDs []string) (map[string][]database.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[string]bool, len(cardIDs))
	for _, id := range cardIDs {
		wanted[id] = true
	}
	result := make(map[string][]database.Tag)
	for _, join := range m.cardTags {
		if !wanted[join.CardID] {
			continue
		}
		if tag, ok := m.tags[join.TagID]; ok {
			result[join.CardID] = append(result[join.CardID], tag)
		}
	}
	return result, nil
}

func (m *MemoryBackend) ProfilesByIDs(_ context.Context, ids []string) (map[string]database.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]database.Profile)
	for _, id := range ids {
		if p, ok := m.profiles[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (m *MemoryBackend) CreateBoard(_ context.Context, userID, title, description string) (*database.Board, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("board title required: %w", database.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	board := database.Board{
		ID:          uuid.New().String(),
		Title:       strings.TrimSpace(title),
		Description: description,
		UserID:      userID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Columns:     []database.Column{},
	}
	m.seq++
	m.boardSeq[board.ID] = m.seq
	m.boards[board.ID] = board

	for i, def := range database.DefaultColumns {
		col := database.Column{
			ID:      uuid.New().String(),
			Title:   def.Title,
			BoardID: board.ID,
			Order:   i,
			Color:   def.Color,
			Cards:   []database.Card{},
		}
		m.columns[col.ID] = col
		board.Columns = append(board.Columns, col)
	}

	m.emit(database.ChangeEvent{Entity: database.EntityBoard, EventType: database.EventInsert, BoardID: board.ID})
	return &board, nil
}

func (m *MemoryBackend) UpdateBoard(_ context.Context, userID, boardID string, patch database.BoardPatch) (*database.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	board, ok := m.boards[boardID]
	if !ok {
		return nil, fmt.Errorf("board %s: %w", boardID, database.ErrNotFound)
	}
	applyBoardPatch(&board, patch)
	m.boards[boardID] = board

	m.emit(database.ChangeEvent{Entity: database.EntityBoard, EventType: database.EventUpdate, BoardID: boardID})
	return &board, nil
}

func (m *MemoryBackend) ArchiveBoard(_ context.Context, userID, boardID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}

	board, ok := m.boards[boardID]
	if !ok {
		return fmt.Errorf("board %s: %w", boardID, database.ErrNotFound)
	}
	if board.UserID != userID {
		return fmt.Errorf("board %s: %w", boardID, database.ErrForbidden)
	}
	board.IsArchived = true
	board.UpdatedAt = time.Now().UTC()
	m.boards[boardID] = board

	m.emit(database.ChangeEvent{Entity: database.EntityBoard, EventType: database.EventUpdate, BoardID: boardID})
	return nil
}

func (m *MemoryBackend) CreateColumn(_ context.Context, userID, boardID, title string) (*database.Column, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("column title required: %w", database.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	if _, ok := m.boards[boardID]; !ok {
		return nil, fmt.Errorf("board %s: %w", boardID, database.ErrNotFound)
	}

	order := -1
	for _, c := range m.columns {
		if c.BoardID == boardID && c.Order > order {
			order = c.Order
		}
	}
	col := database.Column{
		ID:      uuid.New().String(),
		Title:   strings.TrimSpace(title),
		BoardID: boardID,
		Order:   order + 1,
		Cards:   []database.Card{},
	}
	m.columns[col.ID] = col

	m.emit(database.ChangeEvent{Entity: database.EntityColumn, EventType: database.EventInsert, BoardID: boardID})
	return &col, nil
}

func (m *MemoryBackend) UpdateColumn(_ context.Context, userID, columnID string, patch database.ColumnPatch) (*database.Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	col, ok := m.columns[columnID]
	if !ok {
		return nil, fmt.Errorf("column %s: %w", columnID, database.ErrNotFound)
	}
	applyColumnPatch(&col, patch)
	m.columns[columnID] = col

	m.emit(database.ChangeEvent{Entity: database.EntityColumn, EventType: database.EventUpdate, BoardID: col.BoardID})
	return &col, nil
}

func (m *MemoryBackend) DeleteColumn(_ context.Context, userID, columnID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}

	col, ok := m.columns[columnID]
	if !ok {
		return fmt.Errorf("column %s: %w", columnID, database.ErrNotFound)
	}
	delete(m.columns, columnID)
	for id, card := range m.cards {
		if card.ColumnID == columnID {
			delete(m.cards, id)
			m.dropJoinsLocked(id)
		}
	}

	m.emit(database.ChangeEvent{Entity: database.EntityColumn, EventType: database.EventDelete, BoardID: col.BoardID})
	return nil
}

func (m *MemoryBackend) CreateCard(_ context.Context, userID string, nc database.NewCard) (*database.Card, error) {
	if strings.TrimSpace(nc.Title) == "" {
		return nil, fmt.Errorf("card title required: %w", database.ErrValidation)
	}
	if nc.Priority == "" {
		nc.Priority = database.PriorityMedium
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	col, ok := m.columns[nc.ColumnID]
	if !ok {
		return nil, fmt.Errorf("column %s: %w", nc.ColumnID, database.ErrNotFound)
	}

	order := -1
	for _, c := range m.cards {
		if c.ColumnID == nc.ColumnID && c.Order > order {
			order = c.Order
		}
	}
	now := time.Now().UTC()
	card := database.Card{
		ID:             uuid.New().String(),
		Title:          strings.TrimSpace(nc.Title),
		Description:    nc.Description,
		ColumnID:       nc.ColumnID,
		Order:          order + 1,
		DueDate:        nc.DueDate,
		AssignedUserID: nc.AssignedUserID,
		Priority:       nc.Priority,
		EstimatedHours: nc.EstimatedHours,
		CreatedAt:      now,
		UpdatedAt:      now,
		Tags:           []database.Tag{},
	}
	m.cards[card.ID] = card

	m.emit(database.ChangeEvent{Entity: database.EntityCard, EventType: database.EventInsert, BoardID: col.BoardID})
	return &card, nil
}

func (m *MemoryBackend) UpdateCard(_ context.Context, userID, cardID string, patch database.CardPatch) (*database.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	card, ok := m.cards[cardID]
	if !ok {
		return nil, fmt.Errorf("card %s: %w", cardID, database.ErrNotFound)
	}
	applyCardPatch(&card, patch)
	m.cards[cardID] = card

	col := m.columns[card.ColumnID]
	m.emit(database.ChangeEvent{Entity: database.EntityCard, EventType: database.EventUpdate, BoardID: col.BoardID})
	return &card, nil
}

func (m *MemoryBackend) DeleteCard(_ context.Context, userID, cardID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}

	card, ok := m.cards[cardID]
	if !ok {
		return fmt.Errorf("card %s: %w", cardID, database.ErrNotFound)
	}
	delete(m.cards, cardID)
	m.dropJoinsLocked(cardID)

	col := m.columns[card.ColumnID]
	m.emit(database.ChangeEvent{Entity: database.EntityCard, EventType: database.EventDelete, BoardID: col.BoardID})
	return nil
}

func (m *MemoryBackend) MoveCard(_ context.Context, userID, cardID, targetColumnID string, order *int) (*database.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	card, ok := m.cards[cardID]
	if !ok {
		return nil, fmt.Errorf("card %s: %w", cardID, database.ErrNotFound)
	}
	col, ok := m.columns[targetColumnID]
	if !ok {
		return nil, fmt.Errorf("column %s: %w", targetColumnID, database.ErrNotFound)
	}

	switch {
	case order != nil:
		card.Order = *order
	case targetColumnID == card.ColumnID:
		// No-op move keeps the card in place.
	default:
		max := -1
		for _, c := range m.cards {
			if c.ColumnID == targetColumnID && c.Order > max {
				max = c.Order
			}
		}
		card.Order = max + 1
	}
	card.ColumnID = targetColumnID
	card.UpdatedAt = time.Now().UTC()
	m.cards[cardID] = card

	m.emit(database.ChangeEvent{Entity: database.EntityCard, EventType: database.EventUpdate, BoardID: col.BoardID})
	return &card, nil
}

func (m *MemoryBackend) FindOrCreateTag(_ context.Context, userID, name, color string) (*database.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tag name required: %w", database.ErrValidation)
	}
	color = database.NormalizeColor(color)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	for _, t := range m.tags {
		if t.UserID == userID && strings.EqualFold(t.Name, name) && database.NormalizeColor(t.Color) == color {
			tag := t
			return &tag, nil
		}
	}
	tag := database.Tag{
		ID:        uuid.New().String(),
		Name:      name,
		Color:     color,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	m.tags[tag.ID] = tag
	return &tag, nil
}

func (m *MemoryBackend) AddTagToCard(_ context.Context, userID, cardID, tagID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}

	if _, ok := m.cards[cardID]; !ok {
		return fmt.Errorf("card %s: %w", cardID, database.ErrNotFound)
	}
	if _, ok := m.tags[tagID]; !ok {
		return fmt.Errorf("tag %s: %w", tagID, database.ErrNotFound)
	}
	for _, join := range m.cardTags {
		if join.CardID == cardID && join.TagID == tagID {
			return nil
		}
	}
	m.cardTags = append(m.cardTags, database.CardTag{
		CardID:    cardID,
		TagID:     tagID,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *MemoryBackend) Subscribe(_ context.Context, userID string) (<-chan database.ChangeEvent, func(), error) {
	sub := &memSub{
		userID: userID,
		events: make(chan database.ChangeEvent, 16),
	}
	m.mu.Lock()
	m.subs[sub] = true
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if m.subs[sub] {
			delete(m.subs, sub)
			close(sub.events)
		}
		m.mu.Unlock()
	}
	return sub.events, cancel, nil
}

// emit delivers an event to subscribers that can see the board. Callers hold
// the write lock.
func (m *MemoryBackend) emit(event database.ChangeEvent) {
	board, ok := m.boards[event.BoardID]
	for sub := range m.subs {
		if ok && !board.IsPublic && !m.visibleToUser(board, sub.userID) {
			continue
		}
		select {
		case sub.events <- event:
		default:
		}
	}
}

// visibleToUser is visibility without the archived filter; archived boards
// still notify their audience so open sessions drop them.
func (m *MemoryBackend) visibleToUser(board database.Board, userID string) bool {
	if board.UserID == userID {
		return true
	}
	for _, member := range m.members[board.ID] {
		if member.UserID == userID && member.IsActive {
			return true
		}
	}
	return false
}

func (m *MemoryBackend) dropJoinsLocked(cardID string) {
	joins := m.cardTags[:0]
	for _, join := range m.cardTags {
		if join.CardID != cardID {
			joins = append(joins, join)
		}
	}
	m.cardTags = joins
}
