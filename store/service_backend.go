package store

import (
	"context"
	"encoding/json"
	"log"

	"github.com/boardstack/boardstack/database"
	"github.com/boardstack/boardstack/services"
)

// ServiceBackend is the remote-backed Backend: it runs the store against the
// in-process data service and publishes change events through the hub after
// each committed mutation.
type ServiceBackend struct {
	svc *database.DataService
	hub *services.Hub
}

func NewServiceBackend(svc *database.DataService, hub *services.Hub) *ServiceBackend {
	return &ServiceBackend{svc: svc, hub: hub}
}

func (b *ServiceBackend) VisibleBoards(ctx context.Context, userID string) ([]database.Board, error) {
	return b.svc.VisibleBoards(ctx, userID)
}

func (b *ServiceBackend) ColumnsForBoards(ctx context.Context, boardIDs []string) ([]database.Column, error) {
	return b.svc.ColumnsForBoards(ctx, boardIDs)
}

func (b *ServiceBackend) CardsForColumns(ctx context.Context, columnIDs []string) ([]database.Card, error) {
	return b.svc.CardsForColumns(ctx, columnIDs)
}

func (b *ServiceBackend) TagsForCards(ctx context.Context, cardIDs []string) (map[string][]database.Tag, error) {
	return b.svc.TagsForCards(ctx, cardIDs)
}

func (b *ServiceBackend) ProfilesByIDs(ctx context.Context, ids []string) (map[string]database.Profile, error) {
	return b.svc.ProfilesByIDs(ctx, ids)
}

func (b *ServiceBackend) CreateBoard(ctx context.Context, userID, title, description string) (*database.Board, error) {
	board, err := b.svc.CreateBoard(ctx, userID, title, description)
	if err != nil {
		return nil, err
	}
	b.publish(ctx, database.EntityBoard, database.EventInsert, board.ID, board)
	return board, nil
}

func (b *ServiceBackend) UpdateBoard(ctx context.Context, userID, boardID string, patch database.BoardPatch) (*database.Board, error) {
	board, err := b.svc.UpdateBoard(ctx, userID, boardID, patch)
	if err != nil {
		return nil, err
	}
	b.publish(ctx, database.EntityBoard, database.EventUpdate, boardID, board)
	return board, nil
}

func (b *ServiceBackend) ArchiveBoard(ctx context.Context, userID, boardID string) error {
	if err := b.svc.ArchiveBoard(ctx, userID, boardID); err != nil {
		return err
	}
	b.publish(ctx, database.EntityBoard, database.EventUpdate, boardID, nil)
	return nil
}

func (b *ServiceBackend) CreateColumn(ctx context.Context, userID, boardID, title string) (*database.Column, error) {
	col, err := b.svc.CreateColumn(ctx, userID, boardID, title)
	if err != nil {
		return nil, err
	}
	b.publish(ctx, database.EntityColumn, database.EventInsert, boardID, col)
	return col, nil
}

func (b *ServiceBackend) UpdateColumn(ctx context.Context, userID, columnID string, patch database.ColumnPatch) (*database.Column, error) {
	col, err := b.svc.UpdateColumn(ctx, userID, columnID, patch)
	if err != nil {
		return nil, err
	}
	b.publish(ctx, database.EntityColumn, database.EventUpdate, col.BoardID, col)
	return col, nil
}

func (b *ServiceBackend) DeleteColumn(ctx context.Context, userID, columnID string) error {
	boardID, err := b.svc.ColumnBoardID(ctx, columnID)
	if err != nil {
		return err
	}
	if err := b.svc.DeleteColumn(ctx, userID, columnID); err != nil {
		return err
	}
	b.publish(ctx, database.EntityColumn, database.EventDelete, boardID, nil)
	return nil
}

func (b *ServiceBackend) CreateCard(ctx context.Context, userID string, nc database.NewCard) (*database.Card, error) {
	card, err := b.svc.CreateCard(ctx, userID, nc)
	if err != nil {
		return nil, err
	}
	boardID, rerr := b.svc.ColumnBoardID(ctx, card.ColumnID)
	if rerr == nil {
		b.publish(ctx, database.EntityCard, database.EventInsert, boardID, card)
	}
	return card, nil
}

func (b *ServiceBackend) UpdateCard(ctx context.Context, userID, cardID string, patch database.CardPatch) (*database.Card, error) {
	card, err := b.svc.UpdateCard(ctx, userID, cardID, patch)
	if err != nil {
		return nil, err
	}
	boardID, rerr := b.svc.ColumnBoardID(ctx, card.ColumnID)
	if rerr == nil {
		b.publish(ctx, database.EntityCard, database.EventUpdate, boardID, card)
	}
	return card, nil
}

func (b *ServiceBackend) DeleteCard(ctx context.Context, userID, cardID string) error {
	boardID, err := b.svc.CardBoardID(ctx, cardID)
	if err != nil {
		return err
	}
	if err := b.svc.DeleteCard(ctx, userID, cardID); err != nil {
		return err
	}
	b.publish(ctx, database.EntityCard, database.EventDelete, boardID, nil)
	return nil
}

func (b *ServiceBackend) MoveCard(ctx context.Context, userID, cardID, targetColumnID string, order *int) (*database.Card, error) {
	card, err := b.svc.MoveCard(ctx, userID, cardID, targetColumnID, order)
	if err != nil {
		return nil, err
	}
	boardID, rerr := b.svc.ColumnBoardID(ctx, card.ColumnID)
	if rerr == nil {
		b.publish(ctx, database.EntityCard, database.EventUpdate, boardID, card)
	}
	return card, nil
}

func (b *ServiceBackend) FindOrCreateTag(ctx context.Context, userID, name, color string) (*database.Tag, error) {
	return b.svc.FindOrCreateTag(ctx, userID, name, color)
}

func (b *ServiceBackend) AddTagToCard(ctx context.Context, userID, cardID, tagID string) error {
	if err := b.svc.AddTagToCard(ctx, userID, cardID, tagID); err != nil {
		return err
	}
	boardID, rerr := b.svc.CardBoardID(ctx, cardID)
	if rerr == nil {
		b.publish(ctx, database.EntityCard, database.EventUpdate, boardID, nil)
	}
	return nil
}

func (b *ServiceBackend) Subscribe(ctx context.Context, userID string) (<-chan database.ChangeEvent, func(), error) {
	events, cancel := b.hub.Subscribe(userID)
	return events, cancel, nil
}

// NotifyChange publishes a change event for mutations that run outside the
// Backend surface (reorders, membership, tag removal).
func (b *ServiceBackend) NotifyChange(ctx context.Context, entity, eventType, boardID string) {
	b.publish(ctx, entity, eventType, boardID, nil)
}

// publish fans a change event out to the board's audience. A failure here
// cannot undo the committed mutation; affected sessions converge on their
// next refetch.
func (b *ServiceBackend) publish(ctx context.Context, entity, eventType, boardID string, row any) {
	audience, public, err := b.svc.BoardAudience(ctx, boardID)
	if err != nil {
		log.Printf("Failed to resolve audience for board %s: %v", boardID, err)
		return
	}
	var raw json.RawMessage
	if row != nil {
		if data, err := json.Marshal(row); err == nil {
			raw = data
		}
	}
	b.hub.Publish(database.ChangeEvent{
		Entity:    entity,
		EventType: eventType,
		BoardID:   boardID,
		Row:       raw,
	}, audience, public)
}
