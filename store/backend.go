// Package store holds the client-side core of BoardStack: the board
// aggregator, the optimistic mutation layer and the realtime reconciliation
// listener. It talks to its data source through the Backend interface, so
// the same code runs against the in-process service or an in-memory fake.
package store

import (
	"context"

	"github.com/boardstack/boardstack/database"
)

// Backend is the pluggable storage interface the store runs on. Reads are
// batched per level; mutations are persisted remotely and acknowledged with
// the canonical row. Subscribe streams change events scoped to the user.
type Backend interface {
	// Reads, one batched call per tree level.
	VisibleBoards(ctx context.Context, userID string) ([]database.Board, error)
	ColumnsForBoards(ctx context.Context, boardIDs []string) ([]database.Column, error)
	CardsForColumns(ctx context.Context, columnIDs []string) ([]database.Card, error)
	TagsForCards(ctx context.Context, cardIDs []string) (map[string][]database.Tag, error)
	ProfilesByIDs(ctx context.Context, ids []string) (map[string]database.Profile, error)

	// Mutations.
	CreateBoard(ctx context.Context, userID, title, description string) (*database.Board, error)
	UpdateBoard(ctx context.Context, userID, boardID string, patch database.BoardPatch) (*database.Board, error)
	ArchiveBoard(ctx context.Context, userID, boardID string) error
	CreateColumn(ctx context.Context, userID, boardID, title string) (*database.Column, error)
	UpdateColumn(ctx context.Context, userID, columnID string, patch database.ColumnPatch) (*database.Column, error)
	DeleteColumn(ctx context.Context, userID, columnID string) error
	CreateCard(ctx context.Context, userID string, nc database.NewCard) (*database.Card, error)
	UpdateCard(ctx context.Context, userID, cardID string, patch database.CardPatch) (*database.Card, error)
	DeleteCard(ctx context.Context, userID, cardID string) error
	MoveCard(ctx context.Context, userID, cardID, targetColumnID string, order *int) (*database.Card, error)

	// Tags.
	FindOrCreateTag(ctx context.Context, userID, name, color string) (*database.Tag, error)
	AddTagToCard(ctx context.Context, userID, cardID, tagID string) error

	// Subscribe opens a change-event stream for the user. The returned
	// cancel func tears the subscription down; the channel is closed when
	// the stream ends.
	Subscribe(ctx context.Context, userID string) (<-chan database.ChangeEvent, func(), error)
}
