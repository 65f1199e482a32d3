package store

import (
	"context"
	"sort"

	"github.com/boardstack/boardstack/database"
)

// Aggregator produces the nested Board -> Column -> Card view for a user
// from the backend's flat, batched reads. It is read-only and idempotent:
// repeated calls against unchanged data yield the same tree.
type Aggregator struct {
	backend Backend
}

func NewAggregator(backend Backend) *Aggregator {
	return &Aggregator{backend: backend}
}

// Aggregate builds the full tree for userID. Columns are sorted ascending by
// order within each board and cards ascending by order within each column;
// equal orders keep their fetch (insertion) order. Any underlying failure
// aborts the whole aggregation; no partial tree is ever returned.
func (a *Aggregator) Aggregate(ctx context.Context, userID string) ([]database.Board, error) {
	boards, err := a.backend.VisibleBoards(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(boards) == 0 {
		return []database.Board{}, nil
	}

	boardIDs := make([]string, len(boards))
	boardIndex := make(map[string]*database.Board, len(boards))
	for i := range boards {
		boards[i].Columns = []database.Column{}
		boardIDs[i] = boards[i].ID
		boardIndex[boards[i].ID] = &boards[i]
	}

	columns, err := a.backend.ColumnsForBoards(ctx, boardIDs)
	if err != nil {
		return nil, err
	}

	columnIDs := make([]string, len(columns))
	columnIndex := make(map[string]*database.Column, len(columns))
	for i := range columns {
		columns[i].Cards = []database.Card{}
		columnIDs[i] = columns[i].ID
		columnIndex[columns[i].ID] = &columns[i]
	}

	cards, err := a.backend.CardsForColumns(ctx, columnIDs)
	if err != nil {
		return nil, err
	}

	cardIDs := make([]string, len(cards))
	assigneeIDs := make([]string, 0)
	seenAssignee := make(map[string]bool)
	for i := range cards {
		cardIDs[i] = cards[i].ID
		if id := cards[i].AssignedUserID; id != nil && !seenAssignee[*id] {
			seenAssignee[*id] = true
			assigneeIDs = append(assigneeIDs, *id)
		}
	}

	tagsByCard, err := a.backend.TagsForCards(ctx, cardIDs)
	if err != nil {
		return nil, err
	}
	profiles, err := a.backend.ProfilesByIDs(ctx, assigneeIDs)
	if err != nil {
		return nil, err
	}

	for i := range cards {
		if tags, ok := tagsByCard[cards[i].ID]; ok {
			cards[i].Tags = tags
		} else {
			cards[i].Tags = []database.Tag{}
		}
		if id := cards[i].AssignedUserID; id != nil {
			if p, ok := profiles[*id]; ok {
				prof := p
				cards[i].AssignedUser = &prof
			}
		}
		if col, ok := columnIndex[cards[i].ColumnID]; ok {
			col.Cards = append(col.Cards, cards[i])
		}
	}

	for i := range columns {
		// Stable sort: duplicate orders keep insertion order.
		sort.SliceStable(columns[i].Cards, func(x, y int) bool {
			return columns[i].Cards[x].Order < columns[i].Cards[y].Order
		})
		if b, ok := boardIndex[columns[i].BoardID]; ok {
			b.Columns = append(b.Columns, columns[i])
		}
	}
	for i := range boards {
		sort.SliceStable(boards[i].Columns, func(x, y int) bool {
			return boards[i].Columns[x].Order < boards[i].Columns[y].Order
		})
	}

	return boards, nil
}
