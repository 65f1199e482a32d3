package store

import (
	"sort"

	"github.com/boardstack/boardstack/database"
)

// cloneBoards deep-copies a board tree so snapshots and caller-facing views
// never alias the store's internal state.
func cloneBoards(boards []database.Board) []database.Board {
	out := make([]database.Board, len(boards))
	for i, b := range boards {
		out[i] = cloneBoard(b)
	}
	return out
}

func cloneBoard(b database.Board) database.Board {
	nb := b
	nb.Columns = make([]database.Column, len(b.Columns))
	for j, c := range b.Columns {
		nb.Columns[j] = cloneColumn(c)
	}
	if b.Members != nil {
		nb.Members = append([]database.BoardMember{}, b.Members...)
	}
	return nb
}

func cloneColumn(c database.Column) database.Column {
	nc := c
	if c.CardLimit != nil {
		v := *c.CardLimit
		nc.CardLimit = &v
	}
	nc.Cards = make([]database.Card, len(c.Cards))
	for k, card := range c.Cards {
		nc.Cards[k] = cloneCard(card)
	}
	return nc
}

func cloneCard(card database.Card) database.Card {
	nc := card
	if card.Tags != nil {
		nc.Tags = append([]database.Tag{}, card.Tags...)
	}
	if card.DueDate != nil {
		v := *card.DueDate
		nc.DueDate = &v
	}
	if card.AssignedUserID != nil {
		v := *card.AssignedUserID
		nc.AssignedUserID = &v
	}
	if card.AssignedUser != nil {
		v := *card.AssignedUser
		nc.AssignedUser = &v
	}
	if card.EstimatedHours != nil {
		v := *card.EstimatedHours
		nc.EstimatedHours = &v
	}
	if card.ActualHours != nil {
		v := *card.ActualHours
		nc.ActualHours = &v
	}
	if card.CompletedAt != nil {
		v := *card.CompletedAt
		nc.CompletedAt = &v
	}
	return nc
}

func findBoard(boards []database.Board, id string) *database.Board {
	for i := range boards {
		if boards[i].ID == id {
			return &boards[i]
		}
	}
	return nil
}

func findColumn(boards []database.Board, id string) (*database.Board, *database.Column) {
	for i := range boards {
		for j := range boards[i].Columns {
			if boards[i].Columns[j].ID == id {
				return &boards[i], &boards[i].Columns[j]
			}
		}
	}
	return nil, nil
}

func findCard(boards []database.Board, id string) (*database.Column, int) {
	for i := range boards {
		for j := range boards[i].Columns {
			col := &boards[i].Columns[j]
			for k := range col.Cards {
				if col.Cards[k].ID == id {
					return col, k
				}
			}
		}
	}
	return nil, -1
}

// nextOrder computes the order for an item appended without an explicit
// position: max sibling order plus one, an empty set counting as max -1.
func nextCardOrder(col *database.Column) int {
	max := -1
	for i := range col.Cards {
		if col.Cards[i].Order > max {
			max = col.Cards[i].Order
		}
	}
	return max + 1
}

func nextColumnOrder(b *database.Board) int {
	max := -1
	for i := range b.Columns {
		if b.Columns[i].Order > max {
			max = b.Columns[i].Order
		}
	}
	return max + 1
}

func sortColumnCards(col *database.Column) {
	sort.SliceStable(col.Cards, func(x, y int) bool {
		return col.Cards[x].Order < col.Cards[y].Order
	})
}

func removeCardAt(col *database.Column, idx int) database.Card {
	card := col.Cards[idx]
	col.Cards = append(col.Cards[:idx], col.Cards[idx+1:]...)
	return card
}
