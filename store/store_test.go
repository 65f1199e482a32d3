package store

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/boardstack/boardstack/database"
)

var errBackendDown = errors.New("backend unavailable")

func newTestStore(t *testing.T) (*Store, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend()
	s := NewStore(backend, "user-1")
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s, backend
}

func mustBoard(t *testing.T, s *Store, title string) *database.Board {
	t.Helper()
	board, err := s.CreateBoard(context.Background(), title, "")
	if err != nil {
		t.Fatalf("CreateBoard(%q): %v", title, err)
	}
	return board
}

func mustCard(t *testing.T, s *Store, columnID, title string) *database.Card {
	t.Helper()
	card, err := s.CreateCard(context.Background(), columnID, title)
	if err != nil {
		t.Fatalf("CreateCard(%q): %v", title, err)
	}
	return card
}

func TestCreateBoardCommitsRealIDs(t *testing.T) {
	s, _ := newTestStore(t)
	board := mustBoard(t, s, "Roadmap")

	boards := s.Boards()
	if len(boards) != 1 {
		t.Fatalf("got %d boards, want 1", len(boards))
	}
	got := boards[0]
	if got.ID != board.ID {
		t.Errorf("tree id %s != committed id %s", got.ID, board.ID)
	}
	if strings.HasPrefix(got.ID, "tmp-") {
		t.Error("temp id survived commit")
	}
	if len(got.Columns) != 3 {
		t.Fatalf("got %d default columns, want 3", len(got.Columns))
	}
	for _, col := range got.Columns {
		if strings.HasPrefix(col.ID, "tmp-") {
			t.Errorf("column %q kept temp id", col.Title)
		}
	}
	if s.LastMutation() != StateCommitted {
		t.Errorf("mutation state = %v, want committed", s.LastMutation())
	}
}

func TestSequentialCardOrders(t *testing.T) {
	s, _ := newTestStore(t)
	board := mustBoard(t, s, "Sprint")
	columnID := board.Columns[0].ID

	for i, title := range []string{"a", "b", "c", "d"} {
		card := mustCard(t, s, columnID, title)
		if card.Order != i {
			t.Errorf("card %q got order %d, want %d", title, card.Order, i)
		}
	}

	cards := s.Boards()[0].Columns[0].Cards
	if len(cards) != 4 {
		t.Fatalf("tree holds %d cards, want 4", len(cards))
	}
	for i, card := range cards {
		if card.Order != i {
			t.Errorf("tree card %d has order %d", i, card.Order)
		}
	}
}

func TestRollbackMatchesFreshAggregation(t *testing.T) {
	s, backend := newTestStore(t)
	board := mustBoard(t, s, "Stable")
	mustCard(t, s, board.Columns[0].ID, "kept")

	backend.FailNext(errBackendDown)
	if _, err := s.CreateCard(context.Background(), board.Columns[0].ID, "rejected"); !errors.Is(err, errBackendDown) {
		t.Fatalf("CreateCard = %v, want backend error", err)
	}
	if s.LastMutation() != StateRolledBack {
		t.Errorf("mutation state = %v, want rolled back", s.LastMutation())
	}

	fresh, err := NewAggregator(backend).Aggregate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if !reflect.DeepEqual(s.Boards(), fresh) {
		t.Error("tree after rollback differs from a fresh aggregation")
	}
}

func TestMoveCardNoOp(t *testing.T) {
	s, _ := newTestStore(t)
	board := mustBoard(t, s, "Sprint")
	columnID := board.Columns[0].ID
	mustCard(t, s, columnID, "a")
	card := mustCard(t, s, columnID, "b")

	if err := s.MoveCard(context.Background(), card.ID, columnID, nil); err != nil {
		t.Fatalf("MoveCard: %v", err)
	}

	cards := s.Boards()[0].Columns[0].Cards
	if len(cards) != 2 {
		t.Fatalf("no-op move changed card count: %d, want 2", len(cards))
	}
	if cards[1].ID != card.ID || cards[1].Order != 1 {
		t.Errorf("no-op move disturbed the card: %+v", cards[1])
	}
}

func TestMoveCardAcrossColumns(t *testing.T) {
	s, _ := newTestStore(t)
	board := mustBoard(t, s, "Sprint")
	from, to := board.Columns[0].ID, board.Columns[1].ID
	mustCard(t, s, to, "resident")
	card := mustCard(t, s, from, "mover")

	if err := s.MoveCard(context.Background(), card.ID, to, nil); err != nil {
		t.Fatalf("MoveCard: %v", err)
	}

	tree := s.Boards()[0]
	if n := len(tree.Columns[0].Cards); n != 0 {
		t.Errorf("source column still holds %d cards", n)
	}
	target := tree.Columns[1].Cards
	if len(target) != 2 || target[1].ID != card.ID || target[1].Order != 1 {
		t.Errorf("card not appended to target: %+v", target)
	}
}

func TestMoveCardRollback(t *testing.T) {
	s, backend := newTestStore(t)
	board := mustBoard(t, s, "Sprint")
	from, to := board.Columns[0].ID, board.Columns[1].ID
	card := mustCard(t, s, from, "stuck")

	backend.FailNext(errBackendDown)
	if err := s.MoveCard(context.Background(), card.ID, to, nil); !errors.Is(err, errBackendDown) {
		t.Fatalf("MoveCard = %v, want backend error", err)
	}

	tree := s.Boards()[0]
	if len(tree.Columns[0].Cards) != 1 || tree.Columns[0].Cards[0].ID != card.ID {
		t.Error("card did not return to its source column after rollback")
	}
	if len(tree.Columns[1].Cards) != 0 {
		t.Error("card leaked into the target column after rollback")
	}
}

func TestDeleteColumnDropsItsCards(t *testing.T) {
	s, _ := newTestStore(t)
	board := mustBoard(t, s, "Sprint")
	columnID := board.Columns[0].ID
	mustCard(t, s, columnID, "gone with the column")

	if err := s.DeleteColumn(context.Background(), columnID); err != nil {
		t.Fatalf("DeleteColumn: %v", err)
	}

	tree := s.Boards()[0]
	if len(tree.Columns) != 2 {
		t.Fatalf("got %d columns, want 2", len(tree.Columns))
	}
	for _, col := range tree.Columns {
		if col.ID == columnID {
			t.Fatal("deleted column still in tree")
		}
	}
}

func TestArchiveBoardKeepsServerState(t *testing.T) {
	s, backend := newTestStore(t)
	board := mustBoard(t, s, "Retiring")
	mustCard(t, s, board.Columns[0].ID, "preserved")

	if err := s.ArchiveBoard(context.Background(), board.ID); err != nil {
		t.Fatalf("ArchiveBoard: %v", err)
	}
	if len(s.Boards()) != 0 {
		t.Error("archived board still in the visible tree")
	}

	// The data survives on the backend for a potential un-archive.
	columns, err := backend.ColumnsForBoards(context.Background(), []string{board.ID})
	if err != nil {
		t.Fatalf("ColumnsForBoards: %v", err)
	}
	if len(columns) != 3 {
		t.Errorf("archived board lost columns server-side: %d, want 3", len(columns))
	}
}

func TestUpdateBoardRollback(t *testing.T) {
	s, backend := newTestStore(t)
	board := mustBoard(t, s, "Original")

	title := "Renamed"
	backend.FailNext(errBackendDown)
	if err := s.UpdateBoard(context.Background(), board.ID, database.BoardPatch{Title: &title}); !errors.Is(err, errBackendDown) {
		t.Fatalf("UpdateBoard = %v, want backend error", err)
	}
	if got := s.Boards()[0].Title; got != "Original" {
		t.Errorf("title after rollback = %q, want Original", got)
	}
}

func TestAddTagReusesExistingTag(t *testing.T) {
	s, backend := newTestStore(t)
	board := mustBoard(t, s, "Tagged")
	first := mustCard(t, s, board.Columns[0].ID, "one")
	second := mustCard(t, s, board.Columns[0].ID, "two")

	tagA, err := s.AddTag(context.Background(), first.ID, "urgent", "#EF4444")
	if err != nil {
		t.Fatalf("AddTag: %v", err)
	}
	tagB, err := s.AddTag(context.Background(), second.ID, "Urgent", "#ef4444")
	if err != nil {
		t.Fatalf("AddTag: %v", err)
	}
	if tagA.ID != tagB.ID {
		t.Errorf("equivalent tags got distinct ids: %s vs %s", tagA.ID, tagB.ID)
	}
	if len(backend.tags) != 1 {
		t.Errorf("backend holds %d tags, want 1", len(backend.tags))
	}

	cards := s.Boards()[0].Columns[0].Cards
	for _, card := range cards {
		if len(card.Tags) != 1 || card.Tags[0].ID != tagA.ID {
			t.Errorf("card %q tags = %+v, want the shared tag", card.Title, card.Tags)
		}
	}
}

func TestReturnedStructsDoNotAliasTree(t *testing.T) {
	s, _ := newTestStore(t)
	board := mustBoard(t, s, "Sealed")
	card := mustCard(t, s, board.Columns[0].ID, "untouchable")

	// Mutating what the mutations returned must not reach the store.
	board.Columns[0].Title = "hijacked"
	board.Columns = board.Columns[:1]
	card.Title = "hijacked"
	card.Tags = append(card.Tags, database.Tag{ID: "fake", Name: "injected"})

	tree := s.Boards()[0]
	if len(tree.Columns) != 3 {
		t.Fatalf("tree has %d columns after caller mutation, want 3", len(tree.Columns))
	}
	if tree.Columns[0].Title != "To Do" {
		t.Errorf("column title = %q, want To Do", tree.Columns[0].Title)
	}
	got := tree.Columns[0].Cards[0]
	if got.Title != "untouchable" || len(got.Tags) != 0 {
		t.Errorf("card leaked caller mutations: %+v", got)
	}
}

func TestCompletionStampedOptimistically(t *testing.T) {
	s, _ := newTestStore(t)
	board := mustBoard(t, s, "Sprint")
	card := mustCard(t, s, board.Columns[0].ID, "task")

	done := true
	if err := s.UpdateCard(context.Background(), card.ID, database.CardPatch{IsCompleted: &done}); err != nil {
		t.Fatalf("UpdateCard: %v", err)
	}
	got := s.Boards()[0].Columns[0].Cards[0]
	if !got.IsCompleted || got.CompletedAt == nil {
		t.Errorf("completed card missing timestamp: %+v", got)
	}
}

func TestValidationRejectedBeforeRemoteCall(t *testing.T) {
	s, backend := newTestStore(t)
	board := mustBoard(t, s, "Sprint")

	// A failure armed on the backend must not fire: validation short-circuits.
	backend.FailNext(errBackendDown)
	if _, err := s.CreateCard(context.Background(), board.Columns[0].ID, "   "); !errors.Is(err, database.ErrValidation) {
		t.Fatalf("blank title = %v, want ErrValidation", err)
	}
	if _, err := s.CreateBoard(context.Background(), "Next", ""); !errors.Is(err, errBackendDown) {
		t.Errorf("armed failure not consumed by validation: CreateBoard = %v, want %v", err, errBackendDown)
	}
}
