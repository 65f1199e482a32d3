package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestService(t *testing.T) *DataService {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewDataService(db)
}

func mustCreateBoard(t *testing.T, s *DataService, userID, title string) *Board {
	t.Helper()
	board, err := s.CreateBoard(context.Background(), userID, title, "")
	if err != nil {
		t.Fatalf("CreateBoard(%q): %v", title, err)
	}
	return board
}

func mustCreateCard(t *testing.T, s *DataService, userID, columnID, title string) *Card {
	t.Helper()
	card, err := s.CreateCard(context.Background(), userID, NewCard{ColumnID: columnID, Title: title})
	if err != nil {
		t.Fatalf("CreateCard(%q): %v", title, err)
	}
	return card
}

func TestCreateBoardSeedsDefaultColumns(t *testing.T) {
	s := newTestService(t)
	board := mustCreateBoard(t, s, "user-1", "Launch plan")

	if len(board.Columns) != 3 {
		t.Fatalf("got %d default columns, want 3", len(board.Columns))
	}
	want := []struct {
		title string
		color string
	}{
		{"To Do", "#e2e8f0"},
		{"In Progress", "#fef3c7"},
		{"Done", "#d1fae5"},
	}
	for i, w := range want {
		col := board.Columns[i]
		if col.Title != w.title || col.Color != w.color || col.Order != i {
			t.Errorf("column %d = {%q %q %d}, want {%q %q %d}",
				i, col.Title, col.Color, col.Order, w.title, w.color, i)
		}
	}

	trees, err := s.ListBoardTrees(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListBoardTrees: %v", err)
	}
	if len(trees) != 1 {
		t.Fatalf("got %d boards, want 1", len(trees))
	}
	if len(trees[0].Members) != 1 || trees[0].Members[0].Role != RoleOwner {
		t.Errorf("expected a single owner member row, got %+v", trees[0].Members)
	}
}

func TestSequentialCardOrders(t *testing.T) {
	s := newTestService(t)
	board := mustCreateBoard(t, s, "user-1", "Sprint")
	columnID := board.Columns[0].ID

	titles := []string{"first", "second", "third", "fourth"}
	for i, title := range titles {
		card := mustCreateCard(t, s, "user-1", columnID, title)
		if card.Order != i {
			t.Errorf("card %q got order %d, want %d", title, card.Order, i)
		}
	}
}

func TestSequentialColumnOrders(t *testing.T) {
	s := newTestService(t)
	board := mustCreateBoard(t, s, "user-1", "Sprint")

	col, err := s.CreateColumn(context.Background(), "user-1", board.ID, "Review")
	if err != nil {
		t.Fatalf("CreateColumn: %v", err)
	}
	if col.Order != 3 {
		t.Errorf("new column got order %d, want 3 after the defaults", col.Order)
	}
}

func TestMoveCardNoOp(t *testing.T) {
	s := newTestService(t)
	board := mustCreateBoard(t, s, "user-1", "Sprint")
	columnID := board.Columns[0].ID

	mustCreateCard(t, s, "user-1", columnID, "a")
	card := mustCreateCard(t, s, "user-1", columnID, "b")

	moved, err := s.MoveCard(context.Background(), "user-1", card.ID, columnID, nil)
	if err != nil {
		t.Fatalf("MoveCard: %v", err)
	}
	if moved.ColumnID != columnID || moved.Order != card.Order {
		t.Errorf("no-op move changed card: got (%s, %d), want (%s, %d)",
			moved.ColumnID, moved.Order, columnID, card.Order)
	}

	cards, err := s.CardsForColumns(context.Background(), []string{columnID})
	if err != nil {
		t.Fatalf("CardsForColumns: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("no-op move duplicated or dropped a card: %d cards, want 2", len(cards))
	}
}

func TestMoveCardAcrossColumns(t *testing.T) {
	s := newTestService(t)
	board := mustCreateBoard(t, s, "user-1", "Sprint")
	from, to := board.Columns[0].ID, board.Columns[1].ID

	mustCreateCard(t, s, "user-1", to, "already there")
	card := mustCreateCard(t, s, "user-1", from, "moving")

	moved, err := s.MoveCard(context.Background(), "user-1", card.ID, to, nil)
	if err != nil {
		t.Fatalf("MoveCard: %v", err)
	}
	if moved.ColumnID != to {
		t.Errorf("card landed in %s, want %s", moved.ColumnID, to)
	}
	if moved.Order != 1 {
		t.Errorf("card got order %d, want 1 (end of target)", moved.Order)
	}
}

func TestDeleteColumnCascades(t *testing.T) {
	s := newTestService(t)
	board := mustCreateBoard(t, s, "user-1", "Sprint")
	columnID := board.Columns[0].ID
	card := mustCreateCard(t, s, "user-1", columnID, "doomed")

	tag, err := s.FindOrCreateTag(context.Background(), "user-1", "urgent", "#ef4444")
	if err != nil {
		t.Fatalf("FindOrCreateTag: %v", err)
	}
	if err := s.AddTagToCard(context.Background(), "user-1", card.ID, tag.ID); err != nil {
		t.Fatalf("AddTagToCard: %v", err)
	}

	if err := s.DeleteColumn(context.Background(), "user-1", columnID); err != nil {
		t.Fatalf("DeleteColumn: %v", err)
	}

	cards, err := s.CardsForColumns(context.Background(), []string{columnID})
	if err != nil {
		t.Fatalf("CardsForColumns: %v", err)
	}
	if len(cards) != 0 {
		t.Errorf("cards survived column delete: %d", len(cards))
	}

	joins, err := s.TagsForCards(context.Background(), []string{card.ID})
	if err != nil {
		t.Fatalf("TagsForCards: %v", err)
	}
	if len(joins[card.ID]) != 0 {
		t.Errorf("tag joins survived cascade: %v", joins[card.ID])
	}

	// The tag itself belongs to the user, not the card.
	tags, err := s.ListTags(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	if len(tags) != 1 {
		t.Errorf("tag library changed by cascade: %d tags, want 1", len(tags))
	}
}

func TestArchiveBoardIsNonDestructive(t *testing.T) {
	s := newTestService(t)
	board := mustCreateBoard(t, s, "user-1", "Old project")
	card := mustCreateCard(t, s, "user-1", board.Columns[0].ID, "still here")

	if err := s.ArchiveBoard(context.Background(), "user-1", board.ID); err != nil {
		t.Fatalf("ArchiveBoard: %v", err)
	}

	visible, err := s.VisibleBoards(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("VisibleBoards: %v", err)
	}
	if len(visible) != 0 {
		t.Errorf("archived board still visible: %d boards", len(visible))
	}

	got, err := s.GetBoard(context.Background(), board.ID)
	if err != nil {
		t.Fatalf("GetBoard after archive: %v", err)
	}
	if !got.IsArchived {
		t.Error("board not flagged archived")
	}
	if len(got.Columns) != 3 {
		t.Fatalf("archived board lost columns: %d, want 3", len(got.Columns))
	}
	if len(got.Columns[0].Cards) != 1 || got.Columns[0].Cards[0].ID != card.ID {
		t.Errorf("archived board lost cards: %+v", got.Columns[0].Cards)
	}
}

func TestArchiveRequiresOwner(t *testing.T) {
	s := newTestService(t)
	board := mustCreateBoard(t, s, "user-1", "Mine")
	if err := s.InviteMember(context.Background(), "user-1", board.ID, "user-2", RoleAdmin); err != nil {
		t.Fatalf("InviteMember: %v", err)
	}

	err := s.ArchiveBoard(context.Background(), "user-2", board.ID)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("admin archive = %v, want ErrForbidden", err)
	}
}

func TestFindOrCreateTagDeduplicates(t *testing.T) {
	s := newTestService(t)

	first, err := s.FindOrCreateTag(context.Background(), "user-1", "urgent", "#EF4444")
	if err != nil {
		t.Fatalf("FindOrCreateTag: %v", err)
	}
	second, err := s.FindOrCreateTag(context.Background(), "user-1", "Urgent", " #ef4444 ")
	if err != nil {
		t.Fatalf("FindOrCreateTag: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("equivalent tags got distinct ids: %s vs %s", first.ID, second.ID)
	}

	otherColor, err := s.FindOrCreateTag(context.Background(), "user-1", "urgent", "#22c55e")
	if err != nil {
		t.Fatalf("FindOrCreateTag: %v", err)
	}
	if otherColor.ID == first.ID {
		t.Error("tags with different colors collapsed into one")
	}

	otherUser, err := s.FindOrCreateTag(context.Background(), "user-2", "urgent", "#ef4444")
	if err != nil {
		t.Fatalf("FindOrCreateTag: %v", err)
	}
	if otherUser.ID == first.ID {
		t.Error("tags leaked across users")
	}
}

func TestRowLevelAccess(t *testing.T) {
	s := newTestService(t)
	board := mustCreateBoard(t, s, "owner", "Private")
	title := "renamed"

	// A stranger cannot tell the board exists.
	_, err := s.UpdateBoard(context.Background(), "stranger", board.ID, BoardPatch{Title: &title})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger update = %v, want ErrForbidden", err)
	}
	if _, err := s.CreateCard(context.Background(), "stranger",
		NewCard{ColumnID: board.Columns[0].ID, Title: "nope"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger card create = %v, want ErrForbidden", err)
	}

	// Viewers read but do not write.
	if err := s.InviteMember(context.Background(), "owner", board.ID, "viewer", RoleViewer); err != nil {
		t.Fatalf("InviteMember: %v", err)
	}
	if boards, err := s.VisibleBoards(context.Background(), "viewer"); err != nil || len(boards) != 1 {
		t.Errorf("viewer sees %d boards (err %v), want 1", len(boards), err)
	}
	if _, err := s.UpdateBoard(context.Background(), "viewer", board.ID, BoardPatch{Title: &title}); !errors.Is(err, ErrForbidden) {
		t.Errorf("viewer update = %v, want ErrForbidden", err)
	}

	// Members write.
	if err := s.InviteMember(context.Background(), "owner", board.ID, "member", RoleMember); err != nil {
		t.Fatalf("InviteMember: %v", err)
	}
	if _, err := s.UpdateBoard(context.Background(), "member", board.ID, BoardPatch{Title: &title}); err != nil {
		t.Errorf("member update failed: %v", err)
	}

	// Public boards are readable by anyone, still not writable.
	public := true
	if _, err := s.UpdateBoard(context.Background(), "owner", board.ID, BoardPatch{IsPublic: &public}); err != nil {
		t.Fatalf("UpdateBoard: %v", err)
	}
	if boards, err := s.VisibleBoards(context.Background(), "stranger"); err != nil || len(boards) != 1 {
		t.Errorf("stranger sees %d public boards (err %v), want 1", len(boards), err)
	}
	if _, err := s.UpdateBoard(context.Background(), "stranger", board.ID, BoardPatch{Title: &title}); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger update on public board = %v, want ErrForbidden", err)
	}
}

func TestEmptyPatchStillChecksAccess(t *testing.T) {
	s := newTestService(t)
	board := mustCreateBoard(t, s, "owner", "Private roadmap")
	mustCreateCard(t, s, "owner", board.Columns[0].ID, "secret plan")
	ctx := context.Background()

	// An empty patch is a read of the full tree; it must not leak to
	// non-members.
	if _, err := s.UpdateBoard(ctx, "stranger", board.ID, BoardPatch{}); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger empty patch = %v, want ErrForbidden", err)
	}

	got, err := s.UpdateBoard(ctx, "owner", board.ID, BoardPatch{})
	if err != nil {
		t.Fatalf("owner empty patch: %v", err)
	}
	if got.ID != board.ID || len(got.Columns) != 3 {
		t.Errorf("owner empty patch returned %+v, want the full board", got)
	}
}

func TestInviteMemberConflictAndReactivation(t *testing.T) {
	s := newTestService(t)
	board := mustCreateBoard(t, s, "owner", "Shared")
	ctx := context.Background()

	if err := s.InviteMember(ctx, "owner", board.ID, "guest", RoleMember); err != nil {
		t.Fatalf("InviteMember: %v", err)
	}
	if err := s.InviteMember(ctx, "owner", board.ID, "guest", RoleMember); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate invite = %v, want ErrConflict", err)
	}

	if err := s.RemoveMember(ctx, "owner", board.ID, "guest"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if boards, _ := s.VisibleBoards(ctx, "guest"); len(boards) != 0 {
		t.Error("removed member still sees the board")
	}

	if err := s.InviteMember(ctx, "owner", board.ID, "guest", RoleViewer); err != nil {
		t.Errorf("reactivation failed: %v", err)
	}
	if boards, _ := s.VisibleBoards(ctx, "guest"); len(boards) != 1 {
		t.Error("reactivated member cannot see the board")
	}
}

func TestCompletionStampsTimestamp(t *testing.T) {
	s := newTestService(t)
	board := mustCreateBoard(t, s, "user-1", "Sprint")
	card := mustCreateCard(t, s, "user-1", board.Columns[0].ID, "task")
	ctx := context.Background()

	done := true
	updated, err := s.UpdateCard(ctx, "user-1", card.ID, CardPatch{IsCompleted: &done})
	if err != nil {
		t.Fatalf("UpdateCard: %v", err)
	}
	if !updated.IsCompleted || updated.CompletedAt == nil {
		t.Errorf("completed card missing timestamp: %+v", updated)
	}

	done = false
	updated, err = s.UpdateCard(ctx, "user-1", card.ID, CardPatch{IsCompleted: &done})
	if err != nil {
		t.Fatalf("UpdateCard: %v", err)
	}
	if updated.IsCompleted || updated.CompletedAt != nil {
		t.Errorf("un-completed card kept timestamp: %+v", updated)
	}
}

func TestActivitiesAreLogged(t *testing.T) {
	s := newTestService(t)
	board := mustCreateBoard(t, s, "user-1", "Audited")
	mustCreateCard(t, s, "user-1", board.Columns[0].ID, "tracked")

	activities, err := s.ListActivities(context.Background(), "user-1", board.ID, 0)
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(activities) != 2 {
		t.Fatalf("got %d activities, want 2 (board + card create)", len(activities))
	}
	// Newest first.
	if activities[0].EntityType != "card" || activities[1].EntityType != "board" {
		t.Errorf("unexpected activity order: %s then %s",
			activities[0].EntityType, activities[1].EntityType)
	}

	if _, err := s.ListActivities(context.Background(), "stranger", board.ID, 0); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger activity read = %v, want ErrForbidden", err)
	}
}

func TestReorderColumns(t *testing.T) {
	s := newTestService(t)
	board := mustCreateBoard(t, s, "user-1", "Sprint")
	ctx := context.Background()

	orders := map[string]int{
		board.Columns[0].ID: 2,
		board.Columns[1].ID: 0,
		board.Columns[2].ID: 1,
	}
	if err := s.ReorderColumns(ctx, "user-1", board.ID, orders); err != nil {
		t.Fatalf("ReorderColumns: %v", err)
	}

	columns, err := s.ColumnsForBoards(ctx, []string{board.ID})
	if err != nil {
		t.Fatalf("ColumnsForBoards: %v", err)
	}
	if columns[0].Title != "In Progress" || columns[1].Title != "Done" || columns[2].Title != "To Do" {
		t.Errorf("unexpected order after reorder: %s, %s, %s",
			columns[0].Title, columns[1].Title, columns[2].Title)
	}
}
