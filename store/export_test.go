package store

import (
	"context"
	"encoding/json"
	"testing"
)

func TestExportImportRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	board := mustBoard(t, s, "Portable")
	card := mustCard(t, s, board.Columns[0].ID, "carry me")
	if _, err := s.AddTag(context.Background(), card.ID, "urgent", "#EF4444"); err != nil {
		t.Fatalf("AddTag: %v", err)
	}

	data, err := s.Export(context.Background())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	var payload ExportPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if payload.Version != exportVersion {
		t.Errorf("export version = %q, want %q", payload.Version, exportVersion)
	}
	if len(payload.Boards) != 1 {
		t.Fatalf("export holds %d boards, want 1", len(payload.Boards))
	}

	if err := s.Import(context.Background(), data); err != nil {
		t.Fatalf("Import: %v", err)
	}

	boards := s.Boards()
	if len(boards) != 2 {
		t.Fatalf("got %d boards after import, want 2", len(boards))
	}
	imported := boards[1]
	if imported.ID == board.ID {
		t.Error("import reused the original board id")
	}
	if len(imported.Columns) != 3 {
		t.Fatalf("imported board has %d columns, want 3", len(imported.Columns))
	}
	cards := imported.Columns[0].Cards
	if len(cards) != 1 || cards[0].Title != "carry me" {
		t.Fatalf("imported cards = %+v, want the original card", cards)
	}
	if len(cards[0].Tags) != 1 || cards[0].Tags[0].Name != "urgent" {
		t.Fatalf("imported card tags = %+v, want urgent", cards[0].Tags)
	}
}

func TestImportDeduplicatesTags(t *testing.T) {
	s, backend := newTestStore(t)
	board := mustBoard(t, s, "Tagged")
	card := mustCard(t, s, board.Columns[0].ID, "labelled")
	if _, err := s.AddTag(context.Background(), card.ID, "urgent", "#EF4444"); err != nil {
		t.Fatalf("AddTag: %v", err)
	}

	data, err := s.Export(context.Background())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	// Importing the same snapshot twice multiplies boards, never tags.
	for i := 0; i < 2; i++ {
		if err := s.Import(context.Background(), data); err != nil {
			t.Fatalf("Import %d: %v", i+1, err)
		}
	}
	if len(s.Boards()) != 3 {
		t.Errorf("got %d boards, want 3", len(s.Boards()))
	}
	if len(backend.tags) != 1 {
		t.Errorf("backend holds %d tags after repeated imports, want 1", len(backend.tags))
	}
}

func TestImportRejectsMalformedPayload(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Import(context.Background(), []byte("{not json")); err == nil {
		t.Fatal("malformed payload accepted")
	}
}
